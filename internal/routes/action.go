package routes

import (
	"context"
	"fmt"

	"github.com/thebtf/switchboard/pkg/models"
)

// rolePermissions maps workspace roles to the actions they may prepare.
// Preparation never executes anything, but offering a user an action their
// role cannot perform is still wrong, so the check happens here.
var rolePermissions = map[models.Role]map[models.ActionType]bool{
	models.RoleViewer: {
		models.ActionRemind: true,
	},
	models.RoleCommenter: {
		models.ActionRemind: true,
	},
	models.RoleEditor: {
		models.ActionCreate:  true,
		models.ActionUpdate:  true,
		models.ActionDelete:  true,
		models.ActionArchive: true,
		models.ActionRemind:  true,
	},
	models.RoleAdmin: {
		models.ActionCreate:  true,
		models.ActionUpdate:  true,
		models.ActionDelete:  true,
		models.ActionShare:   true,
		models.ActionArchive: true,
		models.ActionRemind:  true,
	},
	models.RoleOwner: {
		models.ActionCreate:  true,
		models.ActionUpdate:  true,
		models.ActionDelete:  true,
		models.ActionShare:   true,
		models.ActionArchive: true,
		models.ActionRemind:  true,
	},
}

// roleAllows reports whether role may prepare action. Unknown roles are
// denied everything.
func roleAllows(role models.Role, action models.ActionType) bool {
	return rolePermissions[role][action]
}

// ActionHandler prepares workspace mutations without performing them. The
// response describes what would happen; execution belongs to the caller
// after explicit confirmation.
type ActionHandler struct{}

var _ Handler = (*ActionHandler)(nil)

// NewActionHandler creates the action-preparation handler.
func NewActionHandler() *ActionHandler {
	return &ActionHandler{}
}

// Type implements Handler.
func (h *ActionHandler) Type() models.RouteType { return models.RouteAction }

// Execute implements Handler. A role that may not perform the action still
// gets an action-typed response, flagged permissionDenied with the reason.
func (h *ActionHandler) Execute(_ context.Context, req *Request) (*models.QueryResponse, error) {
	params, ok := req.Route.Params.(*models.ActionParams)
	if !ok {
		return nil, paramsError("action", req.Route.Params)
	}

	role := models.RoleViewer
	if req.Context != nil && req.Context.User.Role != "" {
		role = req.Context.User.Role
	}

	payload := &models.ActionPayload{
		Action:               params.Action,
		Target:               params.Target,
		Description:          describeAction(params),
		RequiresConfirmation: params.RequiresConfirmation,
	}
	if !roleAllows(role, params.Action) {
		payload.PermissionDenied = true
		payload.Reason = fmt.Sprintf("role %s cannot %s in this workspace", role, params.Action)
	}

	return &models.QueryResponse{
		Type: models.ResponseAction,
		Data: payload,
		Metadata: models.ResponseMetadata{
			Source:     "action",
			Confidence: req.Confidence,
		},
	}, nil
}

func describeAction(params *models.ActionParams) string {
	target := params.Target
	if target == "" {
		target = "the selected item"
	}
	switch params.Action {
	case models.ActionCreate:
		return fmt.Sprintf("Create %s.", target)
	case models.ActionUpdate:
		return fmt.Sprintf("Update %s.", target)
	case models.ActionDelete:
		return fmt.Sprintf("Delete %s. This cannot be undone.", target)
	case models.ActionShare:
		return fmt.Sprintf("Share %s.", target)
	case models.ActionArchive:
		return fmt.Sprintf("Archive %s. It can be restored later.", target)
	case models.ActionRemind:
		return fmt.Sprintf("Set a reminder: %s.", target)
	default:
		return fmt.Sprintf("Prepare %s on %s.", params.Action, target)
	}
}
