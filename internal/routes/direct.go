package routes

import (
	"context"
	"fmt"

	"github.com/thebtf/switchboard/pkg/models"
)

// maxListedResources caps the tables and pages enumerated in fallback and
// help answers.
const maxListedResources = 5

// DirectHandler answers without touching workspace data: greetings, help,
// navigation, and the clarification fallback for low-signal queries.
type DirectHandler struct{}

var _ Handler = (*DirectHandler)(nil)

// NewDirectHandler creates the direct-response handler.
func NewDirectHandler() *DirectHandler {
	return &DirectHandler{}
}

// Type implements Handler.
func (h *DirectHandler) Type() models.RouteType { return models.RouteDirect }

// Execute implements Handler. Canned answers carry confidence 1.0, there is
// nothing uncertain about them. Clarification keeps the decision's low
// confidence and renders as a fallback response.
func (h *DirectHandler) Execute(_ context.Context, req *Request) (*models.QueryResponse, error) {
	params, ok := req.Route.Params.(*models.DirectParams)
	if !ok {
		return nil, paramsError("direct", req.Route.Params)
	}
	if params.Kind == models.DirectClarification {
		return h.clarify(req), nil
	}

	answer := params.Answer
	if answer == "" {
		answer = cannedAnswer(params, req.Context)
	}
	return &models.QueryResponse{
		Type: models.ResponseContent,
		Data: &models.DirectPayload{Kind: params.Kind, Answer: answer},
		Metadata: models.ResponseMetadata{
			Source:     "direct",
			Confidence: 1.0,
		},
	}, nil
}

func (h *DirectHandler) clarify(req *Request) *models.QueryResponse {
	payload := &models.FallbackPayload{
		Reason:  models.FallbackClarification,
		Message: "I'm not sure what you're looking for. Try naming a table, a page, or what you want to know.",
	}
	if req.Context != nil {
		payload.Suggestions = SuggestionsFor(req.Context, maxListedResources)
		for i, t := range req.Context.Tables {
			if i >= maxListedResources {
				break
			}
			payload.AvailableTables = append(payload.AvailableTables, t.Name)
		}
		for i, p := range req.Context.Pages {
			if i >= maxListedResources {
				break
			}
			payload.AvailablePages = append(payload.AvailablePages, p.Title)
		}
	}
	return &models.QueryResponse{
		Type: models.ResponseFallback,
		Data: payload,
		Metadata: models.ResponseMetadata{
			Source:     "direct",
			Confidence: req.Confidence,
		},
	}
}

func cannedAnswer(params *models.DirectParams, qctx *models.QueryContext) string {
	switch params.Kind {
	case models.DirectGreeting:
		return "Hi! Ask me about the tables and pages in this workspace."
	case models.DirectHelp:
		return helpAnswer(qctx)
	case models.DirectNavigation:
		if params.Target != "" {
			return fmt.Sprintf("%q is in this workspace. Open it from the sidebar or via search.", params.Target)
		}
		return "I couldn't find a table or page with that name. Try the exact title."
	default:
		return "I can answer questions about the data and content in this workspace."
	}
}

func helpAnswer(qctx *models.QueryContext) string {
	base := "I can list and filter table rows, compute counts and other aggregates, " +
		"search page content, and prepare actions like creating or archiving items."
	if qctx == nil || (len(qctx.Tables) == 0 && len(qctx.Pages) == 0) {
		return base
	}
	return fmt.Sprintf("%s This workspace has %d tables and %d pages.", base, len(qctx.Tables), len(qctx.Pages))
}

// SuggestionsFor proposes example queries against the workspace's actual
// resources. Also used when structuring fallback responses.
func SuggestionsFor(qctx *models.QueryContext, max int) []string {
	var out []string
	if len(qctx.Tables) > 0 {
		out = append(out,
			fmt.Sprintf("show rows from %s", qctx.Tables[0].Name),
			fmt.Sprintf("how many rows are in %s", qctx.Tables[0].Name),
		)
	}
	if len(qctx.Pages) > 0 {
		out = append(out, fmt.Sprintf("what does %s cover", qctx.Pages[0].Title))
	}
	if len(out) > max {
		out = out[:max]
	}
	return out
}
