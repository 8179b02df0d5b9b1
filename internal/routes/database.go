package routes

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/switchboard/internal/config"
	"github.com/thebtf/switchboard/pkg/models"
)

// DatabaseHandler runs structured table queries: load, filter, limit. It
// inherits the routing decision's confidence since correctness here depends
// on the route targeting the right table, not on the data itself.
type DatabaseHandler struct {
	store TableStore
	cfg   *config.Config
}

var _ Handler = (*DatabaseHandler)(nil)

// NewDatabaseHandler creates the structured-data handler.
func NewDatabaseHandler(store TableStore, cfg *config.Config) *DatabaseHandler {
	return &DatabaseHandler{store: store, cfg: cfg}
}

// Type implements Handler.
func (h *DatabaseHandler) Type() models.RouteType { return models.RouteDatabase }

// Execute implements Handler. Zero matching rows is a valid empty result,
// not an error; a table that cannot be loaded is an error.
func (h *DatabaseHandler) Execute(ctx context.Context, req *Request) (*models.QueryResponse, error) {
	params, ok := req.Route.Params.(*models.DatabaseParams)
	if !ok {
		return nil, paramsError("database", req.Route.Params)
	}
	if len(params.TableIDs) == 0 {
		return nil, errors.New("no tables targeted")
	}

	limit := params.Limit
	if limit <= 0 {
		limit = h.cfg.DefaultRowLimit
	}

	results := make([]models.TableResult, 0, len(params.TableIDs))
	total := 0
	for _, id := range params.TableIDs {
		table, err := h.store.TableData(ctx, req.WorkspaceID, id)
		if err != nil {
			return nil, fmt.Errorf("load table %s: %w", id, err)
		}

		rows := ApplyFilters(table.Rows, params.Filters)
		truncated := false
		if len(rows) > limit {
			rows = rows[:limit]
			truncated = true
		}
		total += len(rows)

		results = append(results, models.TableResult{
			TableID:   table.ID,
			TableName: table.Name,
			Columns:   table.Columns,
			Rows:      rows,
			Truncated: truncated,
		})
	}

	log.Debug().
		Str("workspace", req.WorkspaceID).
		Int("tables", len(results)).
		Int("rows", total).
		Msg("database route executed")

	return &models.QueryResponse{
		Type: models.ResponseData,
		Data: &models.TablePayload{Tables: results},
		Metadata: models.ResponseMetadata{
			Source:     "database",
			Confidence: req.Confidence,
			RowCount:   models.IntPtr(total),
		},
	}, nil
}
