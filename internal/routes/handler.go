// Package routes implements the six execution strategies a routing decision
// can select. Each handler turns a Route's typed parameters into exactly one
// typed QueryResponse; side effects on workspace data are out of bounds.
package routes

import (
	"context"
	"fmt"

	"github.com/thebtf/switchboard/pkg/models"
)

// Request is the execution input for one route. Confidence carries the
// routing decision's confidence; handlers that answer from structured data
// inherit it, retrieval and direct handlers override it with their own.
type Request struct {
	Query       string
	WorkspaceID string
	UserID      string
	Context     *models.QueryContext
	Route       models.Route
	Confidence  float64
}

// Handler executes one route strategy.
type Handler interface {
	// Type names the strategy this handler serves.
	Type() models.RouteType

	// Execute runs the route. The returned response is complete except for
	// timing, which the caller stamps. A returned error means the handler
	// could not produce a result; the caller converts it into an
	// error-typed response rather than failing the request.
	Execute(ctx context.Context, req *Request) (*models.QueryResponse, error)
}

// TableStore loads structured table data for the database and aggregate
// handlers.
type TableStore interface {
	// TableData returns the full table, columns and rows, scoped to the
	// workspace.
	TableData(ctx context.Context, workspaceID, tableID string) (*models.Table, error)
}

// paramsError reports a route whose parameter variant does not match its
// type, which indicates a router bug rather than bad user input.
func paramsError(want string, got models.RouteParams) error {
	return fmt.Errorf("route params: want %s, got %T", want, got)
}
