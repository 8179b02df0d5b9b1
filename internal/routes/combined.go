package routes

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/thebtf/switchboard/pkg/models"
)

// CombinedHandler runs a structured query and passage retrieval
// concurrently and returns both sub-results un-merged.
type CombinedHandler struct {
	database  *DatabaseHandler
	retrieval *RetrievalHandler
}

var _ Handler = (*CombinedHandler)(nil)

// NewCombinedHandler creates the hybrid handler.
func NewCombinedHandler(database *DatabaseHandler, retrieval *RetrievalHandler) *CombinedHandler {
	return &CombinedHandler{database: database, retrieval: retrieval}
}

// Type implements Handler.
func (h *CombinedHandler) Type() models.RouteType { return models.RouteHybrid }

// Execute implements Handler. One failing branch degrades to the other;
// only both failing is a handler failure.
func (h *CombinedHandler) Execute(ctx context.Context, req *Request) (*models.QueryResponse, error) {
	params, ok := req.Route.Params.(*models.HybridParams)
	if !ok {
		return nil, paramsError("hybrid", req.Route.Params)
	}
	if params.Database == nil && params.Retrieval == nil {
		return nil, errors.New("hybrid route carries no sub-queries")
	}

	var (
		dbResp, retrResp *models.QueryResponse
		dbErr, retrErr   error
	)
	g, gctx := errgroup.WithContext(ctx)
	if params.Database != nil {
		sub := *req
		sub.Route = models.Route{Type: models.RouteDatabase, Params: params.Database}
		g.Go(func() error {
			dbResp, dbErr = h.database.Execute(gctx, &sub)
			return nil
		})
	}
	if params.Retrieval != nil {
		sub := *req
		sub.Route = models.Route{Type: models.RouteRetrieval, Params: params.Retrieval}
		g.Go(func() error {
			retrResp, retrErr = h.retrieval.Execute(gctx, &sub)
			return nil
		})
	}
	_ = g.Wait() // branch errors handled below, goroutines never return one

	if dbErr != nil && params.Retrieval == nil {
		return nil, dbErr
	}
	if retrErr != nil && params.Database == nil {
		return nil, retrErr
	}
	if dbErr != nil && retrErr != nil {
		return nil, errors.Join(dbErr, retrErr)
	}
	if dbErr != nil {
		log.Warn().Err(dbErr).Msg("hybrid database branch failed, returning retrieval only")
		dbResp = nil
	}
	if retrErr != nil {
		log.Warn().Err(retrErr).Msg("hybrid retrieval branch failed, returning database only")
		retrResp = nil
	}

	meta := models.ResponseMetadata{Source: "hybrid"}
	if dbResp != nil {
		meta.Confidence = dbResp.Metadata.Confidence
		meta.RowCount = dbResp.Metadata.RowCount
	}
	if retrResp != nil {
		if retrResp.Metadata.Confidence > meta.Confidence {
			meta.Confidence = retrResp.Metadata.Confidence
		}
		meta.TokenCount = retrResp.Metadata.TokenCount
	}

	return &models.QueryResponse{
		Type:     models.ResponseHybrid,
		Data:     &models.HybridPayload{Database: dbResp, Retrieval: retrResp},
		Metadata: meta,
	}, nil
}
