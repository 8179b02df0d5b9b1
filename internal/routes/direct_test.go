package routes

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/switchboard/pkg/models"
)

func directContext() *models.QueryContext {
	return &models.QueryContext{
		WorkspaceID: "ws_1",
		Tables: []models.TableInfo{
			{ID: "tbl_tasks", Name: "Tasks"},
			{ID: "tbl_projects", Name: "Projects"},
		},
		Pages: []models.PageInfo{
			{ID: "page_1", Title: "Meeting Notes"},
		},
		User: models.UserInfo{ID: "user_1", Role: models.RoleEditor},
	}
}

func directRequest(params *models.DirectParams) *Request {
	return &Request{
		Query:       "hello",
		WorkspaceID: "ws_1",
		Context:     directContext(),
		Route:       models.Route{Type: models.RouteDirect, Params: params},
		Confidence:  0.95,
	}
}

func TestDirectGreeting(t *testing.T) {
	resp, err := NewDirectHandler().Execute(context.Background(), directRequest(&models.DirectParams{Kind: models.DirectGreeting}))
	require.NoError(t, err)

	assert.Equal(t, models.ResponseContent, resp.Type)
	assert.Equal(t, "direct", resp.Metadata.Source)
	// Canned answers are certain regardless of routing confidence.
	assert.InDelta(t, 1.0, resp.Metadata.Confidence, 1e-9)

	payload, ok := resp.Data.(*models.DirectPayload)
	require.True(t, ok)
	assert.Equal(t, models.DirectGreeting, payload.Kind)
	assert.Contains(t, payload.Answer, "Ask me about")
}

func TestDirectHelpCountsResources(t *testing.T) {
	resp, err := NewDirectHandler().Execute(context.Background(), directRequest(&models.DirectParams{Kind: models.DirectHelp}))
	require.NoError(t, err)

	payload := resp.Data.(*models.DirectPayload)
	assert.Contains(t, payload.Answer, "aggregates")
	assert.Contains(t, payload.Answer, "2 tables")
}

func TestDirectHelpWithoutContext(t *testing.T) {
	req := directRequest(&models.DirectParams{Kind: models.DirectHelp})
	req.Context = nil

	resp, err := NewDirectHandler().Execute(context.Background(), req)
	require.NoError(t, err)

	payload := resp.Data.(*models.DirectPayload)
	assert.Contains(t, payload.Answer, "aggregates")
	assert.NotContains(t, payload.Answer, "This workspace has")
}

func TestDirectNavigation(t *testing.T) {
	resp, err := NewDirectHandler().Execute(context.Background(), directRequest(&models.DirectParams{
		Kind:   models.DirectNavigation,
		Target: "Meeting Notes",
	}))
	require.NoError(t, err)

	payload := resp.Data.(*models.DirectPayload)
	assert.Contains(t, payload.Answer, `"Meeting Notes"`)
	assert.InDelta(t, 1.0, resp.Metadata.Confidence, 1e-9)
}

func TestDirectNavigationUnresolvedTarget(t *testing.T) {
	resp, err := NewDirectHandler().Execute(context.Background(), directRequest(&models.DirectParams{Kind: models.DirectNavigation}))
	require.NoError(t, err)

	payload := resp.Data.(*models.DirectPayload)
	assert.Contains(t, payload.Answer, "couldn't find")
}

func TestDirectPresetAnswerWins(t *testing.T) {
	resp, err := NewDirectHandler().Execute(context.Background(), directRequest(&models.DirectParams{
		Kind:   models.DirectGreeting,
		Answer: "Welcome back.",
	}))
	require.NoError(t, err)

	payload := resp.Data.(*models.DirectPayload)
	assert.Equal(t, "Welcome back.", payload.Answer)
}

func TestClarificationBecomesFallback(t *testing.T) {
	req := directRequest(&models.DirectParams{Kind: models.DirectClarification})
	req.Confidence = 0.3

	resp, err := NewDirectHandler().Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, models.ResponseFallback, resp.Type)
	// Clarification keeps the decision's low confidence.
	assert.InDelta(t, 0.3, resp.Metadata.Confidence, 1e-9)

	payload, ok := resp.Data.(*models.FallbackPayload)
	require.True(t, ok)
	assert.Equal(t, models.FallbackClarification, payload.Reason)
	assert.NotEmpty(t, payload.Message)
	assert.Equal(t, []string{"Tasks", "Projects"}, payload.AvailableTables)
	assert.Equal(t, []string{"Meeting Notes"}, payload.AvailablePages)
	assert.Contains(t, payload.Suggestions, "show rows from Tasks")
	assert.Contains(t, payload.Suggestions, "what does Meeting Notes cover")
}

func TestClarificationWithoutContext(t *testing.T) {
	req := directRequest(&models.DirectParams{Kind: models.DirectClarification})
	req.Context = nil

	resp, err := NewDirectHandler().Execute(context.Background(), req)
	require.NoError(t, err)

	payload := resp.Data.(*models.FallbackPayload)
	assert.NotEmpty(t, payload.Message)
	assert.Empty(t, payload.Suggestions)
	assert.Empty(t, payload.AvailableTables)
}

func TestClarificationCapsListedResources(t *testing.T) {
	req := directRequest(&models.DirectParams{Kind: models.DirectClarification})
	req.Context.Tables = nil
	for i := 0; i < 8; i++ {
		req.Context.Tables = append(req.Context.Tables, models.TableInfo{
			ID:   fmt.Sprintf("tbl_%d", i),
			Name: fmt.Sprintf("Table %d", i),
		})
	}

	resp, err := NewDirectHandler().Execute(context.Background(), req)
	require.NoError(t, err)

	payload := resp.Data.(*models.FallbackPayload)
	assert.Len(t, payload.AvailableTables, maxListedResources)
}

func TestSuggestionsFor(t *testing.T) {
	qctx := directContext()

	got := SuggestionsFor(qctx, 5)
	assert.Equal(t, []string{
		"show rows from Tasks",
		"how many rows are in Tasks",
		"what does Meeting Notes cover",
	}, got)

	assert.Len(t, SuggestionsFor(qctx, 2), 2)
	assert.Empty(t, SuggestionsFor(&models.QueryContext{}, 5))
}

func TestDirectWrongParamsVariantFails(t *testing.T) {
	req := directRequest(nil)
	req.Route.Params = &models.ActionParams{}

	_, err := NewDirectHandler().Execute(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "route params")
}
