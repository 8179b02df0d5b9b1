package routes

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/thebtf/switchboard/internal/config"
	"github.com/thebtf/switchboard/pkg/models"
)

type fakeTableStore struct {
	tables map[string]*models.Table
	err    error
}

func (f *fakeTableStore) TableData(_ context.Context, _, tableID string) (*models.Table, error) {
	if f.err != nil {
		return nil, f.err
	}
	t, ok := f.tables[tableID]
	if !ok {
		return nil, fmt.Errorf("table %s not found", tableID)
	}
	return t, nil
}

func testTasksTable() *models.Table {
	return &models.Table{
		ID:   "tbl_tasks",
		Name: "Tasks",
		Columns: []models.ColumnInfo{
			{ID: "c1", Name: "Title", Type: models.ColumnText},
			{ID: "c2", Name: "Status", Type: models.ColumnSelect, Options: []string{"pending", "in progress", "done"}},
			{ID: "c3", Name: "Points", Type: models.ColumnNumber},
			{ID: "c4", Name: "Due Date", Type: models.ColumnDate},
			{ID: "c5", Name: "Ticket", Type: models.ColumnURL},
		},
		Rows: []models.Row{
			{"Title": "Write launch brief", "Status": "pending", "Points": 3.0, "Due Date": "2025-06-17", "Ticket": "https://tracker.acme.dev/T-101"},
			{"Title": "Fix search bug", "Status": "pending", "Points": 8.0, "Due Date": "2025-06-20", "Ticket": "https://github.com/acme/search/issues/88"},
			{"Title": "Ship billing page", "Status": "in progress", "Points": 5.0, "Due Date": "2025-06-19", "Ticket": "https://tracker.acme.dev/T-114"},
			{"Title": "Retro notes", "Status": "done", "Points": 2.0, "Due Date": "2025-06-10"},
		},
	}
}

type DatabaseSuite struct {
	suite.Suite
	store   *fakeTableStore
	handler *DatabaseHandler
}

func (s *DatabaseSuite) SetupTest() {
	s.store = &fakeTableStore{tables: map[string]*models.Table{"tbl_tasks": testTasksTable()}}
	s.handler = NewDatabaseHandler(s.store, config.Default())
}

func (s *DatabaseSuite) request(params *models.DatabaseParams) *Request {
	return &Request{
		Query:       "show tasks",
		WorkspaceID: "ws_1",
		Route:       models.Route{Type: models.RouteDatabase, Params: params},
		Confidence:  0.92,
	}
}

func (s *DatabaseSuite) TestFiltersRows() {
	resp, err := s.handler.Execute(context.Background(), s.request(&models.DatabaseParams{
		TableIDs: []string{"tbl_tasks"},
		Filters:  []models.Filter{{Column: "Status", Operator: models.OpEquals, Value: "pending"}},
	}))
	s.Require().NoError(err)

	s.Equal(models.ResponseData, resp.Type)
	s.Equal("database", resp.Metadata.Source)
	s.InDelta(0.92, resp.Metadata.Confidence, 1e-9, "inherits decision confidence")
	s.Require().NotNil(resp.Metadata.RowCount)
	s.Equal(2, *resp.Metadata.RowCount)

	payload := resp.Data.(*models.TablePayload)
	s.Require().Len(payload.Tables, 1)
	s.Equal("Tasks", payload.Tables[0].TableName)
	s.Len(payload.Tables[0].Rows, 2)
}

func (s *DatabaseSuite) TestFiltersURLColumn() {
	resp, err := s.handler.Execute(context.Background(), s.request(&models.DatabaseParams{
		TableIDs: []string{"tbl_tasks"},
		Filters:  []models.Filter{{Column: "Ticket", Operator: models.OpContains, Value: "github.com"}},
	}))
	s.Require().NoError(err)

	payload := resp.Data.(*models.TablePayload)
	s.Require().Len(payload.Tables[0].Rows, 1)
	s.Equal("Fix search bug", payload.Tables[0].Rows[0]["Title"])
}

func (s *DatabaseSuite) TestZeroRowsIsNotAnError() {
	resp, err := s.handler.Execute(context.Background(), s.request(&models.DatabaseParams{
		TableIDs: []string{"tbl_tasks"},
		Filters:  []models.Filter{{Column: "Status", Operator: models.OpEquals, Value: "archived"}},
	}))
	s.Require().NoError(err)

	s.Equal(models.ResponseData, resp.Type)
	s.Require().NotNil(resp.Metadata.RowCount)
	s.Equal(0, *resp.Metadata.RowCount)
}

func (s *DatabaseSuite) TestLimitTruncates() {
	resp, err := s.handler.Execute(context.Background(), s.request(&models.DatabaseParams{
		TableIDs: []string{"tbl_tasks"},
		Limit:    2,
	}))
	s.Require().NoError(err)

	payload := resp.Data.(*models.TablePayload)
	s.Len(payload.Tables[0].Rows, 2)
	s.True(payload.Tables[0].Truncated)
	s.Equal(2, *resp.Metadata.RowCount)
}

func (s *DatabaseSuite) TestDefaultLimitFromConfig() {
	cfg := config.Default()
	cfg.DefaultRowLimit = 1
	handler := NewDatabaseHandler(s.store, cfg)

	resp, err := handler.Execute(context.Background(), s.request(&models.DatabaseParams{
		TableIDs: []string{"tbl_tasks"},
	}))
	s.Require().NoError(err)

	payload := resp.Data.(*models.TablePayload)
	s.Len(payload.Tables[0].Rows, 1)
	s.True(payload.Tables[0].Truncated)
}

func (s *DatabaseSuite) TestMissingTableFails() {
	_, err := s.handler.Execute(context.Background(), s.request(&models.DatabaseParams{
		TableIDs: []string{"tbl_gone"},
	}))
	s.Error(err)
	s.Contains(err.Error(), "tbl_gone")
}

func (s *DatabaseSuite) TestStoreErrorFails() {
	s.store.err = errors.New("connection reset")
	_, err := s.handler.Execute(context.Background(), s.request(&models.DatabaseParams{
		TableIDs: []string{"tbl_tasks"},
	}))
	s.Error(err)
}

func (s *DatabaseSuite) TestNoTablesFails() {
	_, err := s.handler.Execute(context.Background(), s.request(&models.DatabaseParams{}))
	s.Error(err)
}

func (s *DatabaseSuite) TestWrongParamsVariantFails() {
	req := s.request(nil)
	req.Route = models.Route{Type: models.RouteDatabase, Params: &models.DirectParams{}}
	_, err := s.handler.Execute(context.Background(), req)
	s.Error(err)
}

func TestDatabaseSuite(t *testing.T) {
	suite.Run(t, new(DatabaseSuite))
}
