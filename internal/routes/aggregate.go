package routes

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/switchboard/pkg/models"
)

const (
	// emptyGroupKey labels rows whose group-by cell is blank.
	emptyGroupKey = "(empty)"

	// maxGroups caps group cardinality; beyond it the long tail collapses
	// into one remainder group.
	maxGroups = 50

	// maxBarGroups is the largest cardinality still readable as a bar
	// chart. Above it results render as a table.
	maxBarGroups = 24
)

// AggregateHandler computes numeric aggregations, optionally grouped, and
// suggests a chart type from the query's phrasing.
type AggregateHandler struct {
	store TableStore
}

var _ Handler = (*AggregateHandler)(nil)

// NewAggregateHandler creates the aggregation handler.
func NewAggregateHandler(store TableStore) *AggregateHandler {
	return &AggregateHandler{store: store}
}

// Type implements Handler.
func (h *AggregateHandler) Type() models.RouteType { return models.RouteAggregate }

// Execute implements Handler. Aggregation runs over the first targeted
// table; an empty row set yields zero values rather than an error.
func (h *AggregateHandler) Execute(ctx context.Context, req *Request) (*models.QueryResponse, error) {
	params, ok := req.Route.Params.(*models.AggregateParams)
	if !ok {
		return nil, paramsError("aggregate", req.Route.Params)
	}
	if len(params.TableIDs) == 0 {
		return nil, errors.New("no tables targeted")
	}
	if len(params.TableIDs) > 1 {
		log.Warn().Int("tables", len(params.TableIDs)).Msg("aggregate route targets multiple tables, using first")
	}

	table, err := h.store.TableData(ctx, req.WorkspaceID, params.TableIDs[0])
	if err != nil {
		return nil, fmt.Errorf("load table %s: %w", params.TableIDs[0], err)
	}

	rows := table.Rows
	if params.TimeRange != nil {
		rows = applyTimeRange(rows, table, params.TimeRange)
	}

	columns := targetColumns(table, params.Column)
	var groups []models.AggregateGroup
	if params.GroupBy != "" {
		groups = groupedAggregates(rows, params.GroupBy, params.Aggregations, columns)
	} else {
		groups = []models.AggregateGroup{aggregateRows("", rows, params.Aggregations, columns)}
	}

	payload := &models.ChartPayload{
		ChartType: chartTypeFor(req.Query, params.GroupBy, len(groups)),
		TableName: table.Name,
		GroupBy:   params.GroupBy,
		Groups:    groups,
	}
	return &models.QueryResponse{
		Type: models.ResponseChart,
		Data: payload,
		Metadata: models.ResponseMetadata{
			Source:     "aggregate",
			Confidence: req.Confidence,
			RowCount:   models.IntPtr(len(rows)),
		},
	}, nil
}

// applyTimeRange keeps rows whose date cell falls in [Start, End). A range
// naming no column binds to the table's first date column; a table without
// one keeps all rows.
func applyTimeRange(rows []models.Row, table *models.Table, tr *models.TimeRange) []models.Row {
	column := tr.Column
	if column == "" {
		for _, col := range table.Columns {
			if col.Type == models.ColumnDate {
				column = col.Name
				break
			}
		}
	}
	if column == "" {
		return rows
	}
	return ApplyFilters(rows, []models.Filter{
		{Column: column, Operator: models.OpGreaterOrEqual, Value: tr.Start},
		{Column: column, Operator: models.OpLessThan, Value: tr.End},
	})
}

// targetColumns resolves which numeric columns to aggregate: the named one,
// or every number-typed column when none is named.
func targetColumns(table *models.Table, named string) []string {
	if named != "" {
		return []string{named}
	}
	var cols []string
	for _, col := range table.Columns {
		if col.Type == models.ColumnNumber {
			cols = append(cols, col.Name)
		}
	}
	return cols
}

func groupedAggregates(rows []models.Row, groupBy string, kinds []models.AggregationKind, columns []string) []models.AggregateGroup {
	buckets := make(map[string][]models.Row)
	var order []string
	for _, row := range rows {
		key := asString(row[groupBy])
		if key == "" {
			key = emptyGroupKey
		}
		if _, seen := buckets[key]; !seen {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], row)
	}

	// Largest groups first, alphabetical inside ties, long tail collapsed.
	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if len(buckets[a]) != len(buckets[b]) {
			return len(buckets[a]) > len(buckets[b])
		}
		return a < b
	})

	groups := make([]models.AggregateGroup, 0, len(order))
	for i, key := range order {
		if i >= maxGroups {
			var rest []models.Row
			for _, k := range order[i:] {
				rest = append(rest, buckets[k]...)
			}
			groups = append(groups, aggregateRows("(other)", rest, kinds, columns))
			break
		}
		groups = append(groups, aggregateRows(key, buckets[key], kinds, columns))
	}
	return groups
}

// aggregateRows computes every requested kind over every target column for
// one group. Count lives on the group itself, not in Values.
func aggregateRows(key string, rows []models.Row, kinds []models.AggregationKind, columns []string) models.AggregateGroup {
	group := models.AggregateGroup{Key: key, Count: len(rows), Values: []models.AggregateValue{}}
	for _, kind := range kinds {
		if kind == models.AggCount {
			continue
		}
		for _, column := range columns {
			values := collectNumbers(rows, column)
			group.Values = append(group.Values, models.AggregateValue{
				Column: column,
				Kind:   kind,
				Value:  aggregate(kind, values),
			})
		}
	}
	return group
}

func collectNumbers(rows []models.Row, column string) []float64 {
	values := make([]float64, 0, len(rows))
	for _, row := range rows {
		if f, ok := asFloat(row[column]); ok {
			values = append(values, f)
		}
	}
	return values
}

// aggregate computes one kind over a value set. Empty sets yield 0.
func aggregate(kind models.AggregationKind, values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	switch kind {
	case models.AggSum:
		return sum(values)
	case models.AggAverage:
		return sum(values) / float64(len(values))
	case models.AggMin:
		m := values[0]
		for _, v := range values[1:] {
			if v < m {
				m = v
			}
		}
		return m
	case models.AggMax:
		m := values[0]
		for _, v := range values[1:] {
			if v > m {
				m = v
			}
		}
		return m
	case models.AggMedian:
		return median(values)
	case models.AggP90:
		return percentile(values, 0.90)
	case models.AggP95:
		return percentile(values, 0.95)
	default:
		return float64(len(values))
	}
}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}

// median averages the two middle values on even counts.
func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// percentile uses the nearest-rank method.
func percentile(values []float64, q float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	rank := int(math.Ceil(q*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}

// chartTypeFor picks a visualization: explicit phrasing wins, then group
// cardinality decides between bar and plain table.
func chartTypeFor(query, groupBy string, groupCount int) models.ChartType {
	lower := strings.ToLower(query)
	switch {
	case strings.Contains(lower, "trend") || strings.Contains(lower, "over time"):
		return models.ChartLine
	case strings.Contains(lower, "compar") || strings.Contains(lower, "versus") || strings.Contains(lower, " vs"):
		return models.ChartBar
	case strings.Contains(lower, "distribution") || strings.Contains(lower, "breakdown"):
		return models.ChartPie
	case groupBy != "" && groupCount >= 2 && groupCount <= maxBarGroups:
		return models.ChartBar
	default:
		return models.ChartTable
	}
}
