package routes

import (
	"strconv"
	"strings"
	"time"

	"github.com/thebtf/switchboard/pkg/models"
)

// ApplyFilters returns the rows matching every filter. Filters AND together;
// there is no OR at this level, in/not_in cover the common disjunctions.
func ApplyFilters(rows []models.Row, filters []models.Filter) []models.Row {
	if len(filters) == 0 {
		return rows
	}
	out := make([]models.Row, 0, len(rows))
	for _, row := range rows {
		if rowMatches(row, filters) {
			out = append(out, row)
		}
	}
	return out
}

func rowMatches(row models.Row, filters []models.Filter) bool {
	for _, f := range filters {
		if !matchFilter(row[f.Column], f) {
			return false
		}
	}
	return true
}

// matchFilter evaluates one predicate against one cell. Unknown operators
// match nothing.
func matchFilter(cell any, f models.Filter) bool {
	switch f.Operator {
	case models.OpEquals:
		return equalsLoose(cell, f.Value)
	case models.OpNotEquals:
		return !equalsLoose(cell, f.Value)
	case models.OpContains:
		return containsLoose(cell, f.Value)
	case models.OpNotContains:
		return !containsLoose(cell, f.Value)
	case models.OpGreaterThan:
		cmp, ok := compareLoose(cell, f.Value)
		return ok && cmp > 0
	case models.OpGreaterOrEqual:
		cmp, ok := compareLoose(cell, f.Value)
		return ok && cmp >= 0
	case models.OpLessThan:
		cmp, ok := compareLoose(cell, f.Value)
		return ok && cmp < 0
	case models.OpLessOrEqual:
		cmp, ok := compareLoose(cell, f.Value)
		return ok && cmp <= 0
	case models.OpBetween:
		lo, okLo := compareLoose(cell, f.Value)
		hi, okHi := compareLoose(cell, f.Upper)
		return okLo && okHi && lo >= 0 && hi <= 0
	case models.OpIn:
		return inList(cell, f.Value)
	case models.OpNotIn:
		return !inList(cell, f.Value)
	case models.OpIsEmpty:
		return isEmptyCell(cell)
	case models.OpIsNotEmpty:
		return !isEmptyCell(cell)
	default:
		return false
	}
}

// equalsLoose compares across the value kinds cells actually hold: bools,
// numbers in any width, strings (case-insensitive), and multi-select slices
// where equality means membership.
func equalsLoose(cell, want any) bool {
	if items, ok := asSlice(cell); ok {
		for _, item := range items {
			if equalsLoose(item, want) {
				return true
			}
		}
		return false
	}
	if cb, ok1 := asBool(cell); ok1 {
		if wb, ok2 := asBool(want); ok2 {
			return cb == wb
		}
	}
	if cf, ok1 := asFloat(cell); ok1 {
		if wf, ok2 := asFloat(want); ok2 {
			return cf == wf
		}
	}
	return strings.EqualFold(asString(cell), asString(want))
}

// containsLoose is substring match for text cells and membership for
// multi-select cells.
func containsLoose(cell, want any) bool {
	if items, ok := asSlice(cell); ok {
		for _, item := range items {
			if equalsLoose(item, want) {
				return true
			}
		}
		return false
	}
	return strings.Contains(strings.ToLower(asString(cell)), strings.ToLower(asString(want)))
}

// compareLoose orders cell against operand: numerically when both are
// numbers, chronologically when both parse as dates, lexicographically
// otherwise. The second return is false when the cell is absent.
func compareLoose(cell, operand any) (int, bool) {
	if cell == nil {
		return 0, false
	}
	if cf, ok1 := asFloat(cell); ok1 {
		if of, ok2 := asFloat(operand); ok2 {
			switch {
			case cf < of:
				return -1, true
			case cf > of:
				return 1, true
			default:
				return 0, true
			}
		}
	}
	if ct, ok1 := asTime(cell); ok1 {
		if ot, ok2 := asTime(operand); ok2 {
			switch {
			case ct.Before(ot):
				return -1, true
			case ct.After(ot):
				return 1, true
			default:
				return 0, true
			}
		}
	}
	return strings.Compare(strings.ToLower(asString(cell)), strings.ToLower(asString(operand))), true
}

func inList(cell, list any) bool {
	items, ok := asSlice(list)
	if !ok {
		return equalsLoose(cell, list)
	}
	for _, item := range items {
		if equalsLoose(cell, item) {
			return true
		}
	}
	return false
}

func isEmptyCell(cell any) bool {
	switch v := cell.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		return len(v) == 0
	case []string:
		return len(v) == 0
	default:
		return false
	}
}

func asSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []string:
		out := make([]any, len(s))
		for i, item := range s {
			out[i] = item
		}
		return out, true
	default:
		return nil, false
	}
}

func asBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "yes", "checked":
			return true, true
		case "false", "no", "unchecked":
			return false, true
		}
	}
	return false, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// asTime parses the date representations cells carry: time.Time itself,
// RFC3339, and plain dates.
func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range []string{time.RFC3339, "2006-01-02", "2006-01-02 15:04:05"} {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case bool:
		if s {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	default:
		return ""
	}
}
