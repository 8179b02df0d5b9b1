package router

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/thebtf/switchboard/pkg/models"
	"github.com/thebtf/switchboard/pkg/similarity"
)

// resourceMatch pairs a workspace resource with how strongly the query
// names it.
type resourceMatch struct {
	id      string
	name    string
	score   float64 // term containment of the resource name in the query
	recency float64 // recency/relevance signal in [0,1]
	table   *models.TableInfo
}

// matchTables scores every workspace table against the query term set and
// returns the tables actually named, best first.
func matchTables(terms map[string]bool, qctx *models.QueryContext) []resourceMatch {
	var matches []resourceMatch
	for i := range qctx.Tables {
		t := &qctx.Tables[i]
		score := similarity.Containment(terms, similarity.Terms(t.Name))
		if score <= 0 {
			continue
		}
		recency := t.Relevance
		if t.RecentlyActive {
			recency = 1.0
		}
		matches = append(matches, resourceMatch{
			id:      t.ID,
			name:    t.Name,
			score:   score,
			recency: clamp01(recency),
			table:   t,
		})
	}
	sortMatches(matches)
	return matches
}

// matchPages scores workspace pages against the query term set. Pages
// modified within the freshness window count as recently active.
func matchPages(terms map[string]bool, qctx *models.QueryContext, now time.Time) []resourceMatch {
	const freshWindow = 7 * 24 * time.Hour

	var matches []resourceMatch
	for i := range qctx.Pages {
		p := &qctx.Pages[i]
		score := similarity.Containment(terms, similarity.Terms(p.Title))
		if score <= 0 {
			continue
		}
		recency := p.Relevance
		if !p.LastModified.IsZero() && now.Sub(p.LastModified) < freshWindow {
			recency = 1.0
		}
		matches = append(matches, resourceMatch{
			id:      p.ID,
			name:    p.Title,
			score:   score,
			recency: clamp01(recency),
		})
	}
	sortMatches(matches)
	return matches
}

// sortMatches orders by containment, then recency, then name for
// determinism.
func sortMatches(matches []resourceMatch) {
	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.recency != b.recency {
			return a.recency > b.recency
		}
		return a.name < b.name
	})
}

// statusVocabulary maps query words onto canonical status values. These bind
// to status-like columns even when the column declares no options.
var statusVocabulary = []string{
	"pending", "in progress", "done", "completed", "complete",
	"open", "closed", "blocked", "active", "archived", "cancelled",
}

var emptinessPattern = regexp.MustCompile(`(?i)\b(?:no|without|missing)\s+(?:a\s+|an\s+|any\s+)?([a-z][a-z0-9 _-]*?)(?:\s*$|\s+(?:set|value|assigned)\b|[,.?!])`)

// extractFilters derives row filters from the query for one table:
// select/multi_select option mentions, status vocabulary against status-like
// columns, checkbox column mentions, overdue date shorthand, person columns
// targeted at the requesting user, and "no <column>" emptiness phrases.
func extractFilters(query string, terms map[string]bool, table *models.TableInfo, userID string, now time.Time) []models.Filter {
	if table == nil {
		return nil
	}
	lower := strings.ToLower(query)
	var filters []models.Filter
	bound := map[string]bool{}

	// Select options declared on the column win over the generic vocabulary.
	for _, col := range table.Columns {
		if col.Type != models.ColumnSelect && col.Type != models.ColumnMultiSelect {
			continue
		}
		var hits []any
		for _, opt := range col.Options {
			if phraseMentioned(lower, terms, opt) {
				hits = append(hits, opt)
			}
		}
		switch len(hits) {
		case 0:
		case 1:
			filters = append(filters, models.Filter{Column: col.Name, Operator: models.OpEquals, Value: hits[0]})
			bound[col.Name] = true
		default:
			filters = append(filters, models.Filter{Column: col.Name, Operator: models.OpIn, Value: hits})
			bound[col.Name] = true
		}
	}

	// Status vocabulary for status-like columns without declared options.
	for _, col := range table.Columns {
		if bound[col.Name] || !isStatusColumn(col) {
			continue
		}
		for _, status := range statusVocabulary {
			if phraseMentioned(lower, terms, status) {
				filters = append(filters, models.Filter{Column: col.Name, Operator: models.OpEquals, Value: status})
				bound[col.Name] = true
				break
			}
		}
	}

	// A checkbox column named in the query filters to checked rows.
	for _, col := range table.Columns {
		if col.Type != models.ColumnCheckbox || bound[col.Name] {
			continue
		}
		if phraseMentioned(lower, terms, col.Name) {
			filters = append(filters, models.Filter{Column: col.Name, Operator: models.OpEquals, Value: true})
			bound[col.Name] = true
		}
	}

	// "overdue" binds to the first due-like date column.
	if strings.Contains(lower, "overdue") {
		for _, col := range table.Columns {
			if col.Type != models.ColumnDate || bound[col.Name] {
				continue
			}
			name := strings.ToLower(col.Name)
			if strings.Contains(name, "due") || strings.Contains(name, "deadline") {
				filters = append(filters, models.Filter{Column: col.Name, Operator: models.OpLessThan, Value: now.Format(time.RFC3339)})
				bound[col.Name] = true
				break
			}
		}
	}

	// "assigned to me" / "my ..." binds person columns to the caller.
	if userID != "" && (strings.Contains(lower, "assigned to me") || strings.Contains(lower, " my ") || strings.HasPrefix(lower, "my ")) {
		for _, col := range table.Columns {
			if col.Type != models.ColumnPerson || bound[col.Name] {
				continue
			}
			filters = append(filters, models.Filter{Column: col.Name, Operator: models.OpEquals, Value: userID})
			bound[col.Name] = true
			break
		}
	}

	// "no assignee", "without a due date" and similar emptiness phrases.
	for _, m := range emptinessPattern.FindAllStringSubmatch(lower, -1) {
		if col := columnByMention(table, m[1]); col != nil && !bound[col.Name] {
			filters = append(filters, models.Filter{Column: col.Name, Operator: models.OpIsEmpty})
			bound[col.Name] = true
		}
	}

	return filters
}

// phraseMentioned reports whether a possibly multi-word phrase appears in
// the query. Single words match through the normalized term set so plurals
// line up; multi-word phrases match as raw substrings.
func phraseMentioned(lowerQuery string, terms map[string]bool, phrase string) bool {
	p := strings.ToLower(strings.TrimSpace(phrase))
	if p == "" {
		return false
	}
	if strings.ContainsRune(p, ' ') {
		return strings.Contains(lowerQuery, p)
	}
	return terms[similarity.Normalize(p)]
}

func isStatusColumn(col models.ColumnInfo) bool {
	if col.Type != models.ColumnSelect && col.Type != models.ColumnMultiSelect && col.Type != models.ColumnText {
		return false
	}
	name := strings.ToLower(col.Name)
	return strings.Contains(name, "status") || strings.Contains(name, "state") || strings.Contains(name, "stage")
}

// columnByMention resolves a query fragment to a column by normalized term
// containment, so "due date", "due dates" and "duedate" all find "Due Date".
func columnByMention(table *models.TableInfo, mention string) *models.ColumnInfo {
	mentionTerms := similarity.Terms(mention)
	if len(mentionTerms) == 0 {
		return nil
	}
	for i := range table.Columns {
		col := &table.Columns[i]
		if similarity.Containment(mentionTerms, similarity.Terms(col.Name)) == 1.0 {
			return col
		}
	}
	return nil
}

// matchColumn finds the first column of the wanted type whose name the query
// mentions. An empty wanted type matches any column.
func matchColumn(terms map[string]bool, table *models.TableInfo, wanted models.ColumnType) *models.ColumnInfo {
	for i := range table.Columns {
		col := &table.Columns[i]
		if wanted != "" && col.Type != wanted {
			continue
		}
		if similarity.Containment(terms, similarity.Terms(col.Name)) == 1.0 {
			return col
		}
	}
	return nil
}

var lastNDaysPattern = regexp.MustCompile(`(?i)\b(?:last|past)\s+(\d{1,3})\s+days?\b`)

// parseTimeRange recognizes relative date phrases. The returned range is
// half-open [Start, End).
func parseTimeRange(query string, now time.Time) *models.TimeRange {
	lower := strings.ToLower(query)
	day := startOfDay(now)

	switch {
	case strings.Contains(lower, "today"):
		return &models.TimeRange{Start: day, End: day.AddDate(0, 0, 1)}
	case strings.Contains(lower, "yesterday"):
		return &models.TimeRange{Start: day.AddDate(0, 0, -1), End: day}
	case strings.Contains(lower, "this week"):
		start := startOfWeek(now)
		return &models.TimeRange{Start: start, End: start.AddDate(0, 0, 7)}
	case strings.Contains(lower, "last week"):
		start := startOfWeek(now).AddDate(0, 0, -7)
		return &models.TimeRange{Start: start, End: start.AddDate(0, 0, 7)}
	case strings.Contains(lower, "this month"):
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return &models.TimeRange{Start: start, End: start.AddDate(0, 1, 0)}
	case strings.Contains(lower, "last month"):
		end := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return &models.TimeRange{Start: end.AddDate(0, -1, 0), End: end}
	case strings.Contains(lower, "this quarter"):
		start := startOfQuarter(now)
		return &models.TimeRange{Start: start, End: start.AddDate(0, 3, 0)}
	case strings.Contains(lower, "last quarter"):
		end := startOfQuarter(now)
		return &models.TimeRange{Start: end.AddDate(0, -3, 0), End: end}
	case strings.Contains(lower, "this year"):
		start := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location())
		return &models.TimeRange{Start: start, End: start.AddDate(1, 0, 0)}
	}
	if m := lastNDaysPattern.FindStringSubmatch(lower); m != nil {
		n := 0
		for _, r := range m[1] {
			n = n*10 + int(r-'0')
		}
		if n > 0 {
			return &models.TimeRange{Start: day.AddDate(0, 0, -n), End: day.AddDate(0, 0, 1)}
		}
	}
	return nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// startOfWeek returns the Monday 00:00 of t's week.
func startOfWeek(t time.Time) time.Time {
	day := startOfDay(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func startOfQuarter(t time.Time) time.Time {
	month := time.Month((int(t.Month())-1)/3*3 + 1)
	return time.Date(t.Year(), month, 1, 0, 0, 0, 0, t.Location())
}

// aggregationSignals maps query phrases to aggregation kinds, checked in
// order so "how many" wins before a bare "average" elsewhere in the query
// adds a second kind.
var aggregationSignals = []struct {
	phrase string
	kind   models.AggregationKind
}{
	{"how many", models.AggCount},
	{"count", models.AggCount},
	{"number of", models.AggCount},
	{"total", models.AggSum},
	{"sum", models.AggSum},
	{"average", models.AggAverage},
	{"avg", models.AggAverage},
	{"mean", models.AggAverage},
	{"median", models.AggMedian},
	{"p95", models.AggP95},
	{"95th percentile", models.AggP95},
	{"p90", models.AggP90},
	{"90th percentile", models.AggP90},
	{"minimum", models.AggMin},
	{"lowest", models.AggMin},
	{"min ", models.AggMin},
	{"maximum", models.AggMax},
	{"highest", models.AggMax},
	{"max ", models.AggMax},
}

// parseAggregations extracts the requested aggregation kinds, deduped. The
// second return reports whether any kind was named explicitly; a query that
// signalled aggregation intent without one defaults to count.
func parseAggregations(query string) ([]models.AggregationKind, bool) {
	lower := strings.ToLower(query) + " "
	var kinds []models.AggregationKind
	seen := map[models.AggregationKind]bool{}
	for _, sig := range aggregationSignals {
		if strings.Contains(lower, sig.phrase) && !seen[sig.kind] {
			kinds = append(kinds, sig.kind)
			seen[sig.kind] = true
		}
	}
	if len(kinds) == 0 {
		return []models.AggregationKind{models.AggCount}, false
	}
	return kinds, true
}

var groupByPattern = regexp.MustCompile(`(?i)\b(?:by|per|grouped by|broken down by)\s+([a-z][a-z0-9 _-]{0,40})`)

// parseGroupBy resolves a "by <column>" phrase to a column name on the
// matched table.
func parseGroupBy(query string, table *models.TableInfo) string {
	if table == nil {
		return ""
	}
	for _, m := range groupByPattern.FindAllStringSubmatch(strings.ToLower(query), -1) {
		fragment := m[1]
		// Try progressively shorter prefixes of the captured fragment so
		// "by status this week" still resolves to the status column.
		words := strings.Fields(fragment)
		for n := len(words); n > 0; n-- {
			if col := columnByMention(table, strings.Join(words[:n], " ")); col != nil {
				return col.Name
			}
		}
	}
	return ""
}

// actionVerbs maps the leading verb of an imperative query to an action.
var actionVerbs = map[string]models.ActionType{
	"create":  models.ActionCreate,
	"add":     models.ActionCreate,
	"make":    models.ActionCreate,
	"delete":  models.ActionDelete,
	"remove":  models.ActionDelete,
	"update":  models.ActionUpdate,
	"change":  models.ActionUpdate,
	"rename":  models.ActionUpdate,
	"assign":  models.ActionUpdate,
	"share":   models.ActionShare,
	"archive": models.ActionArchive,
	"remind":  models.ActionRemind,
}

// parseAction splits an imperative query into an action type and its target
// phrase. The target keeps the user's wording minus leading articles.
func parseAction(query string) (models.ActionType, string, bool) {
	trimmed := strings.TrimSpace(query)
	fields := strings.Fields(strings.ToLower(trimmed))
	if len(fields) == 0 {
		return "", "", false
	}
	action, ok := actionVerbs[fields[0]]
	if !ok {
		return "", "", false
	}

	rest := strings.TrimSpace(trimmed[len(fields[0]):])
	lower := strings.ToLower(rest)
	for _, prefix := range []string{"me to ", "me ", "a new ", "an ", "a ", "the ", "to "} {
		if strings.HasPrefix(lower, prefix) {
			rest = strings.TrimSpace(rest[len(prefix):])
			lower = strings.ToLower(rest)
		}
	}
	return action, strings.TrimRight(rest, " .!?"), true
}

// requiresConfirmation reports whether an action mutates or exposes existing
// data and therefore needs explicit user confirmation before any execution.
func requiresConfirmation(action models.ActionType) bool {
	switch action {
	case models.ActionDelete, models.ActionArchive, models.ActionUpdate, models.ActionShare:
		return true
	default:
		return false
	}
}
