// Package similarity provides term extraction and set-overlap scoring used
// by the router to match query text against workspace resource names.
package similarity

import "strings"

// stopWords are tokens carrying no matching signal.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "being": true,
	"have": true, "has": true, "had": true, "do": true, "does": true,
	"did": true, "will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "must": true, "can": true, "of": true,
	"in": true, "on": true, "at": true, "to": true, "for": true,
	"with": true, "by": true, "from": true, "about": true, "all": true,
	"my": true, "me": true, "our": true, "your": true, "i": true,
	"it": true, "its": true, "this": true, "that": true, "these": true,
	"those": true, "and": true, "or": true, "not": true, "no": true,
	"please": true,
}

// Terms tokenizes text into a normalized term set. Tokens are lowercased,
// split on non-alphanumerics, stopword-filtered, and plural-trimmed so
// "Tasks" and "task" land on the same term.
func Terms(text string) map[string]bool {
	terms := make(map[string]bool)
	AddTerms(terms, text)
	return terms
}

// AddTerms tokenizes text into an existing term set.
func AddTerms(terms map[string]bool, text string) {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_')
	})
	for _, w := range words {
		if len(w) < 2 || stopWords[w] {
			continue
		}
		terms[Normalize(w)] = true
	}
}

// Normalize trims a plural "s" from tokens long enough that the trim cannot
// collapse a distinct word ("tasks" -> "task"). Endings that are not plural
// markers (ss, us, is) and short tokens are left alone.
func Normalize(w string) string {
	if len(w) <= 3 || !strings.HasSuffix(w, "s") {
		return w
	}
	for _, keep := range []string{"ss", "us", "is"} {
		if strings.HasSuffix(w, keep) {
			return w
		}
	}
	return w[:len(w)-1]
}

// Jaccard returns |a∩b| / |a∪b|, 0 when both sets are empty.
func Jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Containment returns the fraction of b's terms present in a. It is the
// right score for "is this resource name mentioned in the query": a long
// query fully naming a short table still scores 1.0, where Jaccard would be
// dragged down by the query's extra terms.
func Containment(a, b map[string]bool) float64 {
	if len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range b {
		if a[t] {
			inter++
		}
	}
	return float64(inter) / float64(len(b))
}
