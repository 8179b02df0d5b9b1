// Package router maps (query, context) onto a routing decision: a primary
// execution strategy, an optional secondary, typed parameters, and a
// confidence estimate. It never errors; low-signal input degrades to a
// low-confidence clarification route.
package router

import (
	"regexp"
	"strings"

	"github.com/thebtf/switchboard/pkg/similarity"
)

// IntentType is the coarse query classification feeding route selection.
type IntentType string

// Intent types.
const (
	IntentDataQuery     IntentType = "data_query"
	IntentAggregation   IntentType = "aggregation"
	IntentContentSearch IntentType = "content_search"
	IntentAction        IntentType = "action"
	IntentNavigation    IntentType = "navigation"
	IntentHelp          IntentType = "help"
	IntentGreeting      IntentType = "greeting"
	IntentUnknown       IntentType = "unknown"
)

// Intent is the classification result. Terms is the normalized significant
// term set of the query, reused by table and filter matching. Signals lists
// the matched pattern fragments for debug output.
type Intent struct {
	Type    IntentType
	Terms   map[string]bool
	Signals []string
}

// intentPatterns maps each intent to the expressions that signal it.
// Imperative intents (greeting, action, navigation) anchor at the start of
// the query so "show newly created tasks" is not mistaken for a create.
var intentPatterns = map[IntentType][]*regexp.Regexp{
	IntentGreeting: {
		regexp.MustCompile(`(?i)^(hi|hello|hey|thanks|thank you|good (morning|afternoon|evening))\b`),
	},
	IntentHelp: {
		regexp.MustCompile(`(?i)\b(help|how do i|how can i|what can you do|what can i ask)\b`),
	},
	IntentNavigation: {
		regexp.MustCompile(`(?i)\b(where is|where can i find|open|go to|take me to|navigate to)\b`),
	},
	IntentAction: {
		regexp.MustCompile(`(?i)^(create|add|make|delete|remove|update|change|rename|archive|share|assign)\b`),
		regexp.MustCompile(`(?i)^remind me\b`),
	},
	IntentAggregation: {
		regexp.MustCompile(`(?i)\b(how many|count|total|sum|average|avg|mean|median|percentile)\b`),
		regexp.MustCompile(`(?i)\b(minimum|maximum|highest|lowest)\b`),
		regexp.MustCompile(`(?i)\b(trend|over time|per (day|week|month)|compare|comparison|versus|vs\.?|distribution|breakdown)\b`),
	},
	IntentDataQuery: {
		regexp.MustCompile(`(?i)\b(show|list|find|filter|display|get|give me|which|all)\b`),
		regexp.MustCompile(`(?i)\b(rows?|records?|entries|items?|overdue|pending|assigned)\b`),
	},
	IntentContentSearch: {
		regexp.MustCompile(`(?i)\b(what (did|do|does|was|were)|what about|anything about|notes? (on|about|from)|mentions? of|wrote|said|discussed?|summar(y|ize))\b`),
		regexp.MustCompile(`(?i)\b(document|page|passage|meeting|spec|doc)\b`),
	},
}

// intentPriority breaks score ties: the earlier entry wins. Specific,
// anchored intents outrank the broad query intents.
var intentPriority = []IntentType{
	IntentGreeting,
	IntentHelp,
	IntentNavigation,
	IntentAction,
	IntentAggregation,
	IntentDataQuery,
	IntentContentSearch,
}

// ClassifyIntent classifies query text. It always returns a usable Intent;
// a query matching nothing classifies as IntentUnknown with the term set
// still populated.
func ClassifyIntent(query string) Intent {
	trimmed := strings.TrimSpace(query)
	intent := Intent{
		Type:  IntentUnknown,
		Terms: similarity.Terms(trimmed),
	}
	if trimmed == "" {
		return intent
	}

	bestScore := 0
	for _, it := range intentPriority {
		score := 0
		var signals []string
		for _, pattern := range intentPatterns[it] {
			if m := pattern.FindString(trimmed); m != "" {
				score++
				signals = append(signals, strings.ToLower(m))
			}
		}
		if score > bestScore {
			bestScore = score
			intent.Type = it
			intent.Signals = signals
		}
	}
	return intent
}

// decisiveIntents are conclusive on a single pattern hit. Their patterns are
// anchored or highly specific, so one match is not ambiguous the way a lone
// "show" is for a data query.
var decisiveIntents = map[IntentType]bool{
	IntentGreeting:   true,
	IntentHelp:       true,
	IntentNavigation: true,
	IntentAction:     true,
}

// patternStrength scores how decisively the query's phrasing selects the
// given intent, in [0,1]. One pattern family agreeing is a real but weak
// signal; two or more is conclusive, as is any hit on a decisive intent.
func patternStrength(query string, it IntentType) float64 {
	hits := 0
	for _, pattern := range intentPatterns[it] {
		if pattern.MatchString(query) {
			hits++
		}
	}
	switch {
	case hits == 0:
		return 0
	case decisiveIntents[it] || hits >= 2:
		return 1.0
	default:
		return 0.6
	}
}
