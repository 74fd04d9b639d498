package nlu

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/hrygo/coursesense/config"
)

// compiledRule is an intent rule with its regex patterns compiled once at
// load. The rule table is immutable after construction.
type compiledRule struct {
	intent           Intent
	keywords         []string
	patterns         []*regexp.Regexp
	requiredKeywords []string
	requiredGroups   [][]string
	exclusions       []string
	priority         int
	requiresContext  bool
}

// RuleMatcher scores the full intent-rule table against an utterance.
// Score = 10*keywords + 15*patterns + (20 - priority); candidates failing
// required keywords, required groups, or carrying an exclusion are dropped.
type RuleMatcher struct {
	rules []compiledRule
}

// NewRuleMatcher compiles the rule table. Invalid regex patterns are
// skipped with a warning rather than failing the whole table.
func NewRuleMatcher(rules []config.IntentRule) *RuleMatcher {
	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		intent := Intent(rule.Intent)
		if !intent.Valid() {
			slog.Warn("skipping rule for unknown intent", "intent", rule.Intent)
			continue
		}
		cr := compiledRule{
			intent:           intent,
			keywords:         rule.Keywords,
			requiredKeywords: rule.RequiredKeywords,
			requiredGroups:   rule.RequiredGroups,
			exclusions:       rule.Exclusions,
			priority:         rule.Priority,
			requiresContext:  rule.RequiresContext,
		}
		for _, pattern := range rule.Patterns {
			re, err := regexp.Compile(pattern)
			if err != nil {
				slog.Warn("skipping invalid rule pattern", "intent", rule.Intent, "pattern", pattern, "error", err)
				continue
			}
			cr.patterns = append(cr.patterns, re)
		}
		compiled = append(compiled, cr)
	}
	return &RuleMatcher{rules: compiled}
}

// candidate is one scored rule match.
type candidate struct {
	intent   Intent
	score    int
	priority int
}

// Match scores every rule against text and returns the best intent.
// Tiebreak: score descending, then priority ascending.
func (m *RuleMatcher) Match(text string) (Intent, bool) {
	normalized := normalizeInput(text)

	var candidates []candidate
	for _, rule := range m.rules {
		if excluded(normalized, rule.exclusions) {
			continue
		}
		if !requiredSatisfied(normalized, rule.requiredKeywords, rule.requiredGroups) {
			continue
		}

		score := 0
		if containsAny(normalized, rule.keywords) {
			score += 10
		}
		if matchesAny(text, rule.patterns) {
			score += 15
		}
		if score == 0 {
			continue
		}
		score += 20 - rule.priority

		candidates = append(candidates, candidate{
			intent:   rule.intent,
			score:    score,
			priority: rule.priority,
		})
	}

	if len(candidates) == 0 {
		return IntentUnknown, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].priority < candidates[j].priority
	})

	best := candidates[0]
	slog.Debug("rule matcher selected intent",
		"intent", best.intent,
		"score", best.score,
		"candidates", len(candidates))
	return best.intent, true
}

func excluded(text string, exclusions []string) bool {
	for _, ex := range exclusions {
		if ex != "" && strings.Contains(text, strings.ToLower(ex)) {
			return true
		}
	}
	return false
}

func requiredSatisfied(text string, requiredKeywords []string, requiredGroups [][]string) bool {
	// required_keywords is a disjunction.
	if len(requiredKeywords) > 0 && !containsAny(text, requiredKeywords) {
		return false
	}
	// Each required group must intersect the text.
	for _, group := range requiredGroups {
		if len(group) > 0 && !containsAny(text, group) {
			return false
		}
	}
	return true
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func matchesAny(text string, patterns []*regexp.Regexp) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// normalizeInput strips punctuation and lowercases for faster matching.
func normalizeInput(input string) string {
	// Quick ASCII-only path (most common for English/mixed input)
	isASCII := true
	for _, r := range input {
		if r > unicode.MaxASCII {
			isASCII = false
			break
		}
	}
	if isASCII {
		return strings.ToLower(input)
	}

	result := strings.Builder{}
	result.Grow(len(input))
	for _, r := range input {
		// Skip common punctuation
		if r == ' ' || r == ',' || r == '。' || r == '，' ||
			r == '？' || r == '?' || r == '！' || r == '!' ||
			r == '、' || r == '\t' || r == '\n' {
			continue
		}
		if r <= 'Z' && r >= 'A' {
			r += 32
		}
		result.WriteRune(r)
	}
	return result.String()
}
