// Package guardrail provides post-hoc content checks over generated text.
// Rules are evaluated against the accumulated transcript; a tripped rule
// lets the caller cancel the in-progress response.
package guardrail

import (
	"fmt"
	"regexp"
	"strings"
)

// Result reports a tripped rule and the offending match.
type Result struct {
	Rule  string
	Match string
}

// Rule checks a piece of text. It returns a non-nil Result when tripped.
type Rule interface {
	Name() string
	Check(text string) *Result
}

// ─────────────────────────────────────────────────────────────────────────────
// Keyword rule
// ─────────────────────────────────────────────────────────────────────────────

type keywordRule struct {
	name     string
	keywords []string // lowercased
}

// Keyword creates a rule tripping when any keyword appears in the text,
// case-insensitively.
func Keyword(name string, keywords ...string) Rule {
	lowered := make([]string, len(keywords))
	for i, k := range keywords {
		lowered[i] = strings.ToLower(k)
	}
	return &keywordRule{name: name, keywords: lowered}
}

func (r *keywordRule) Name() string { return r.name }

func (r *keywordRule) Check(text string) *Result {
	// Indexes into the lowered string are not valid in the original:
	// ToLower can change byte lengths, so the match is reported from the
	// lowered text.
	lowered := strings.ToLower(text)
	for _, k := range r.keywords {
		if k == "" {
			continue
		}
		if idx := strings.Index(lowered, k); idx >= 0 {
			return &Result{Rule: r.name, Match: lowered[idx : idx+len(k)]}
		}
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Regexp rule
// ─────────────────────────────────────────────────────────────────────────────

type regexpRule struct {
	name string
	re   *regexp.Regexp
}

// Pattern creates a rule tripping when the pattern matches the text.
func Pattern(name, pattern string) (Rule, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile guardrail %q: %w", name, err)
	}
	return &regexpRule{name: name, re: re}, nil
}

// MustPattern is Pattern but panics on a bad expression. For use with
// compile-time constants.
func MustPattern(name, pattern string) Rule {
	r, err := Pattern(name, pattern)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *regexpRule) Name() string { return r.name }

func (r *regexpRule) Check(text string) *Result {
	if m := r.re.FindString(text); m != "" {
		return &Result{Rule: r.name, Match: m}
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Rule set
// ─────────────────────────────────────────────────────────────────────────────

// Set evaluates rules in registration order and stops at the first trip.
type Set struct {
	rules []Rule
}

// NewSet creates a rule set.
func NewSet(rules ...Rule) *Set {
	return &Set{rules: rules}
}

// Add appends a rule.
func (s *Set) Add(r Rule) {
	s.rules = append(s.rules, r)
}

// Check runs the rules against text and returns the first trip, or nil.
func (s *Set) Check(text string) *Result {
	for _, r := range s.rules {
		if res := r.Check(text); res != nil {
			return res
		}
	}
	return nil
}

// Len returns the number of registered rules.
func (s *Set) Len() int {
	return len(s.rules)
}
