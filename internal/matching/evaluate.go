// Package matching scores candidates against hanging protocol matching rules.
package matching

import (
	"fmt"
	"sort"

	"github.com/mrsinham/dicomhang/internal/protocol"
)

// ErrMatchingRule is returned for rules that cannot be evaluated.
var ErrMatchingRule = protocol.ErrMalformedRule

// Attributes is anything rules can be evaluated against.
type Attributes interface {
	// Lookup resolves a dot path. The boolean is false when the attribute
	// is absent.
	Lookup(path string) (any, bool)
}

// Result is the outcome of evaluating a rule set against one candidate.
type Result struct {
	Score int
	// Satisfied is false when a required rule did not match.
	Satisfied bool
	// Matched is true when the candidate is usable: satisfied, and either
	// scored above zero or evaluated against an empty rule set.
	Matched bool
}

// Evaluate scores candidate against rules. A matching rule adds its weight;
// a failing required rule rejects the candidate with a zero score.
func Evaluate(rules []protocol.MatchingRule, candidate Attributes) (Result, error) {
	score := 0
	for _, rule := range rules {
		if err := rule.Check(); err != nil {
			return Result{}, err
		}
		ok, err := Match(rule, candidate)
		if err != nil {
			return Result{}, err
		}
		if ok {
			score += rule.EffectiveWeight()
			continue
		}
		if rule.Required {
			return Result{Satisfied: false}, nil
		}
	}
	return Result{
		Score:     score,
		Satisfied: true,
		Matched:   score > 0 || len(rules) == 0,
	}, nil
}

// Match reports whether a single rule holds for candidate. A missing
// attribute never matches.
func Match(rule protocol.MatchingRule, candidate Attributes) (bool, error) {
	if err := rule.Check(); err != nil {
		return false, err
	}
	actual, ok := candidate.Lookup(rule.Attribute)
	if !ok || actual == nil {
		return false, nil
	}

	c := rule.Constraint
	checks := []struct {
		op *protocol.Operand
		fn func(actual, expected any) bool
	}{
		{c.Equals, equals},
		{c.NotEquals, func(a, e any) bool { return !equals(a, e) }},
		{c.Contains, func(a, e any) bool { return contains(a, e, false) }},
		{c.ContainsI, func(a, e any) bool { return contains(a, e, true) }},
		{c.GreaterThan, greaterThan},
	}
	for _, check := range checks {
		if check.op == nil {
			continue
		}
		if check.op.Value == nil {
			return false, fmt.Errorf("%w: attribute %q has an operator without a value", ErrMatchingRule, rule.Attribute)
		}
		if !check.fn(actual, check.op.Value) {
			return false, nil
		}
	}
	return true, nil
}

// Ranked is a matched candidate position with its score.
type Ranked struct {
	Ordinal int
	Score   int
}

// Rank keeps the matched results and orders them by score descending, then
// by ordinal ascending.
func Rank(results []Result) []Ranked {
	out := make([]Ranked, 0, len(results))
	for i, r := range results {
		if r.Matched {
			out = append(out, Ranked{Ordinal: i, Score: r.Score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}
