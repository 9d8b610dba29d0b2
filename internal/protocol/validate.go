package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedRule reports a rule that cannot be evaluated.
var ErrMalformedRule = errors.New("malformed matching rule")

// Check reports whether the rule can be evaluated: a non-empty dot path
// without empty segments and at least one operator.
func (r MatchingRule) Check() error {
	if r.Attribute == "" {
		return fmt.Errorf("%w: empty attribute", ErrMalformedRule)
	}
	for _, seg := range strings.Split(r.Attribute, ".") {
		if seg == "" {
			return fmt.Errorf("%w: attribute %q has an empty path segment", ErrMalformedRule, r.Attribute)
		}
	}
	if r.Constraint.Empty() {
		return fmt.Errorf("%w: attribute %q has no constraint operator", ErrMalformedRule, r.Attribute)
	}
	return nil
}

// Validate reports every structural problem of the protocol, joined.
func (p *Protocol) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if p.ID == "" {
		add("protocol id is required")
	}
	if len(p.Stages) == 0 {
		add("protocol %q has no stages", p.ID)
	}
	if p.NumberOfPriorsReferenced < NoPriors {
		add("numberOfPriorsReferenced must be -1 or more, got %d", p.NumberOfPriorsReferenced)
	}

	checkRules := func(where string, rules []MatchingRule) {
		for i, rule := range rules {
			if err := rule.Check(); err != nil {
				add("%s rule %d: %w", where, i, err)
			}
		}
	}
	checkRules("protocolMatchingRules", p.ProtocolMatchingRules)
	for id, sel := range p.DisplaySetSelectors {
		checkRules("selector "+id+" series", sel.SeriesMatchingRules)
		checkRules("selector "+id+" study", sel.StudyMatchingRules)
	}

	checkViewport := func(where string, vp Viewport) {
		for i, ref := range vp.DisplaySets {
			if ref.SelectorID == "" {
				add("%s display set %d: selector id is required", where, i)
				continue
			}
			if _, ok := p.DisplaySetSelectors[ref.SelectorID]; !ok {
				add("%s display set %d: unknown selector %q", where, i, ref.SelectorID)
			}
		}
		if vp.Options.Type == ViewportStack && vp.Options.Volume != nil {
			add("%s: stack viewport carries volume options", where)
		}
	}
	if p.DefaultViewport != nil {
		checkViewport("defaultViewport", *p.DefaultViewport)
	}

	seen := make(map[string]bool)
	for i, s := range p.Stages {
		where := fmt.Sprintf("stage %d (%s)", i, s.Key())
		if seen[s.Key()] {
			add("%s: duplicate stage id", where)
		}
		seen[s.Key()] = true

		vs := s.ViewportStructure
		if len(vs.LayoutOptions) == 0 && (vs.Rows <= 0 || vs.Columns <= 0) {
			add("%s: rows and columns must be positive, got %dx%d", where, vs.Rows, vs.Columns)
		}
		if len(s.Viewports) == 0 {
			add("%s: no viewports", where)
		}
		if s.RequiredViewports < 0 || s.PreferredViewports < 0 {
			add("%s: viewport thresholds must not be negative", where)
		}
		if s.PreferredViewports > 0 && s.PreferredViewports < s.MinViewports() {
			add("%s: preferredViewports %d below requiredViewports %d", where, s.PreferredViewports, s.MinViewports())
		}
		for _, id := range s.RequiredDisplaySets {
			if _, ok := p.DisplaySetSelectors[id]; !ok {
				add("%s: unknown required selector %q", where, id)
			}
		}
		for j, vp := range s.Viewports {
			checkViewport(fmt.Sprintf("%s viewport %d", where, j), vp)
		}
		if s.DefaultViewport != nil {
			checkViewport(where+" defaultViewport", *s.DefaultViewport)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid protocol %q: %w", p.ID, errors.Join(errs...))
}
