// Package hanging decides what a protocol stage shows: it resolves ranked
// display set candidates per selector, computes stage status, and plans the
// viewport grid for a stage.
package hanging

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mrsinham/dicomhang/internal/displayset"
	"github.com/mrsinham/dicomhang/internal/matching"
	"github.com/mrsinham/dicomhang/internal/protocol"
)

// Match is one ranked candidate of a selector.
type Match struct {
	DisplaySet displayset.DisplaySet
	Score      int
	// Ordinal is the position of the display set in the study's list.
	Ordinal int
}

// InstanceUID returns the display set instance UID of the match.
func (m Match) InstanceUID() string {
	return m.DisplaySet.InstanceUID
}

// Resolve ranks the display sets of a study against one selector. Study
// rules gate the series rules: a failing required study rule removes every
// candidate, and the study score is added to each series score.
func Resolve(sel protocol.DisplaySetSelector, study displayset.Study, sets []displayset.DisplaySet) ([]Match, error) {
	studyResult, err := matching.Evaluate(sel.StudyMatchingRules, study)
	if err != nil {
		return nil, fmt.Errorf("study rules: %w", err)
	}
	if !studyResult.Satisfied {
		return nil, nil
	}

	noRules := len(sel.StudyMatchingRules) == 0 && len(sel.SeriesMatchingRules) == 0
	results := make([]matching.Result, len(sets))
	for i, ds := range sets {
		r, err := matching.Evaluate(sel.SeriesMatchingRules, ds)
		if err != nil {
			return nil, fmt.Errorf("series rules: %w", err)
		}
		if !r.Satisfied {
			continue
		}
		total := r.Score + studyResult.Score
		results[i] = matching.Result{
			Score:     total,
			Satisfied: true,
			Matched:   total > 0 || noRules,
		}
	}

	ranked := matching.Rank(results)
	out := make([]Match, len(ranked))
	for i, r := range ranked {
		out[i] = Match{DisplaySet: sets[r.Ordinal], Score: r.Score, Ordinal: r.Ordinal}
	}
	return out, nil
}

// MatchContext evaluates selectors of one protocol against one study on
// demand and remembers the results. It is not safe for concurrent use and
// lives for a single navigation command.
type MatchContext struct {
	Protocol    *protocol.Protocol
	Study       displayset.Study
	DisplaySets []displayset.DisplaySet

	log       zerolog.Logger
	cache     map[string][]Match
	evaluated []string
}

// NewMatchContext prepares lazy matching of p against a study.
func NewMatchContext(p *protocol.Protocol, study displayset.Study, sets []displayset.DisplaySet) *MatchContext {
	return &MatchContext{
		Protocol:    p,
		Study:       study,
		DisplaySets: sets,
		log:         zerolog.Nop(),
		cache:       make(map[string][]Match),
	}
}

// WithLogger sets the logger used for planner diagnostics.
func (mc *MatchContext) WithLogger(l zerolog.Logger) *MatchContext {
	mc.log = l
	return mc
}

// Candidates returns the ranked candidates of a selector, evaluating it on
// first use.
func (mc *MatchContext) Candidates(selectorID string) ([]Match, error) {
	if m, ok := mc.cache[selectorID]; ok {
		return m, nil
	}
	sel, ok := mc.Protocol.DisplaySetSelectors[selectorID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown display set selector %q", matching.ErrMatchingRule, selectorID)
	}
	m, err := Resolve(sel, mc.Study, mc.DisplaySets)
	if err != nil {
		return nil, fmt.Errorf("selector %q: %w", selectorID, err)
	}
	mc.cache[selectorID] = m
	mc.evaluated = append(mc.evaluated, selectorID)
	return m, nil
}

// Evaluated lists the selectors evaluated so far, in evaluation order.
func (mc *MatchContext) Evaluated() []string {
	return append([]string(nil), mc.evaluated...)
}

// DisplaySet finds a display set of the study by instance UID.
func (mc *MatchContext) DisplaySet(uid string) (displayset.DisplaySet, bool) {
	for _, ds := range mc.DisplaySets {
		if ds.InstanceUID == uid {
			return ds, true
		}
	}
	return displayset.DisplaySet{}, false
}

// Satisfies reports whether the display set uid is among the selector's
// candidates.
func (mc *MatchContext) Satisfies(selectorID, uid string) (bool, error) {
	candidates, err := mc.Candidates(selectorID)
	if err != nil {
		return false, err
	}
	for _, c := range candidates {
		if c.InstanceUID() == uid {
			return true, nil
		}
	}
	return false, nil
}

// ProtocolApplies checks the protocol level gate: required protocol rules
// against the study, and a positive referenced prior count against the
// exact number of priors the study has.
func (mc *MatchContext) ProtocolApplies() (bool, error) {
	r, err := matching.Evaluate(mc.Protocol.ProtocolMatchingRules, mc.Study)
	if err != nil {
		return false, fmt.Errorf("protocol rules: %w", err)
	}
	if !r.Satisfied {
		return false, nil
	}
	if n := mc.Protocol.NumberOfPriorsReferenced; n > 0 && len(mc.Study.Priors) != n {
		return false, nil
	}
	return true, nil
}

// ProtocolScore is the score of the protocol rules against the study, used
// to pick a protocol automatically. Protocols that do not apply score -1.
func (mc *MatchContext) ProtocolScore() (int, error) {
	ok, err := mc.ProtocolApplies()
	if err != nil || !ok {
		return -1, err
	}
	r, err := matching.Evaluate(mc.Protocol.ProtocolMatchingRules, mc.Study)
	if err != nil {
		return -1, err
	}
	return r.Score, nil
}
