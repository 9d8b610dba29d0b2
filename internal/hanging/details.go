package hanging

import (
	"github.com/mrsinham/dicomhang/internal/grid"
	"github.com/mrsinham/dicomhang/internal/protocol"
)

// SelectorMatch is the best candidate of an evaluated selector.
type SelectorMatch struct {
	InstanceUID string
	Score       int
	Candidates  int
}

// ViewportMatch is what fresh matching resolves for one stage slot.
type ViewportMatch struct {
	DisplaySetInstanceUIDs []string
	DisplaySetOptions      []grid.DisplaySetOptions
	ViewportOptions        protocol.ViewportOptions
}

// MatchDetails is the result of one matching pass over a stage.
type MatchDetails struct {
	Status    Status
	Selectors map[string]SelectorMatch
	Viewports []ViewportMatch
}

// Details matches a stage and reports per selector and per slot results.
func Details(mc *MatchContext, stage protocol.Stage) (MatchDetails, error) {
	status, err := ComputeStatus(mc, stage)
	if err != nil {
		return MatchDetails{}, err
	}

	out := MatchDetails{
		Status:    status,
		Selectors: make(map[string]SelectorMatch),
		Viewports: make([]ViewportMatch, len(stage.Viewports)),
	}

	a := newAssigner(mc, nil, nil)
	for i, slot := range stage.Viewports {
		c, err := a.assign(slot, nil)
		if err != nil {
			return MatchDetails{}, err
		}
		out.Viewports[i] = ViewportMatch{
			DisplaySetInstanceUIDs: c.uids,
			DisplaySetOptions:      c.options,
			ViewportOptions:        slot.Options,
		}
		for _, ref := range slot.DisplaySets {
			if _, seen := out.Selectors[ref.SelectorID]; seen {
				continue
			}
			candidates, err := mc.Candidates(ref.SelectorID)
			if err != nil {
				return MatchDetails{}, err
			}
			sm := SelectorMatch{Candidates: len(candidates)}
			if len(candidates) > 0 {
				sm.InstanceUID = candidates[0].InstanceUID()
				sm.Score = candidates[0].Score
			}
			out.Selectors[ref.SelectorID] = sm
		}
	}
	return out, nil
}
