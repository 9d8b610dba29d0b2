package hanging

import (
	"github.com/mrsinham/dicomhang/internal/protocol"
)

// Status is the applicability of a stage for a study. It is derived on
// every call and never stored.
type Status int

const (
	StatusDisabled Status = iota
	StatusPassive
	StatusEnabled
)

func (s Status) String() string {
	switch s {
	case StatusDisabled:
		return "disabled"
	case StatusPassive:
		return "passive"
	case StatusEnabled:
		return "enabled"
	default:
		return "unknown"
	}
}

// Usable reports whether navigation may land on a stage with this status.
func (s Status) Usable() bool {
	return s != StatusDisabled
}

// ComputeStatus counts the stage slots that fresh matching fills, without
// reuse ids or cached positions, and compares the count with the stage
// thresholds. A required selector without any match disables the stage.
func ComputeStatus(mc *MatchContext, stage protocol.Stage) (Status, error) {
	for _, id := range stage.RequiredDisplaySets {
		candidates, err := mc.Candidates(id)
		if err != nil {
			return StatusDisabled, err
		}
		if len(candidates) == 0 {
			return StatusDisabled, nil
		}
	}

	filled, err := filledSlots(mc, stage)
	if err != nil {
		return StatusDisabled, err
	}
	return statusFor(stage, filled), nil
}

func statusFor(stage protocol.Stage, filled int) Status {
	switch {
	case filled < stage.MinViewports():
		return StatusDisabled
	case filled >= stage.WantedViewports():
		return StatusEnabled
	default:
		return StatusPassive
	}
}

func filledSlots(mc *MatchContext, stage protocol.Stage) (int, error) {
	a := newAssigner(mc, nil, nil)
	filled := 0
	for _, slot := range stage.Viewports {
		c, err := a.assign(slot, nil)
		if err != nil {
			return 0, err
		}
		if len(c.uids) > 0 {
			filled++
		}
	}
	return filled, nil
}

// StageStatuses computes the status of every stage of the context's
// protocol.
func StageStatuses(mc *MatchContext) ([]Status, error) {
	out := make([]Status, len(mc.Protocol.Stages))
	for i, stage := range mc.Protocol.Stages {
		s, err := ComputeStatus(mc, stage)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}
