package navigation

import (
	"errors"

	"github.com/mrsinham/dicomhang/internal/grid"
	"github.com/mrsinham/dicomhang/internal/hanging"
	"github.com/mrsinham/dicomhang/internal/matching"
	"github.com/mrsinham/dicomhang/internal/protocol"
)

var (
	ErrProtocolNotFound      = protocol.ErrProtocolNotFound
	ErrInvalidReuseReference = hanging.ErrInvalidReuseReference
	ErrMatchingRule          = matching.ErrMatchingRule
	ErrInvalidLayout         = grid.ErrInvalidLayout

	ErrNoApplicableStage     = errors.New("no applicable stage")
	ErrStageNotFound         = errors.New("stage not found")
	ErrProtocolNotApplicable = errors.New("protocol does not apply to the study")
	ErrNoActiveProtocol      = errors.New("no active protocol")
	ErrNoActiveStudy         = errors.New("no active study")
)
