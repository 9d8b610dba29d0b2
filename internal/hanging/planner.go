package hanging

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/mrsinham/dicomhang/internal/grid"
	"github.com/mrsinham/dicomhang/internal/protocol"
)

// ErrInvalidReuseReference is returned when a validated reuse id points at
// a display set that no longer satisfies its selector.
var ErrInvalidReuseReference = errors.New("invalid reuse reference")

// PlanOptions carries the reconciliation inputs of a planning pass.
type PlanOptions struct {
	// ReuseIDs maps reuse ids of the active study to display set UIDs.
	ReuseIDs map[string]string
	// Positions maps position ids to previously displayed viewports. Only
	// entries whose display sets all belong to the context are reused.
	Positions map[string]grid.Viewport
	// InDisplay seeds the set of UIDs considered already displayed.
	InDisplay []string
	// Rows and Cols override the stage's shape when both are positive.
	Rows, Cols int
}

// cell is the resolved content of one viewport slot.
type cell struct {
	uids    []string
	options []grid.DisplaySetOptions
}

// assigner places display sets into slots, tracking what is displayed.
type assigner struct {
	mc        *MatchContext
	reuse     map[string]string
	inDisplay map[string]bool
}

func newAssigner(mc *MatchContext, reuse map[string]string, inDisplay []string) *assigner {
	a := &assigner{mc: mc, reuse: reuse, inDisplay: make(map[string]bool)}
	for _, uid := range inDisplay {
		a.inDisplay[uid] = true
	}
	return a
}

func (a *assigner) place(uid string) {
	a.inDisplay[uid] = true
}

// reused resolves the slot refs that hit the reuse map, keyed by ref index.
// Unvalidated ids pointing outside the study are skipped.
func (a *assigner) reused(slot protocol.Viewport) (map[int]string, error) {
	hits := make(map[int]string)
	for i, ref := range slot.DisplaySets {
		if ref.ReuseID == "" {
			continue
		}
		uid, ok := a.reuse[ref.ReuseID]
		if !ok {
			continue
		}
		_, exists := a.mc.DisplaySet(uid)
		if ref.ValidateReuseID {
			valid := false
			if exists {
				var err error
				valid, err = a.mc.Satisfies(ref.SelectorID, uid)
				if err != nil {
					return nil, err
				}
			}
			if !valid {
				return nil, fmt.Errorf("%w: reuse id %q points at %s which does not satisfy selector %q",
					ErrInvalidReuseReference, ref.ReuseID, uid, ref.SelectorID)
			}
		} else if !exists {
			a.mc.log.Debug().
				Str("reuse_id", ref.ReuseID).
				Str("display_set", uid).
				Msg("ignoring reuse id outside the active study")
			continue
		}
		hits[i] = uid
	}
	return hits, nil
}

// fresh resolves one ref from the ranked candidates. An explicit index
// reads the full ranked list; otherwise the first candidate not displayed
// yet is taken.
func (a *assigner) fresh(ref protocol.DisplaySetRef) (string, bool, error) {
	candidates, err := a.mc.Candidates(ref.SelectorID)
	if err != nil {
		return "", false, err
	}
	if idx, ok := ref.ExplicitIndex(); ok {
		if idx >= len(candidates) {
			return "", false, nil
		}
		return candidates[idx].InstanceUID(), true, nil
	}
	for _, c := range candidates {
		if !a.inDisplay[c.InstanceUID()] {
			return c.InstanceUID(), true, nil
		}
	}
	return "", false, nil
}

// assign resolves every ref of a slot, reuse hits first.
func (a *assigner) assign(slot protocol.Viewport, hits map[int]string) (cell, error) {
	var c cell
	for i, ref := range slot.DisplaySets {
		uid, ok := hits[i]
		if !ok {
			var err error
			uid, ok, err = a.fresh(ref)
			if err != nil {
				return cell{}, err
			}
		}
		if !ok {
			continue
		}
		a.place(uid)
		c.uids = append(c.uids, uid)
		c.options = append(c.options, grid.DisplaySetOptions{
			SelectorID: ref.SelectorID,
			ReuseID:    ref.ReuseID,
			Options:    maps.Clone(ref.Options),
		})
	}
	return c, nil
}

// Plan lays out the stage at stageIndex of the context's protocol. Cells are
// filled row-major: reuse ids first, then the position cache, then ranked
// candidates. A cell with nothing to show is left empty.
func Plan(mc *MatchContext, stageIndex int, opts PlanOptions) (grid.State, error) {
	stage, ok := mc.Protocol.Stage(stageIndex)
	if !ok {
		return grid.State{}, fmt.Errorf("protocol %q has no stage %d", mc.Protocol.ID, stageIndex)
	}

	layout := grid.Layout{
		NumRows: stage.ViewportStructure.Rows,
		NumCols: stage.ViewportStructure.Columns,
		Options: slices.Clone(stage.ViewportStructure.LayoutOptions),
	}
	if opts.Rows > 0 && opts.Cols > 0 {
		layout = grid.Layout{NumRows: opts.Rows, NumCols: opts.Cols}
	}

	a := newAssigner(mc, opts.ReuseIDs, opts.InDisplay)
	positions := positionIDs(layout)
	out := grid.State{Layout: layout, Viewports: make([]grid.Viewport, 0, len(positions))}

	for i, pos := range positions {
		slot, hasSlot := slotAt(mc.Protocol, stage, stageIndex, i)

		hits, err := a.reused(slot)
		if err != nil {
			return grid.State{}, err
		}

		if len(hits) == 0 {
			if cached, ok := opts.Positions[pos]; ok && live(mc, cached) {
				vp := cached.Clone()
				vp.PositionID = pos
				vp.ViewportID = ""
				vp.PresentationID = ""
				for _, uid := range vp.DisplaySetInstanceUIDs {
					a.place(uid)
				}
				out.Viewports = append(out.Viewports, vp)
				continue
			}
		}

		vp := grid.Viewport{PositionID: pos}
		if hasSlot {
			c, err := a.assign(slot, hits)
			if err != nil {
				return grid.State{}, err
			}
			vp.DisplaySetInstanceUIDs = c.uids
			vp.DisplaySetOptions = c.options
			vp.ViewportOptions = slot.Options
			vp.ViewportID = slot.Options.ViewportID
		}
		out.Viewports = append(out.Viewports, vp.Clone())
	}
	return out, nil
}

// live reports whether a cached viewport shows something and every display
// set it shows is still one of the context's.
func live(mc *MatchContext, vp grid.Viewport) bool {
	if vp.Empty() {
		return false
	}
	for _, uid := range vp.DisplaySetInstanceUIDs {
		if _, ok := mc.DisplaySet(uid); !ok {
			return false
		}
	}
	return true
}

// slotAt returns the viewport definition for a position: the declared stage
// slot, or the missing viewport fill for positions past the declared ones.
func slotAt(p *protocol.Protocol, stage protocol.Stage, stageIndex, position int) (protocol.Viewport, bool) {
	if position < len(stage.Viewports) {
		return stage.Viewports[position], true
	}
	return p.MissingViewport(stageIndex, position)
}

// positionIDs lists the position ids of a layout in row-major order.
func positionIDs(l grid.Layout) []string {
	if len(l.Options) > 0 {
		out := make([]string, len(l.Options))
		for i, o := range l.Options {
			out[i] = grid.RectPositionID(o)
		}
		return out
	}
	out := make([]string, 0, l.NumRows*l.NumCols)
	for row := 0; row < l.NumRows; row++ {
		for col := 0; col < l.NumCols; col++ {
			out = append(out, grid.PositionID(col, row))
		}
	}
	return out
}
