package session

import (
	"github.com/mrsinham/dicomhang/internal/grid"
	"github.com/mrsinham/dicomhang/internal/protocol"
)

// IsCustom reports whether state deviates from the stage's declared shape.
func IsCustom(state grid.State, stage protocol.Stage) bool {
	vs := stage.ViewportStructure
	if len(state.Viewports) != len(stage.Viewports) {
		return true
	}
	if len(vs.LayoutOptions) > 0 {
		return len(state.Layout.Options) != len(vs.LayoutOptions)
	}
	return state.Layout.NumRows != vs.Rows || state.Layout.NumCols != vs.Columns
}

// CaptureLayout computes the writes that remember the current grid before
// it is replaced: the last used stage, the layout when it is custom (or a
// canonical marker otherwise), the reuse ids on screen and the active
// display set.
func CaptureLayout(state grid.State, info HPInfo, stage protocol.Stage) Delta {
	if !info.Applied() {
		return Delta{}
	}
	d := Delta{
		Hanging:       map[ProtocolKey]HPInfo{ProtocolKeyOf(info): info},
		ViewportGrids: map[StageKey]*grid.State{},
		ReuseIDs:      map[ReuseKey]string{},
	}

	key := StageKeyOf(info)
	if IsCustom(state, stage) {
		snapshot := state.Clone()
		d.ViewportGrids[key] = &snapshot
	} else {
		d.ViewportGrids[key] = nil
	}

	study := info.ActiveStudyUID
	for idx, vp := range state.Viewports {
		for i, uid := range vp.DisplaySetInstanceUIDs {
			if uid == "" {
				continue
			}
			if idx == state.ActiveViewportIndex && i == 0 {
				d.ReuseIDs[ReuseKey{StudyUID: study, ReuseID: ActiveDisplaySetReuseID}] = uid
			}
			if i < len(vp.DisplaySetOptions) && vp.DisplaySetOptions[i].ReuseID != "" {
				d.ReuseIDs[ReuseKey{StudyUID: study, ReuseID: vp.DisplaySetOptions[i].ReuseID}] = uid
			}
		}
	}
	return d
}

// CapturePositions records the current viewports by position id, merged
// over the positions already known, and lists the UIDs that the new
// rows x cols layout will show from that cache.
func CapturePositions(state grid.State, known map[string]grid.Viewport, rows, cols int) (Delta, []string) {
	positions := make(map[string]grid.Viewport, len(state.Viewports))
	merged := make(map[string]grid.Viewport, len(known)+len(state.Viewports))
	for k, v := range known {
		merged[k] = v
	}
	for _, vp := range state.Viewports {
		if vp.PositionID == "" {
			continue
		}
		stored := vp.Clone()
		stored.ViewportID = ""
		stored.ViewportOptions.ViewportID = ""
		stored.PresentationID = ""
		positions[vp.PositionID] = stored
		merged[vp.PositionID] = stored
	}

	var inDisplay []string
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			if vp, ok := merged[grid.PositionID(col, row)]; ok {
				inDisplay = append(inDisplay, vp.DisplaySetInstanceUIDs...)
			}
		}
	}
	return Delta{Positions: positions}, inDisplay
}
