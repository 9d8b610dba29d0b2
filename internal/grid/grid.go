// Package grid holds the viewport grid state the engine reads and proposes,
// and the service interface through which it is adopted.
package grid

import (
	"fmt"
	"maps"
	"slices"

	"github.com/mrsinham/dicomhang/internal/protocol"
)

// Layout is the shape of the grid.
type Layout struct {
	NumRows int
	NumCols int
	// Options holds explicit cell rectangles for non grid layouts.
	Options []protocol.LayoutOption
}

// Cells returns the number of positions of the layout.
func (l Layout) Cells() int {
	if len(l.Options) > 0 {
		return len(l.Options)
	}
	return l.NumRows * l.NumCols
}

// DisplaySetOptions describes how one display set of a viewport was
// chosen, parallel to DisplaySetInstanceUIDs.
type DisplaySetOptions struct {
	SelectorID string
	ReuseID    string
	Options    map[string]any
}

// Viewport is one cell of the grid.
type Viewport struct {
	PositionID             string
	ViewportID             string
	DisplaySetInstanceUIDs []string
	DisplaySetOptions      []DisplaySetOptions
	ViewportOptions        protocol.ViewportOptions
	PresentationID         string
}

// Empty reports whether nothing is displayed in the cell.
func (v Viewport) Empty() bool {
	return len(v.DisplaySetInstanceUIDs) == 0
}

// Clone returns a deep copy.
func (v Viewport) Clone() Viewport {
	out := v
	out.DisplaySetInstanceUIDs = slices.Clone(v.DisplaySetInstanceUIDs)
	if v.DisplaySetOptions != nil {
		out.DisplaySetOptions = make([]DisplaySetOptions, len(v.DisplaySetOptions))
		for i, o := range v.DisplaySetOptions {
			o.Options = maps.Clone(o.Options)
			out.DisplaySetOptions[i] = o
		}
	}
	out.ViewportOptions.SyncGroups = slices.Clone(v.ViewportOptions.SyncGroups)
	if v.ViewportOptions.Stack != nil {
		s := *v.ViewportOptions.Stack
		out.ViewportOptions.Stack = &s
	}
	if v.ViewportOptions.Volume != nil {
		vol := *v.ViewportOptions.Volume
		out.ViewportOptions.Volume = &vol
	}
	return out
}

// State is the whole grid.
type State struct {
	Viewports           []Viewport
	ActiveViewportIndex int
	Layout              Layout
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := s
	out.Layout.Options = slices.Clone(s.Layout.Options)
	if s.Viewports != nil {
		out.Viewports = make([]Viewport, len(s.Viewports))
		for i, v := range s.Viewports {
			out.Viewports[i] = v.Clone()
		}
	}
	return out
}

// ActiveViewport returns the active cell, if any.
func (s State) ActiveViewport() (Viewport, bool) {
	if s.ActiveViewportIndex < 0 || s.ActiveViewportIndex >= len(s.Viewports) {
		return Viewport{}, false
	}
	return s.Viewports[s.ActiveViewportIndex], true
}

// DisplayedUIDs returns every display set instance UID on screen, in cell
// order, with repeats.
func (s State) DisplayedUIDs() []string {
	var out []string
	for _, v := range s.Viewports {
		out = append(out, v.DisplaySetInstanceUIDs...)
	}
	return out
}

// PositionID is the identity of a grid cell independent of its index.
func PositionID(col, row int) string {
	return fmt.Sprintf("%d-%d", col, row)
}

// RectPositionID is the identity of an explicit layout rectangle.
func RectPositionID(o protocol.LayoutOption) string {
	return fmt.Sprintf("%g-%g", o.X, o.Y)
}

// Service owns the grid actually shown. The engine reads copies and
// proposes replacements.
type Service interface {
	State() State
	SetState(State) error
	// RestoreCachedLayout adopts a previously captured custom layout as is.
	RestoreCachedLayout(State) error
}
