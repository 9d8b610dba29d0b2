package grid

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidLayout is returned for grids whose shape does not hold their
// viewports.
var ErrInvalidLayout = errors.New("invalid grid layout")

// MemoryGrid is an in-process Service. It assigns viewport ids and
// presentation ids to adopted states.
type MemoryGrid struct {
	mu      sync.RWMutex
	state   State
	history int
}

// NewMemoryGrid returns an empty 1x1 grid.
func NewMemoryGrid() *MemoryGrid {
	return &MemoryGrid{state: State{Layout: Layout{NumRows: 1, NumCols: 1}}}
}

// State implements Service.
func (g *MemoryGrid) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state.Clone()
}

// SetState implements Service. Presentation ids are recomputed for every
// cell.
func (g *MemoryGrid) SetState(s State) error {
	return g.adopt(s, true)
}

// RestoreCachedLayout implements Service. Presentation ids captured with
// the layout are kept.
func (g *MemoryGrid) RestoreCachedLayout(s State) error {
	return g.adopt(s, false)
}

// Updates returns how many states have been adopted.
func (g *MemoryGrid) Updates() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.history
}

func (g *MemoryGrid) adopt(s State, fresh bool) error {
	if err := Check(s); err != nil {
		return err
	}
	next := s.Clone()

	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range next.Viewports {
		vp := &next.Viewports[i]
		if vp.ViewportID == "" {
			vp.ViewportID = viewportID(i, vp.PositionID)
		}
		if fresh {
			vp.PresentationID = ""
		}
	}
	AssignPresentationIDs(&next)
	g.state = next
	g.history++
	return nil
}

func viewportID(index int, positionID string) string {
	if positionID != "" {
		return "viewport-" + positionID
	}
	return fmt.Sprintf("viewport-%d", index)
}

// Check validates the shape of s.
func Check(s State) error {
	if len(s.Layout.Options) == 0 && (s.Layout.NumRows <= 0 || s.Layout.NumCols <= 0) {
		return fmt.Errorf("%w: %dx%d", ErrInvalidLayout, s.Layout.NumRows, s.Layout.NumCols)
	}
	if len(s.Viewports) > s.Layout.Cells() {
		return fmt.Errorf("%w: %d viewports in %d cells", ErrInvalidLayout, len(s.Viewports), s.Layout.Cells())
	}
	if len(s.Viewports) > 0 && (s.ActiveViewportIndex < 0 || s.ActiveViewportIndex >= len(s.Viewports)) {
		return fmt.Errorf("%w: active viewport %d out of range", ErrInvalidLayout, s.ActiveViewportIndex)
	}
	return nil
}
