package session

import (
	"errors"
	"maps"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/mrsinham/dicomhang/internal/grid"
)

// ErrClosed is returned by a store after Close.
var ErrClosed = errors.New("session closed")

// Store is the reconciliation cache of one session. Every map is written
// only through Reduce, one key at a time, never partially.
type Store struct {
	id string

	mu        sync.RWMutex
	closed    bool
	hanging   map[ProtocolKey]HPInfo
	grids     map[StageKey]*grid.State
	reuse     map[ReuseKey]string
	toggles   map[StageKey]ToggleTarget
	positions map[string]grid.Viewport
}

// New creates an empty store with a fresh session id.
func New() *Store {
	return &Store{
		id:        ulid.Make().String(),
		hanging:   make(map[ProtocolKey]HPInfo),
		grids:     make(map[StageKey]*grid.State),
		reuse:     make(map[ReuseKey]string),
		toggles:   make(map[StageKey]ToggleTarget),
		positions: make(map[string]grid.Viewport),
	}
}

// ID returns the session id.
func (s *Store) ID() string {
	return s.id
}

// Snapshot is a deep copy of the store contents.
type Snapshot struct {
	Hanging map[ProtocolKey]HPInfo
	// ViewportGrids holds custom layouts. A nil value marks a stage whose
	// layout was last seen in its canonical shape.
	ViewportGrids map[StageKey]*grid.State
	ReuseIDs      map[ReuseKey]string
	Toggles       map[StageKey]ToggleTarget
	Positions     map[string]grid.Viewport
}

// Delta is a set of overwrites applied by Reduce. Nil maps are skipped.
type Delta struct {
	Hanging       map[ProtocolKey]HPInfo
	ViewportGrids map[StageKey]*grid.State
	ReuseIDs      map[ReuseKey]string
	Toggles       map[StageKey]ToggleTarget
	Positions     map[string]grid.Viewport
}

// Empty reports whether the delta writes nothing.
func (d Delta) Empty() bool {
	return len(d.Hanging) == 0 && len(d.ViewportGrids) == 0 && len(d.ReuseIDs) == 0 &&
		len(d.Toggles) == 0 && len(d.Positions) == 0
}

// Merge returns a delta holding the writes of d then other.
func (d Delta) Merge(other Delta) Delta {
	return Delta{
		Hanging:       mergeMap(d.Hanging, other.Hanging),
		ViewportGrids: mergeMap(d.ViewportGrids, other.ViewportGrids),
		ReuseIDs:      mergeMap(d.ReuseIDs, other.ReuseIDs),
		Toggles:       mergeMap(d.Toggles, other.Toggles),
		Positions:     mergeMap(d.Positions, other.Positions),
	}
}

func mergeMap[K comparable, V any](a, b map[K]V) map[K]V {
	if a == nil && b == nil {
		return nil
	}
	out := make(map[K]V, len(a)+len(b))
	maps.Copy(out, a)
	maps.Copy(out, b)
	return out
}

// Snapshot returns a deep copy of the current contents.
func (s *Store) Snapshot() (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Snapshot{}, ErrClosed
	}
	snap := Snapshot{
		Hanging:       maps.Clone(s.hanging),
		ViewportGrids: make(map[StageKey]*grid.State, len(s.grids)),
		ReuseIDs:      maps.Clone(s.reuse),
		Toggles:       maps.Clone(s.toggles),
		Positions:     make(map[string]grid.Viewport, len(s.positions)),
	}
	for k, v := range s.grids {
		snap.ViewportGrids[k] = cloneState(v)
	}
	for k, v := range s.positions {
		snap.Positions[k] = v.Clone()
	}
	return snap, nil
}

// Reduce overwrites every key present in d, under one lock.
func (s *Store) Reduce(d Delta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	maps.Copy(s.hanging, d.Hanging)
	for k, v := range d.ViewportGrids {
		s.grids[k] = cloneState(v)
	}
	maps.Copy(s.reuse, d.ReuseIDs)
	maps.Copy(s.toggles, d.Toggles)
	for k, v := range d.Positions {
		s.positions[k] = v.Clone()
	}
	return nil
}

// Close ends the session and drops its contents.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	s.hanging = nil
	s.grids = nil
	s.reuse = nil
	s.toggles = nil
	s.positions = nil
	return nil
}

func cloneState(s *grid.State) *grid.State {
	if s == nil {
		return nil
	}
	c := s.Clone()
	return &c
}

// CustomGrid returns the custom layout stored for key, if any.
func (snap Snapshot) CustomGrid(key StageKey) (grid.State, bool) {
	s, ok := snap.ViewportGrids[key]
	if !ok || s == nil {
		return grid.State{}, false
	}
	return s.Clone(), true
}

// ReuseIDsFor returns the reuse id map of one study.
func (snap Snapshot) ReuseIDsFor(studyUID string) map[string]string {
	out := make(map[string]string)
	for k, uid := range snap.ReuseIDs {
		if k.StudyUID == studyUID {
			out[k.ReuseID] = uid
		}
	}
	return out
}

// LastStage returns the last used stage of a protocol for a study.
func (snap Snapshot) LastStage(studyUID, protocolID string) (HPInfo, bool) {
	info, ok := snap.Hanging[ProtocolKey{StudyUID: studyUID, ProtocolID: protocolID}]
	return info, ok
}

// ToggleFor returns the toggle record of a stage key.
func (snap Snapshot) ToggleFor(key StageKey) (ToggleTarget, bool) {
	t, ok := snap.Toggles[key]
	return t, ok
}

// With returns a copy of snap with the writes of d applied, as the store
// would hold them after Reduce(d).
func (snap Snapshot) With(d Delta) Snapshot {
	out := Snapshot{
		Hanging:       mergeMap(snap.Hanging, d.Hanging),
		ViewportGrids: mergeMap(snap.ViewportGrids, d.ViewportGrids),
		ReuseIDs:      mergeMap(snap.ReuseIDs, d.ReuseIDs),
		Toggles:       mergeMap(snap.Toggles, d.Toggles),
		Positions:     mergeMap(snap.Positions, d.Positions),
	}
	return out
}
