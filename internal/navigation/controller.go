// Package navigation applies hanging protocols to a viewport grid and moves
// between their stages, reconciling every change with the session store.
package navigation

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrsinham/dicomhang/internal/displayset"
	"github.com/mrsinham/dicomhang/internal/grid"
	"github.com/mrsinham/dicomhang/internal/hanging"
	"github.com/mrsinham/dicomhang/internal/metrics"
	"github.com/mrsinham/dicomhang/internal/protocol"
	"github.com/mrsinham/dicomhang/internal/session"
)

// Params selects what Apply hangs. Empty fields fall back to what is
// currently applied.
type Params struct {
	ProtocolID     string
	StageID        string
	StageIndex     *int
	ActiveStudyUID string
}

// Index returns a pointer to i, for Params.StageIndex.
func Index(i int) *int {
	return &i
}

const (
	outcomePlanned  = "planned"
	outcomeRestored = "restored"
	outcomeReset    = "reset"
)

// Controller is the hanging protocol state machine of one session. Commands
// are serialised; each one reads a store snapshot, computes the new grid and
// commits its store writes in a single Reduce once the grid accepted it.
type Controller struct {
	mu sync.Mutex

	registry    *protocol.Registry
	catalog     displayset.Catalog
	grid        grid.Service
	store       *session.Store
	notifier    Notifier
	affordances Affordances
	log         zerolog.Logger
	metrics     *metrics.Recorder

	info session.HPInfo
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithMetrics records command outcomes on r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(c *Controller) { c.metrics = r }
}

// WithNotifier sets where command failures are reported.
func WithNotifier(n Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

// WithAffordances sets the UI affordances kept in step with the applied
// protocol.
func WithAffordances(a Affordances) Option {
	return func(c *Controller) { c.affordances = a }
}

// New returns a controller with nothing applied.
func New(reg *protocol.Registry, catalog displayset.Catalog, g grid.Service, store *session.Store, opts ...Option) *Controller {
	c := &Controller{
		registry: reg,
		catalog:  catalog,
		grid:     g,
		store:    store,
		notifier: discardNotifier{},
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Info returns what is currently applied.
func (c *Controller) Info() session.HPInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

// Apply hangs a protocol stage. On error nothing is changed.
func (c *Controller) Apply(p Params) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.observe("apply", func() error {
		return c.applyLocked(p, session.Delta{})
	})
}

// Toggle flips between a protocol and whatever was applied before it. When
// the protocol is already active, the recorded previous protocol is restored
// (the default protocol when nothing was recorded).
func (c *Controller) Toggle(protocolID string, stageIndex *int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.observe("toggle", func() error {
		return c.toggleLocked(protocolID, stageIndex)
	})
}

func (c *Controller) toggleLocked(protocolID string, stageIndex *int) error {
	if protocolID == "" {
		return ErrNoActiveProtocol
	}
	idx := 0
	if stageIndex != nil {
		idx = *stageIndex
	}
	key := session.StageKey{StudyUID: c.info.ActiveStudyUID, ProtocolID: protocolID, StageIndex: idx}

	active := c.info.ProtocolID == protocolID && (stageIndex == nil || *stageIndex == c.info.StageIndex)
	if active {
		snap, err := c.store.Snapshot()
		if err != nil {
			return err
		}
		back := Params{ProtocolID: protocol.DefaultProtocolID}
		if prev, ok := snap.ToggleFor(key); ok {
			back = Params{ProtocolID: prev.ProtocolID, StageIndex: Index(prev.StageIndex)}
		}
		return c.applyLocked(back, session.Delta{})
	}

	var extra session.Delta
	if c.info.Applied() {
		extra.Toggles = map[session.StageKey]session.ToggleTarget{
			key: {ProtocolID: c.info.ProtocolID, StageIndex: c.info.StageIndex},
		}
	}
	return c.applyLocked(Params{ProtocolID: protocolID, StageIndex: stageIndex}, extra)
}

// DeltaStage moves to the nearest stage in direction dir (+1 or -1) that is
// not disabled. It reports false, without changing anything, when no such
// stage exists before the end of the protocol.
func (c *Controller) DeltaStage(dir int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var moved bool
	err := c.observe("delta_stage", func() error {
		var err error
		moved, err = c.deltaStageLocked(dir)
		return err
	})
	return moved, err
}

func (c *Controller) deltaStageLocked(dir int) (bool, error) {
	if dir != 1 && dir != -1 {
		return false, fmt.Errorf("stage direction must be +1 or -1, got %d", dir)
	}
	if !c.info.Applied() {
		return false, ErrNoActiveProtocol
	}
	mc, err := c.matchContext(c.info.ProtocolID, c.info.ActiveStudyUID)
	if err != nil {
		return false, err
	}
	for i := c.info.StageIndex + dir; i >= 0 && i < len(mc.Protocol.Stages); i += dir {
		status, err := hanging.ComputeStatus(mc, mc.Protocol.Stages[i])
		if err != nil {
			return false, err
		}
		c.metrics.StageStatus(mc.Protocol.ID, status.String())
		if !status.Usable() {
			continue
		}
		if err := c.applyLocked(Params{ProtocolID: c.info.ProtocolID, StageIndex: Index(i)}, session.Delta{}); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// Resize changes the grid to rows x cols. Viewports on screen are recorded
// by position first, so content survives shrinking and growing back; new
// positions are filled from the stage and the protocol default viewport.
func (c *Controller) Resize(rows, cols int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.observe("resize", func() error {
		return c.resizeLocked(rows, cols)
	})
}

func (c *Controller) resizeLocked(rows, cols int) error {
	if rows <= 0 || cols <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidLayout, rows, cols)
	}
	if !c.info.Applied() {
		return ErrNoActiveProtocol
	}
	snap, err := c.store.Snapshot()
	if err != nil {
		return err
	}
	current := c.grid.State()
	positions, inDisplay := session.CapturePositions(current, snap.Positions, rows, cols)

	mc, err := c.matchContext(c.info.ProtocolID, c.info.ActiveStudyUID)
	if err != nil {
		return err
	}
	next, err := hanging.Plan(mc, c.info.StageIndex, hanging.PlanOptions{
		Positions: snap.With(positions).Positions,
		InDisplay: inDisplay,
		Rows:      rows,
		Cols:      cols,
	})
	if err != nil {
		return err
	}
	if current.ActiveViewportIndex < len(next.Viewports) {
		next.ActiveViewportIndex = current.ActiveViewportIndex
	}
	if err := c.grid.SetState(next); err != nil {
		return err
	}
	if err := c.commit(current, positions); err != nil {
		return err
	}
	c.recordFill(mc.Protocol.ID, next)
	c.log.Info().
		Str("protocol", c.info.ProtocolID).
		Int("stage", c.info.StageIndex).
		Str("study", c.info.ActiveStudyUID).
		Str("layout", fmt.Sprintf("%dx%d", rows, cols)).
		Msg("grid resized")
	return nil
}

// Statuses returns the status of every stage of the applied protocol.
func (c *Controller) Statuses() ([]hanging.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.info.Applied() {
		return nil, ErrNoActiveProtocol
	}
	mc, err := c.matchContext(c.info.ProtocolID, c.info.ActiveStudyUID)
	if err != nil {
		return nil, err
	}
	return hanging.StageStatuses(mc)
}

// Details returns the match details of the applied stage.
func (c *Controller) Details() (hanging.MatchDetails, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.info.Applied() {
		return hanging.MatchDetails{}, ErrNoActiveProtocol
	}
	mc, err := c.matchContext(c.info.ProtocolID, c.info.ActiveStudyUID)
	if err != nil {
		return hanging.MatchDetails{}, err
	}
	stage, _ := mc.Protocol.Stage(c.info.StageIndex)
	return hanging.Details(mc, stage)
}

// Run picks the best scoring applicable protocol for a study and applies it.
// Registration order breaks ties; the default protocol is the fallback.
func (c *Controller) Run(studyUID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.observe("run", func() error {
		if studyUID == "" {
			return ErrNoActiveStudy
		}
		best, bestScore := protocol.DefaultProtocolID, -1
		for _, id := range c.registry.IDs() {
			mc, err := c.matchContext(id, studyUID)
			if err != nil {
				return err
			}
			score, err := mc.ProtocolScore()
			if err != nil {
				return err
			}
			c.log.Debug().Str("protocol", id).Int("score", score).Msg("protocol scored")
			if score > bestScore {
				best, bestScore = id, score
			}
		}
		return c.applyLocked(Params{ProtocolID: best, ActiveStudyUID: studyUID}, session.Delta{})
	})
}

func (c *Controller) applyLocked(p Params, extra session.Delta) error {
	next, err := c.hang(p, extra)
	if err != nil {
		c.syncAffordances(c.info)
		return err
	}
	c.info = next
	c.syncAffordances(next)
	return nil
}

// hang computes and adopts the new grid. It returns the new HPInfo; nothing
// is written when it fails.
func (c *Controller) hang(p Params, extra session.Delta) (session.HPInfo, error) {
	snap, err := c.store.Snapshot()
	if err != nil {
		return session.HPInfo{}, err
	}
	current := c.grid.State()

	var capture session.Delta
	if c.info.Applied() {
		if cur, err := c.registry.Get(c.info.ProtocolID); err == nil {
			if stage, ok := cur.Stage(c.info.StageIndex); ok {
				capture = session.CaptureLayout(current, c.info, stage)
			}
		}
	}
	view := snap.With(capture)

	protocolID := p.ProtocolID
	if protocolID == "" {
		protocolID = c.info.ProtocolID
	}
	if protocolID == "" {
		return session.HPInfo{}, ErrNoActiveProtocol
	}
	studyUID := p.ActiveStudyUID
	if studyUID == "" {
		studyUID = c.info.ActiveStudyUID
	}
	if studyUID == "" {
		return session.HPInfo{}, ErrNoActiveStudy
	}

	mc, err := c.matchContext(protocolID, studyUID)
	if err != nil {
		return session.HPInfo{}, err
	}
	proto := mc.Protocol

	stageIndex := 0
	switch {
	case p.StageID != "" || p.StageIndex != nil:
		stageIndex, err = proto.StageIndex(p.StageID, p.StageIndex)
		if err != nil {
			return session.HPInfo{}, fmt.Errorf("%w: %w", ErrStageNotFound, err)
		}
	default:
		if last, ok := view.LastStage(studyUID, protocolID); ok && last.StageIndex < len(proto.Stages) {
			stageIndex = last.StageIndex
		}
	}

	applies, err := mc.ProtocolApplies()
	if err != nil {
		return session.HPInfo{}, err
	}
	if !applies {
		return session.HPInfo{}, fmt.Errorf("%w: %q on study %s", ErrProtocolNotApplicable, protocolID, studyUID)
	}

	stageIndex, err = c.usableStage(mc, stageIndex)
	if err != nil {
		return session.HPInfo{}, err
	}
	stage, _ := proto.Stage(stageIndex)
	info := session.HPInfo{
		ProtocolID:     protocolID,
		StageID:        stage.Key(),
		StageIndex:     stageIndex,
		ActiveStudyUID: studyUID,
	}
	key := session.StageKeyOf(info)

	reset := c.info.Applied() && p.ActiveStudyUID == "" &&
		c.info.ProtocolID == protocolID && c.info.StageIndex == stageIndex

	var (
		outcome  string
		override session.Delta
		next     grid.State
	)
	custom, hasCustom := view.CustomGrid(key)
	switch {
	case reset:
		outcome = outcomeReset
		next, err = hanging.Plan(mc, stageIndex, hanging.PlanOptions{})
		if err != nil {
			return session.HPInfo{}, err
		}
		override.ViewportGrids = map[session.StageKey]*grid.State{key: nil}
		err = c.grid.SetState(next)
	case hasCustom:
		outcome = outcomeRestored
		next = custom
		err = c.grid.RestoreCachedLayout(next)
	default:
		outcome = outcomePlanned
		next, err = hanging.Plan(mc, stageIndex, hanging.PlanOptions{ReuseIDs: view.ReuseIDsFor(studyUID)})
		if err != nil {
			return session.HPInfo{}, err
		}
		err = c.grid.SetState(next)
	}
	if err != nil {
		return session.HPInfo{}, err
	}

	if err := c.commit(current, capture.Merge(extra).Merge(override)); err != nil {
		return session.HPInfo{}, err
	}

	c.recordFill(protocolID, next)
	c.log.Info().
		Str("protocol", protocolID).
		Str("stage", info.StageID).
		Str("study", studyUID).
		Str("outcome", outcome).
		Msg("hanging protocol applied")
	return info, nil
}

// commit writes d to the store. When the store refuses it, the grid is put
// back to previous so grid and store never disagree.
func (c *Controller) commit(previous grid.State, d session.Delta) error {
	if err := c.store.Reduce(d); err != nil {
		if rerr := c.grid.RestoreCachedLayout(previous); rerr != nil {
			c.log.Error().Err(rerr).Msg("grid rollback failed")
		}
		return err
	}
	return nil
}

// usableStage returns target when it is not disabled, else the first stage
// that is not.
func (c *Controller) usableStage(mc *hanging.MatchContext, target int) (int, error) {
	stages := mc.Protocol.Stages
	status, err := hanging.ComputeStatus(mc, stages[target])
	if err != nil {
		return 0, err
	}
	c.metrics.StageStatus(mc.Protocol.ID, status.String())
	if status.Usable() {
		return target, nil
	}
	for i := range stages {
		if i == target {
			continue
		}
		s, err := hanging.ComputeStatus(mc, stages[i])
		if err != nil {
			return 0, err
		}
		if s.Usable() {
			c.log.Debug().
				Str("protocol", mc.Protocol.ID).
				Int("requested", target).
				Int("stage", i).
				Msg("requested stage disabled, falling back")
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: protocol %q", ErrNoApplicableStage, mc.Protocol.ID)
}

func (c *Controller) matchContext(protocolID, studyUID string) (*hanging.MatchContext, error) {
	proto, err := c.registry.Get(protocolID)
	if err != nil {
		return nil, err
	}
	if len(proto.Stages) == 0 {
		return nil, fmt.Errorf("%w: protocol %q has no stages", ErrNoApplicableStage, protocolID)
	}
	study, err := c.catalog.Study(studyUID)
	if err != nil {
		return nil, err
	}
	sets, err := c.catalog.DisplaySetsForStudy(studyUID)
	if err != nil {
		return nil, err
	}
	return hanging.NewMatchContext(proto, study, sets).WithLogger(c.log), nil
}

func (c *Controller) syncAffordances(info session.HPInfo) {
	if c.affordances == nil || !info.Applied() {
		return
	}
	proto, err := c.registry.Get(info.ProtocolID)
	if err != nil {
		return
	}
	c.affordances.Sync(info, proto)
}

func (c *Controller) recordFill(protocolID string, s grid.State) {
	filled := 0
	for _, vp := range s.Viewports {
		if !vp.Empty() {
			filled++
		}
	}
	c.metrics.PlanFill(protocolID, filled, len(s.Viewports))
}

func (c *Controller) observe(command string, fn func() error) error {
	start := time.Now()
	err := fn()
	outcome := "ok"
	if err != nil {
		outcome = "error"
		level := zerolog.WarnLevel
		if IsExpected(err) {
			level = zerolog.InfoLevel
		}
		c.log.WithLevel(level).Err(err).
			Str("command", command).
			Str("protocol", c.info.ProtocolID).
			Int("stage", c.info.StageIndex).
			Str("study", c.info.ActiveStudyUID).
			Msg("navigation command failed")
	}
	c.metrics.Command(command, outcome, time.Since(start))
	return err
}

// IsExpected reports whether err is a recoverable navigation outcome rather
// than a broken protocol or collaborator.
func IsExpected(err error) bool {
	return errors.Is(err, ErrNoApplicableStage) ||
		errors.Is(err, ErrProtocolNotApplicable) ||
		errors.Is(err, ErrProtocolNotFound) ||
		errors.Is(err, ErrStageNotFound)
}
