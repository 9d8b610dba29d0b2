package navigation

import (
	"bytes"
	"errors"
	"reflect"
	"slices"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mrsinham/dicomhang/internal/displayset"
	"github.com/mrsinham/dicomhang/internal/grid"
	"github.com/mrsinham/dicomhang/internal/hanging"
	"github.com/mrsinham/dicomhang/internal/logging"
	"github.com/mrsinham/dicomhang/internal/metrics"
	"github.com/mrsinham/dicomhang/internal/protocol"
	"github.com/mrsinham/dicomhang/internal/session"
)

// recorder collects notifications and affordance syncs.
type recorder struct {
	notes []Notification
	syncs []session.HPInfo
}

func (r *recorder) Show(n Notification) { r.notes = append(r.notes, n) }

func (r *recorder) Sync(info session.HPInfo, _ *protocol.Protocol) {
	r.syncs = append(r.syncs, info)
}

func modality(m string) protocol.MatchingRule {
	return protocol.MatchingRule{
		Attribute:  "Modality",
		Constraint: protocol.Constraint{Equals: protocol.Value(m)},
		Required:   true,
	}
}

func stackSlot(selector string, reuseID string) protocol.Viewport {
	return protocol.Viewport{
		Options: protocol.ViewportOptions{Type: protocol.ViewportStack, Stack: &protocol.StackOptions{}},
		DisplaySets: []protocol.DisplaySetRef{{
			SelectorID: selector,
			ReuseID:    reuseID,
		}},
	}
}

func chestProtocol() *protocol.Protocol {
	return &protocol.Protocol{
		ID:           "chest",
		ToolGroupIDs: []string{"default"},
		ProtocolMatchingRules: []protocol.MatchingRule{{
			Attribute:  "ModalitiesInStudy",
			Constraint: protocol.Constraint{Contains: protocol.Value("CR")},
			Weight:     protocol.Weight(5),
		}},
		DisplaySetSelectors: map[string]protocol.DisplaySetSelector{
			"cr": {SeriesMatchingRules: []protocol.MatchingRule{
				modality("CR"),
				{Attribute: "SeriesDescription", Constraint: protocol.Constraint{ContainsI: protocol.Value("pa")}, Weight: protocol.Weight(10)},
			}},
			"ct": {SeriesMatchingRules: []protocol.MatchingRule{modality("CT")}},
			"mr": {SeriesMatchingRules: []protocol.MatchingRule{modality("MR")}},
			"any": {SeriesMatchingRules: []protocol.MatchingRule{{
				Attribute:  "numImageFrames",
				Constraint: protocol.Constraint{GreaterThan: protocol.Value(0)},
			}}},
		},
		DefaultViewport: &protocol.Viewport{
			DisplaySets: []protocol.DisplaySetRef{{SelectorID: "any", DisplaySetIndex: Index(-1)}},
		},
		Stages: []protocol.Stage{
			{
				ID:                "pa-lat",
				ViewportStructure: protocol.ViewportStructure{Rows: 1, Columns: 2},
				Viewports:         []protocol.Viewport{stackSlot("cr", "ChestXRay"), stackSlot("cr", "")},
			},
			{
				ID:                "ct",
				ViewportStructure: protocol.ViewportStructure{Rows: 1, Columns: 1},
				Viewports:         []protocol.Viewport{stackSlot("ct", "")},
			},
			{
				ID:                  "mr",
				ViewportStructure:   protocol.ViewportStructure{Rows: 1, Columns: 1},
				RequiredDisplaySets: []string{"mr"},
				Viewports:           []protocol.Viewport{stackSlot("any", "")},
			},
		},
	}
}

func catalogFixture() *displayset.MemoryCatalog {
	c := displayset.NewMemoryCatalog()
	addStudyA(c)
	return c
}

func addStudyA(c *displayset.MemoryCatalog) {
	c.AddStudy(displayset.Study{StudyInstanceUID: "studyA", PatientID: "P1", StudyDate: "20240101"})
	c.Add(
		displayset.DisplaySet{InstanceUID: "ds-1", StudyInstanceUID: "studyA", Modality: "CR", SeriesDescription: "PA", NumImageFrames: 1},
		displayset.DisplaySet{InstanceUID: "ds-2", StudyInstanceUID: "studyA", Modality: "CT", SeriesDescription: "AXIAL", NumImageFrames: 200},
		displayset.DisplaySet{InstanceUID: "ds-3", StudyInstanceUID: "studyA", Modality: "CR", SeriesDescription: "LAT", NumImageFrames: 1},
		displayset.DisplaySet{InstanceUID: "ds-42", StudyInstanceUID: "studyA", Modality: "CR", SeriesDescription: "PORTABLE", NumImageFrames: 1},
		displayset.DisplaySet{InstanceUID: "ds-sr", StudyInstanceUID: "studyA", Modality: "SR"},
	)
}

type fixture struct {
	ctrl  *Controller
	grid  *grid.MemoryGrid
	store *session.Store
	rec   *recorder
}

func newFixture(t *testing.T, protocols ...*protocol.Protocol) *fixture {
	t.Helper()
	if len(protocols) == 0 {
		protocols = []*protocol.Protocol{chestProtocol()}
	}
	f := &fixture{
		grid:  grid.NewMemoryGrid(),
		store: session.New(),
		rec:   &recorder{},
	}
	f.ctrl = New(protocol.NewRegistry(protocols...), catalogFixture(), f.grid, f.store,
		WithNotifier(f.rec),
		WithAffordances(f.rec),
		WithLogger(logging.Test(&bytes.Buffer{})),
	)
	t.Cleanup(func() { _ = f.store.Close() })
	return f
}

func (f *fixture) shown() []string {
	var out []string
	for _, vp := range f.grid.State().Viewports {
		if vp.Empty() {
			out = append(out, "")
			continue
		}
		out = append(out, vp.DisplaySetInstanceUIDs[0])
	}
	return out
}

func (f *fixture) mustApply(t *testing.T, p Params) {
	t.Helper()
	if err := f.ctrl.Apply(p); err != nil {
		t.Fatalf("Apply(%+v) error: %v", p, err)
	}
}

func TestApply_PlansStage(t *testing.T) {
	f := newFixture(t)
	f.mustApply(t, Params{ProtocolID: "chest", ActiveStudyUID: "studyA"})

	want := session.HPInfo{ProtocolID: "chest", StageID: "pa-lat", StageIndex: 0, ActiveStudyUID: "studyA"}
	if got := f.ctrl.Info(); got != want {
		t.Errorf("Info() = %+v, want %+v", got, want)
	}
	if got := f.shown(); !slices.Equal(got, []string{"ds-1", "ds-3"}) {
		t.Errorf("grid shows %v, want [ds-1 ds-3]", got)
	}
	if len(f.rec.syncs) != 1 || f.rec.syncs[0] != want {
		t.Errorf("affordances synced %v", f.rec.syncs)
	}
}

func TestApply_Idempotent(t *testing.T) {
	f := newFixture(t)
	p := Params{ProtocolID: "chest", StageIndex: Index(0), ActiveStudyUID: "studyA"}

	f.mustApply(t, p)
	first := f.grid.State()
	f.mustApply(t, p)
	second := f.grid.State()

	if !reflect.DeepEqual(first, second) {
		t.Errorf("second apply changed the grid:\n%+v\n%+v", first, second)
	}
}

func TestApply_ReuseIDSticky(t *testing.T) {
	f := newFixture(t)
	err := f.store.Reduce(session.Delta{ReuseIDs: map[session.ReuseKey]string{
		{StudyUID: "studyA", ReuseID: "ChestXRay"}: "ds-42",
	}})
	if err != nil {
		t.Fatal(err)
	}

	f.mustApply(t, Params{ProtocolID: "chest", ActiveStudyUID: "studyA"})
	if got := f.shown(); !slices.Equal(got, []string{"ds-42", "ds-1"}) {
		t.Errorf("grid shows %v, want [ds-42 ds-1]", got)
	}

	// the override survives a round trip through another stage
	if _, err := f.ctrl.DeltaStage(1); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ctrl.DeltaStage(-1); err != nil {
		t.Fatal(err)
	}
	if got := f.shown(); got[0] != "ds-42" {
		t.Errorf("ChestXRay slot shows %s after stage round trip, want ds-42", got[0])
	}
}

func TestToggle_RoundTrip(t *testing.T) {
	f := newFixture(t)
	f.mustApply(t, Params{ProtocolID: "chest", ActiveStudyUID: "studyA"})
	before := f.ctrl.Info()

	if err := f.ctrl.Toggle(protocol.DefaultProtocolID, nil); err != nil {
		t.Fatalf("Toggle() on error: %v", err)
	}
	if got := f.ctrl.Info().ProtocolID; got != protocol.DefaultProtocolID {
		t.Fatalf("after toggle on, protocol = %q", got)
	}
	snap, err := f.store.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	key := session.StageKey{StudyUID: "studyA", ProtocolID: protocol.DefaultProtocolID}
	if rec, ok := snap.ToggleFor(key); !ok || rec.ProtocolID != "chest" {
		t.Errorf("toggle record = %+v, %v", rec, ok)
	}

	if err := f.ctrl.Toggle(protocol.DefaultProtocolID, nil); err != nil {
		t.Fatalf("Toggle() off error: %v", err)
	}
	if got := f.ctrl.Info(); got != before {
		t.Errorf("after toggle off Info() = %+v, want %+v", got, before)
	}
}

func TestToggle_WithoutRecordFallsBackToDefault(t *testing.T) {
	f := newFixture(t)
	f.mustApply(t, Params{ProtocolID: "chest", ActiveStudyUID: "studyA"})

	if err := f.ctrl.Toggle("chest", nil); err != nil {
		t.Fatal(err)
	}
	if got := f.ctrl.Info().ProtocolID; got != protocol.DefaultProtocolID {
		t.Errorf("protocol = %q, want default", got)
	}
}

func TestDeltaStage(t *testing.T) {
	f := newFixture(t)
	f.mustApply(t, Params{ProtocolID: "chest", ActiveStudyUID: "studyA"})

	if !f.ctrl.NextStage() {
		t.Fatal("NextStage() = false, want move to ct")
	}
	if got := f.ctrl.Info().StageID; got != "ct" {
		t.Errorf("stage = %q, want ct", got)
	}

	grids := f.grid.Updates()
	if f.ctrl.NextStage() {
		t.Error("NextStage() moved onto the disabled mr stage")
	}
	if f.grid.Updates() != grids || f.ctrl.Info().StageID != "ct" {
		t.Error("failed NextStage() changed state")
	}
	if len(f.rec.notes) != 1 || f.rec.notes[0].Title != "Change Stage" {
		t.Errorf("notifications = %+v", f.rec.notes)
	}

	if !f.ctrl.PreviousStage() {
		t.Fatal("PreviousStage() = false")
	}
	if got := f.ctrl.Info().StageIndex; got != 0 {
		t.Errorf("stage index = %d, want 0", got)
	}
	if f.ctrl.PreviousStage() {
		t.Error("PreviousStage() moved past the first stage")
	}
}

func TestApply_FailureLeavesStateUntouched(t *testing.T) {
	notApplicable := chestProtocol()
	notApplicable.ID = "neuro"
	notApplicable.ProtocolMatchingRules = []protocol.MatchingRule{{
		Attribute:  "ModalitiesInStudy",
		Constraint: protocol.Constraint{Contains: protocol.Value("MR")},
		Required:   true,
	}}
	onlyMR := chestProtocol()
	onlyMR.ID = "mr-only"
	onlyMR.Stages = onlyMR.Stages[2:]
	badReuse := chestProtocol()
	badReuse.ID = "strict"
	badReuse.Stages[0].Viewports[0].DisplaySets[0].ValidateReuseID = true
	badReuse.Stages[0].Viewports[0].DisplaySets[0].SelectorID = "ct"

	tests := []struct {
		name string
		p    Params
		want error
	}{
		{"unknown protocol", Params{ProtocolID: "nope"}, ErrProtocolNotFound},
		{"unknown stage", Params{ProtocolID: "chest", StageID: "nope"}, ErrStageNotFound},
		{"protocol gate", Params{ProtocolID: "neuro"}, ErrProtocolNotApplicable},
		{"every stage disabled", Params{ProtocolID: "mr-only"}, ErrNoApplicableStage},
		{"validated reuse id", Params{ProtocolID: "strict"}, ErrInvalidReuseReference},
		{"unknown study", Params{ProtocolID: "chest", ActiveStudyUID: "missing"}, displayset.ErrStudyNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, chestProtocol(), notApplicable, onlyMR, badReuse)
			f.mustApply(t, Params{ProtocolID: "chest", ActiveStudyUID: "studyA"})

			info := f.ctrl.Info()
			snap, _ := f.store.Snapshot()
			updates := f.grid.Updates()
			syncs := len(f.rec.syncs)

			if f.ctrl.SetHangingProtocol(tc.p) {
				t.Fatal("SetHangingProtocol() = true, want false")
			}
			if err := f.ctrl.Apply(tc.p); !errors.Is(err, tc.want) {
				t.Errorf("Apply() error = %v, want %v", err, tc.want)
			}

			if got := f.ctrl.Info(); got != info {
				t.Errorf("Info() changed to %+v", got)
			}
			after, _ := f.store.Snapshot()
			if !reflect.DeepEqual(snap, after) {
				t.Error("store changed after a failed apply")
			}
			if f.grid.Updates() != updates {
				t.Error("grid changed after a failed apply")
			}
			if len(f.rec.syncs) <= syncs || f.rec.syncs[len(f.rec.syncs)-1] != info {
				t.Error("affordances not re-synced to the last good protocol")
			}
			if len(f.rec.notes) != 1 {
				t.Fatalf("notifications = %+v, want one", f.rec.notes)
			}
			n := f.rec.notes[0]
			if n.Title != "Apply Hanging Protocol" || n.Type != NotifyError || n.Duration.Milliseconds() != 3000 {
				t.Errorf("notification = %+v", n)
			}
			if !strings.HasPrefix(n.Message, "The hanging protocol could not be applied due to") {
				t.Errorf("message = %q", n.Message)
			}
		})
	}
}

func TestApply_DisabledStageFallsBack(t *testing.T) {
	f := newFixture(t)
	f.mustApply(t, Params{ProtocolID: "chest", StageID: "mr", ActiveStudyUID: "studyA"})
	if got := f.ctrl.Info().StageID; got != "pa-lat" {
		t.Errorf("stage = %q, want fallback to pa-lat", got)
	}
}

func TestApply_RemembersLastStage(t *testing.T) {
	f := newFixture(t)
	f.mustApply(t, Params{ProtocolID: "chest", StageIndex: Index(1), ActiveStudyUID: "studyA"})
	f.mustApply(t, Params{ProtocolID: protocol.DefaultProtocolID})
	f.mustApply(t, Params{ProtocolID: "chest"})

	if got := f.ctrl.Info().StageID; got != "ct" {
		t.Errorf("stage = %q, want last used ct", got)
	}
}

func TestResize(t *testing.T) {
	f := newFixture(t)
	f.mustApply(t, Params{ProtocolID: "chest", ActiveStudyUID: "studyA"})

	if err := f.ctrl.Resize(2, 2); err != nil {
		t.Fatalf("Resize(2,2) error: %v", err)
	}
	want := []string{"ds-1", "ds-3", "ds-2", "ds-42"}
	if got := f.shown(); !slices.Equal(got, want) {
		t.Errorf("2x2 shows %v, want %v", got, want)
	}

	if err := f.ctrl.Resize(1, 1); err != nil {
		t.Fatal(err)
	}
	if got := f.shown(); !slices.Equal(got, []string{"ds-1"}) {
		t.Errorf("1x1 shows %v, want [ds-1]", got)
	}

	if err := f.ctrl.Resize(2, 2); err != nil {
		t.Fatal(err)
	}
	if got := f.shown(); !slices.Equal(got, want) {
		t.Errorf("2x2 after shrink shows %v, want %v", got, want)
	}

	if err := f.ctrl.Resize(0, 2); !errors.Is(err, ErrInvalidLayout) {
		t.Errorf("Resize(0,2) error = %v, want ErrInvalidLayout", err)
	}
}

func TestResize_NothingApplied(t *testing.T) {
	f := newFixture(t)
	f.ctrl.SetViewportGridLayout(2, 2)
	if len(f.rec.notes) != 1 || f.rec.notes[0].Title != "Change Layout" {
		t.Errorf("notifications = %+v", f.rec.notes)
	}
}

func TestResize_AfterStudySwitch(t *testing.T) {
	c := catalogFixture()
	c.AddStudy(displayset.Study{StudyInstanceUID: "studyB", PatientID: "P2", StudyDate: "20240202"})
	c.Add(displayset.DisplaySet{InstanceUID: "b-1", StudyInstanceUID: "studyB", Modality: "CT", NumImageFrames: 40})
	g := grid.NewMemoryGrid()
	store := session.New()
	t.Cleanup(func() { _ = store.Close() })
	ctrl := New(protocol.NewRegistry(chestProtocol()), c, g, store)

	if err := ctrl.Apply(Params{ProtocolID: "chest", ActiveStudyUID: "studyA"}); err != nil {
		t.Fatal(err)
	}
	if err := ctrl.Resize(2, 2); err != nil {
		t.Fatal(err)
	}
	if err := ctrl.Apply(Params{ProtocolID: protocol.DefaultProtocolID, ActiveStudyUID: "studyB"}); err != nil {
		t.Fatal(err)
	}
	if err := ctrl.Resize(2, 2); err != nil {
		t.Fatal(err)
	}

	state := g.State()
	if len(state.Viewports) != 4 {
		t.Fatalf("grid has %d viewports, want 4", len(state.Viewports))
	}
	if got := state.Viewports[0].DisplaySetInstanceUIDs; !slices.Equal(got, []string{"b-1"}) {
		t.Errorf("first cell shows %v, want [b-1]", got)
	}
	for _, vp := range state.Viewports {
		for _, uid := range vp.DisplaySetInstanceUIDs {
			if uid != "b-1" {
				t.Errorf("cell %s shows %s from another study", vp.PositionID, uid)
			}
		}
	}
}

// closingGrid closes the session store once armed and a state is adopted.
type closingGrid struct {
	*grid.MemoryGrid
	store *session.Store
	armed bool
}

func (g *closingGrid) SetState(s grid.State) error {
	if err := g.MemoryGrid.SetState(s); err != nil {
		return err
	}
	if g.armed {
		_ = g.store.Close()
	}
	return nil
}

func TestApply_StoreClosedRestoresGrid(t *testing.T) {
	tests := []struct {
		name string
		run  func(*Controller) error
	}{
		{"apply", func(c *Controller) error { return c.Apply(Params{ProtocolID: "chest", StageIndex: Index(1)}) }},
		{"resize", func(c *Controller) error { return c.Resize(2, 2) }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := session.New()
			g := &closingGrid{MemoryGrid: grid.NewMemoryGrid(), store: store}
			ctrl := New(protocol.NewRegistry(chestProtocol()), catalogFixture(), g, store)
			if err := ctrl.Apply(Params{ProtocolID: "chest", ActiveStudyUID: "studyA"}); err != nil {
				t.Fatal(err)
			}
			before := g.State()
			info := ctrl.Info()

			g.armed = true
			if err := tc.run(ctrl); !errors.Is(err, session.ErrClosed) {
				t.Fatalf("error = %v, want ErrClosed", err)
			}
			if after := g.State(); !reflect.DeepEqual(before, after) {
				t.Errorf("grid not restored:\n%+v\n%+v", before, after)
			}
			if got := ctrl.Info(); got != info {
				t.Errorf("Info() = %+v, want %+v", got, info)
			}
		})
	}
}

func TestCustomLayoutRestoreAndReset(t *testing.T) {
	f := newFixture(t)
	f.mustApply(t, Params{ProtocolID: "chest", ActiveStudyUID: "studyA"})
	if err := f.ctrl.Resize(2, 2); err != nil {
		t.Fatal(err)
	}
	custom := f.grid.State()

	if !f.ctrl.NextStage() || !f.ctrl.PreviousStage() {
		t.Fatal("stage round trip failed")
	}
	if got := f.grid.State(); !reflect.DeepEqual(got, custom) {
		t.Errorf("custom layout not restored:\n%+v\nwant\n%+v", got, custom)
	}

	// same protocol and stage without a study change resets
	f.mustApply(t, Params{ProtocolID: "chest"})
	if got := f.shown(); !slices.Equal(got, []string{"ds-1", "ds-3"}) {
		t.Errorf("reset shows %v, want canonical [ds-1 ds-3]", got)
	}
	snap, err := f.store.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	key := session.StageKey{StudyUID: "studyA", ProtocolID: "chest"}
	if _, ok := snap.CustomGrid(key); ok {
		t.Error("reset kept the custom snapshot")
	}
}

func TestRun_PicksBestProtocol(t *testing.T) {
	f := newFixture(t)
	if err := f.ctrl.Run("studyA"); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if got := f.ctrl.Info().ProtocolID; got != "chest" {
		t.Errorf("Run() applied %q, want chest", got)
	}
	if err := f.ctrl.Run(""); !errors.Is(err, ErrNoActiveStudy) {
		t.Errorf("Run(\"\") error = %v", err)
	}
}

func TestDefaultProtocolEndToEnd(t *testing.T) {
	c := displayset.NewMemoryCatalog()
	c.Add(
		displayset.DisplaySet{InstanceUID: "series-a", StudyInstanceUID: "studyB", Modality: "CT", NumImageFrames: 120},
		displayset.DisplaySet{InstanceUID: "series-b", StudyInstanceUID: "studyB", Modality: "CT", NumImageFrames: 80},
	)
	g := grid.NewMemoryGrid()
	ctrl := New(protocol.NewRegistry(), c, g, session.New())

	if !ctrl.SetHangingProtocol(Params{ProtocolID: protocol.DefaultProtocolID, ActiveStudyUID: "studyB"}) {
		t.Fatal("SetHangingProtocol(default) = false")
	}
	state := g.State()
	if len(state.Viewports) != 1 || !slices.Equal(state.Viewports[0].DisplaySetInstanceUIDs, []string{"series-a"}) {
		t.Errorf("grid = %+v, want one viewport with series-a", state.Viewports)
	}

	statuses, err := ctrl.Statuses()
	if err != nil {
		t.Fatal(err)
	}
	if statuses[0] != hanging.StatusEnabled {
		t.Errorf("stage status = %v, want enabled", statuses[0])
	}
	for ctrl.NextStage() {
		statuses, _ := ctrl.Statuses()
		if got := statuses[ctrl.Info().StageIndex]; got == hanging.StatusDisabled {
			t.Errorf("NextStage() reached disabled stage %d", ctrl.Info().StageIndex)
		}
	}
}

func TestController_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := newFixture(t)
	f.ctrl.metrics = metrics.New(reg)

	f.ctrl.SetHangingProtocol(Params{ProtocolID: "chest", ActiveStudyUID: "studyA"})
	f.ctrl.SetHangingProtocol(Params{ProtocolID: "nope"})

	n, err := testutil.GatherAndCount(reg, "dicomhang_navigation_commands_total")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("command series = %d, want ok and error", n)
	}
}

func TestDetails(t *testing.T) {
	f := newFixture(t)
	if _, err := f.ctrl.Details(); !errors.Is(err, ErrNoActiveProtocol) {
		t.Errorf("Details() before apply error = %v", err)
	}
	f.mustApply(t, Params{ProtocolID: "chest", ActiveStudyUID: "studyA"})
	d, err := f.ctrl.Details()
	if err != nil {
		t.Fatal(err)
	}
	if d.Status != hanging.StatusEnabled {
		t.Errorf("Details().Status = %v", d.Status)
	}
}
