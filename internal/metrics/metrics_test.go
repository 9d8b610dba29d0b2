package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.Command("apply", "ok", 3*time.Millisecond)
	r.Command("apply", "ok", time.Millisecond)
	r.Command("apply", "error", time.Millisecond)
	r.StageStatus("default", "enabled")
	r.PlanFill("default", 1, 2)
	r.PlanFill("default", 1, 0)

	if got := testutil.ToFloat64(r.commands.WithLabelValues("apply", "ok")); got != 2 {
		t.Errorf("apply/ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.commands.WithLabelValues("apply", "error")); got != 1 {
		t.Errorf("apply/error = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.stageStatus.WithLabelValues("default", "enabled")); got != 1 {
		t.Errorf("stage status = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(r.planFill); n != 1 {
		t.Errorf("plan fill series = %d, want 1", n)
	}
	if n, err := testutil.GatherAndCount(reg); err != nil || n == 0 {
		t.Errorf("GatherAndCount() = %d, %v", n, err)
	}
}

func TestRecorder_Nil(t *testing.T) {
	var r *Recorder
	r.Command("apply", "ok", time.Second)
	r.StageStatus("p", "disabled")
	r.PlanFill("p", 1, 1)
}
