package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/mrsinham/dicomhang/internal/grid"
	"github.com/mrsinham/dicomhang/internal/hanging"
	"github.com/mrsinham/dicomhang/internal/navigation"
	"github.com/mrsinham/dicomhang/internal/preview"
	"github.com/mrsinham/dicomhang/internal/session"
)

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the viewport grid a protocol produces for a study",
		Long: `Load protocols and a study, apply a protocol stage and print the
resulting grid. Without --protocol the best scoring protocol is used.`,
		Args: cobra.NoArgs,
		RunE: runPlan,
	}
	addSessionFlags(cmd)
	cmd.Flags().Int("stage", 0, "stage index to apply")
	cmd.Flags().String("preview", "", "write a picture of the grid (.png, .bmp, .tiff)")
	cmd.Flags().Bool("details", false, "print how each selector matched")
	cmd.Flags().Bool("metrics", false, "print engine metrics")
	return cmd
}

func runPlan(cmd *cobra.Command, _ []string) error {
	ws, err := openWorkspace(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = ws.Close() }()

	var stage *int
	if cmd.Flags().Changed("stage") {
		n, _ := cmd.Flags().GetInt("stage")
		stage = navigation.Index(n)
	}

	ctrl := ws.controller(nil)
	if err := ws.start(ctrl, stage); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	statuses, err := ctrl.Statuses()
	if err != nil {
		return err
	}
	printPlan(out, ctrl.Info(), statuses, ws.grid.State(), ws.label)

	if details, _ := cmd.Flags().GetBool("details"); details {
		d, err := ctrl.Details()
		if err != nil {
			return err
		}
		printDetails(out, d, ws.label)
	}

	if path, _ := cmd.Flags().GetString("preview"); path != "" {
		err := preview.WriteFile(path, ws.grid.State(), preview.Options{
			Width:  ws.cfg.PreviewWidth,
			Height: ws.cfg.PreviewHeight,
			Label:  ws.label,
		})
		if err != nil {
			return fmt.Errorf("write preview: %w", err)
		}
		fmt.Fprintln(out, successStyle.Render("✓ Preview written to "+path))
	}

	if m, _ := cmd.Flags().GetBool("metrics"); m {
		return printMetrics(out, ws.gatherer)
	}
	return nil
}

func printPlan(w io.Writer, info session.HPInfo, statuses []hanging.Status, state grid.State, label func(string) string) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%s / %s", info.ProtocolID, info.StageID)))
	fmt.Fprintf(w, "Study   %s\n", info.ActiveStudyUID)
	fmt.Fprintf(w, "Layout  %s\n", layoutString(state.Layout))

	var stages []string
	for i, s := range statuses {
		entry := fmt.Sprintf("%d:%s", i, s)
		if i == info.StageIndex {
			entry = "[" + entry + "]"
		}
		stages = append(stages, entry)
	}
	fmt.Fprintf(w, "Stages  %s\n\n", strings.Join(stages, " "))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "POSITION\tDISPLAY SET\tTYPE\tPRESENTATION")
	for i, vp := range state.Viewports {
		shown := dimStyle.Render("(empty)")
		if !vp.Empty() {
			names := make([]string, len(vp.DisplaySetInstanceUIDs))
			for j, uid := range vp.DisplaySetInstanceUIDs {
				names[j] = label(uid)
			}
			shown = strings.Join(names, ", ")
		}
		pos := vp.PositionID
		if i == state.ActiveViewportIndex {
			pos += "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", pos, shown, vp.ViewportOptions.Kind(), vp.PresentationID)
	}
	_ = tw.Flush()
}

func printDetails(w io.Writer, d hanging.MatchDetails, label func(string) string) {
	ids := make([]string, 0, len(d.Selectors))
	for id := range d.Selectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("Selectors"))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SELECTOR\tBEST\tSCORE\tCANDIDATES")
	for _, id := range ids {
		m := d.Selectors[id]
		best := dimStyle.Render("(none)")
		if m.InstanceUID != "" {
			best = label(m.InstanceUID)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", id, best, m.Score, m.Candidates)
	}
	_ = tw.Flush()
}

func printMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("Metrics"))
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			value := m.GetCounter().GetValue()
			if m.GetGauge() != nil {
				value = m.GetGauge().GetValue()
			}
			if h := m.GetHistogram(); h != nil {
				value = float64(h.GetSampleCount())
			}
			fmt.Fprintf(w, "  %s{%s} %g\n", mf.GetName(), strings.Join(labels, ","), value)
		}
	}
	return nil
}

func layoutString(l grid.Layout) string {
	if len(l.Options) > 0 {
		return fmt.Sprintf("%d custom cells", len(l.Options))
	}
	return fmt.Sprintf("%dx%d", l.NumRows, l.NumCols)
}
