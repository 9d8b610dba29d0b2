package main

import (
	"fmt"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mrsinham/dicomhang/internal/config"
	"github.com/mrsinham/dicomhang/internal/dicom"
	"github.com/mrsinham/dicomhang/internal/displayset"
	"github.com/mrsinham/dicomhang/internal/grid"
	"github.com/mrsinham/dicomhang/internal/logging"
	"github.com/mrsinham/dicomhang/internal/metrics"
	"github.com/mrsinham/dicomhang/internal/navigation"
	"github.com/mrsinham/dicomhang/internal/protocol"
	"github.com/mrsinham/dicomhang/internal/session"
)

// workspace is everything one session needs: protocols, the study catalog,
// the grid and the store.
type workspace struct {
	cfg      config.Config
	log      zerolog.Logger
	registry *protocol.Registry
	catalog  *displayset.MemoryCatalog
	grid     *grid.MemoryGrid
	store    *session.Store
	gatherer *prometheus.Registry
	metrics  *metrics.Recorder
	studyUID string
}

// addSessionFlags registers the flags that override session file values.
func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("protocols", nil, "protocol files or directories")
	cmd.Flags().String("study-dir", "", "directory holding the study files")
	cmd.Flags().String("study", "", "study instance UID (default: most recent study)")
	cmd.Flags().String("protocol", "", "protocol to apply (default: best match)")
}

// loadConfig reads --config when given and applies flag overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("protocols") {
		cfg.Protocols, _ = flags.GetStringSlice("protocols")
	}
	if flags.Changed("study-dir") {
		cfg.StudyDir, _ = flags.GetString("study-dir")
	}
	if flags.Changed("study") {
		cfg.StudyUID, _ = flags.GetString("study")
	}
	if flags.Changed("protocol") {
		cfg.Protocol, _ = flags.GetString("protocol")
	}
	if flags.Changed("log-level") {
		level, _ := flags.GetString("log-level")
		if _, ok := logging.ParseLevel(level); !ok {
			return config.Config{}, fmt.Errorf("unknown log level %q", level)
		}
		cfg.LogLevel = level
	}
	return cfg, nil
}

func openWorkspace(cmd *cobra.Command) (*workspace, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if cfg.StudyDir == "" {
		return nil, fmt.Errorf("no study directory: use --study-dir or study_dir in the session file")
	}

	log := logging.Runtime(cfg.LogLevel)

	protocols, err := protocol.LoadPaths(cfg.Protocols)
	if err != nil {
		return nil, err
	}
	for _, p := range protocols {
		for _, f := range dicom.LintProtocol(p) {
			log.Warn().Str("protocol", p.ID).Msg(f.String())
		}
	}

	catalog, err := dicom.LoadDirectory(cfg.StudyDir, dicom.WithLogger(log))
	if err != nil {
		return nil, err
	}

	studyUID := cfg.StudyUID
	if studyUID == "" {
		studyUID = latestStudy(catalog)
	} else if _, err := catalog.Study(studyUID); err != nil {
		return nil, err
	}

	gatherer := prometheus.NewRegistry()
	ws := &workspace{
		cfg:      cfg,
		log:      log,
		registry: protocol.NewRegistry(protocols...),
		catalog:  catalog,
		grid:     grid.NewMemoryGrid(),
		store:    session.New(),
		gatherer: gatherer,
		metrics:  metrics.New(gatherer),
		studyUID: studyUID,
	}
	log.Debug().
		Str("session", ws.store.ID()).
		Str("study", studyUID).
		Int("protocols", len(protocols)).
		Msg("workspace opened")
	return ws, nil
}

func (ws *workspace) Close() error {
	return ws.store.Close()
}

func (ws *workspace) controller(n navigation.Notifier, opts ...navigation.Option) *navigation.Controller {
	base := []navigation.Option{
		navigation.WithLogger(ws.log),
		navigation.WithMetrics(ws.metrics),
	}
	if n != nil {
		base = append(base, navigation.WithNotifier(n))
	}
	opts = append(base, opts...)
	return navigation.New(ws.registry, ws.catalog, ws.grid, ws.store, opts...)
}

// start applies the configured protocol, or the best scoring one.
func (ws *workspace) start(ctrl *navigation.Controller, stage *int) error {
	if ws.cfg.Protocol == "" && stage == nil {
		return ctrl.Run(ws.studyUID)
	}
	id := ws.cfg.Protocol
	if id == "" {
		id = protocol.DefaultProtocolID
	}
	return ctrl.Apply(navigation.Params{
		ProtocolID:     id,
		StageIndex:     stage,
		ActiveStudyUID: ws.studyUID,
	})
}

// label describes a display set for humans.
func (ws *workspace) label(uid string) string {
	ds, ok := ws.catalog.DisplaySet(uid)
	if !ok {
		return uid
	}
	label := fmt.Sprintf("#%d %s", ds.SeriesNumber, ds.Modality)
	if ds.SeriesDescription != "" {
		label += " " + ds.SeriesDescription
	}
	if ds.NumImageFrames > 1 {
		label += fmt.Sprintf(" (%d)", ds.NumImageFrames)
	}
	return label
}

// latestStudy picks the most recent study; ties go to the first UID.
func latestStudy(c *displayset.MemoryCatalog) string {
	uids := c.StudyUIDs()
	type dated struct{ uid, date string }
	list := make([]dated, 0, len(uids))
	for _, uid := range uids {
		st, err := c.Study(uid)
		if err != nil {
			continue
		}
		list = append(list, dated{uid, st.StudyDate})
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].date > list[j].date })
	if len(list) == 0 {
		return ""
	}
	return list[0].uid
}
