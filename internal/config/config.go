// Package config loads the dicomhang session file.
package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/mrsinham/dicomhang/internal/logging"
	"github.com/mrsinham/dicomhang/internal/protocol"
)

// Config describes one viewing session.
type Config struct {
	// Protocols lists protocol files or directories, loaded in order.
	Protocols []string
	// StudyDir is scanned for DICOM files.
	StudyDir string
	// StudyUID selects the active study; empty means the most recent one.
	StudyUID string
	// Protocol is applied at start; empty picks the best scoring one.
	Protocol string
	// ToggleProtocol is what the toggle key flips to.
	ToggleProtocol string
	LogLevel       string
	PreviewWidth   int
	PreviewHeight  int
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		ToggleProtocol: protocol.DefaultProtocolID,
		LogLevel:       "info",
		PreviewWidth:   800,
		PreviewHeight:  600,
	}
}

type fileConfig struct {
	Protocols      []string `toml:"protocols"`
	StudyDir       string   `toml:"study_dir"`
	StudyUID       string   `toml:"study_uid"`
	Protocol       string   `toml:"protocol"`
	ToggleProtocol string   `toml:"toggle_protocol"`
	LogLevel       string   `toml:"log_level"`
	PreviewWidth   int      `toml:"preview_width"`
	PreviewHeight  int      `toml:"preview_height"`
}

// Load reads a session file over Default. Keys absent from the file keep
// their default value.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load session config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load session config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("protocols") {
		cfg.Protocols = normalizePaths(raw.Protocols)
	}
	if meta.IsDefined("study_dir") {
		cfg.StudyDir = strings.TrimSpace(raw.StudyDir)
	}
	if meta.IsDefined("study_uid") {
		cfg.StudyUID = strings.TrimSpace(raw.StudyUID)
	}
	if meta.IsDefined("protocol") {
		cfg.Protocol = strings.TrimSpace(raw.Protocol)
	}
	if meta.IsDefined("toggle_protocol") {
		if v := strings.TrimSpace(raw.ToggleProtocol); v != "" {
			cfg.ToggleProtocol = v
		}
	}
	if meta.IsDefined("log_level") {
		level := strings.TrimSpace(raw.LogLevel)
		if _, ok := logging.ParseLevel(level); !ok {
			return Config{}, fmt.Errorf("parse log_level: unknown level %q", level)
		}
		cfg.LogLevel = level
	}
	if meta.IsDefined("preview_width") {
		cfg.PreviewWidth = raw.PreviewWidth
	}
	if meta.IsDefined("preview_height") {
		cfg.PreviewHeight = raw.PreviewHeight
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that cannot be used as given.
func (c Config) Validate() error {
	if c.PreviewWidth <= 0 || c.PreviewHeight <= 0 {
		return fmt.Errorf("preview size must be positive, got %dx%d", c.PreviewWidth, c.PreviewHeight)
	}
	return nil
}

func normalizePaths(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		v := strings.TrimSpace(p)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
