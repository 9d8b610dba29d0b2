package protocol

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ViewportType selects the rendering kind of a viewport.
type ViewportType string

const (
	ViewportStack  ViewportType = "stack"
	ViewportVolume ViewportType = "volume"
)

// ViewportOptions is a tagged variant: exactly one of Stack or Volume is set,
// matching Type.
type ViewportOptions struct {
	Type               ViewportType
	ToolGroupID        string
	ViewportID         string
	SyncGroups         []SyncGroup
	PresentationPrefix string
	AllowUnmatchedView bool

	Stack  *StackOptions
	Volume *VolumeOptions
}

// StackOptions are the fields only a stack viewport may carry.
type StackOptions struct {
	InitialImageIndex  *int
	InitialImagePreset string
}

// VolumeOptions are the fields only a volume viewport may carry.
type VolumeOptions struct {
	Orientation string
}

// SyncGroup links viewports that share camera or VOI state.
type SyncGroup struct {
	Type   string `yaml:"type"`
	ID     string `yaml:"id"`
	Source bool   `yaml:"source"`
	Target bool   `yaml:"target"`
}

// Orientation returns the volume orientation, or "" for stack viewports.
func (o ViewportOptions) Orientation() string {
	if o.Volume == nil {
		return ""
	}
	return o.Volume.Orientation
}

// Kind returns the viewport type, defaulting to stack.
func (o ViewportOptions) Kind() ViewportType {
	if o.Type == "" {
		return ViewportStack
	}
	return o.Type
}

type initialImageOptions struct {
	Index  *int   `yaml:"index"`
	Preset string `yaml:"preset"`
}

type rawViewportOptions struct {
	ViewportType        string               `yaml:"viewportType"`
	ToolGroupID         string               `yaml:"toolGroupId"`
	ViewportID          string               `yaml:"viewportId"`
	SyncGroups          []SyncGroup          `yaml:"syncGroups"`
	PresentationPrefix  string               `yaml:"presentationPrefix"`
	AllowUnmatchedView  bool                 `yaml:"allowUnmatchedView"`
	Orientation         string               `yaml:"orientation"`
	InitialImageOptions *initialImageOptions `yaml:"initialImageOptions"`
}

// UnmarshalYAML decodes the flat file form into the tagged variant.
func (o *ViewportOptions) UnmarshalYAML(node *yaml.Node) error {
	var raw rawViewportOptions
	if err := node.Decode(&raw); err != nil {
		return err
	}

	out := ViewportOptions{
		ToolGroupID:        raw.ToolGroupID,
		ViewportID:         raw.ViewportID,
		SyncGroups:         raw.SyncGroups,
		PresentationPrefix: raw.PresentationPrefix,
		AllowUnmatchedView: raw.AllowUnmatchedView,
	}

	switch raw.ViewportType {
	case "", string(ViewportStack):
		if raw.Orientation != "" {
			return fmt.Errorf("line %d: orientation %q is only valid on volume viewports", node.Line, raw.Orientation)
		}
		out.Type = ViewportStack
		out.Stack = &StackOptions{}
		if raw.InitialImageOptions != nil {
			out.Stack.InitialImageIndex = raw.InitialImageOptions.Index
			out.Stack.InitialImagePreset = raw.InitialImageOptions.Preset
		}
	case string(ViewportVolume), "orthographic":
		if raw.InitialImageOptions != nil {
			return fmt.Errorf("line %d: initialImageOptions is only valid on stack viewports", node.Line)
		}
		out.Type = ViewportVolume
		out.Volume = &VolumeOptions{Orientation: raw.Orientation}
	default:
		return fmt.Errorf("line %d: unknown viewportType %q", node.Line, raw.ViewportType)
	}

	*o = out
	return nil
}

// MarshalYAML renders the variant back into the flat file form.
func (o ViewportOptions) MarshalYAML() (any, error) {
	raw := rawViewportOptions{
		ViewportType:       string(o.Kind()),
		ToolGroupID:        o.ToolGroupID,
		ViewportID:         o.ViewportID,
		SyncGroups:         o.SyncGroups,
		PresentationPrefix: o.PresentationPrefix,
		AllowUnmatchedView: o.AllowUnmatchedView,
	}
	if o.Volume != nil {
		raw.Orientation = o.Volume.Orientation
	}
	if o.Stack != nil && (o.Stack.InitialImageIndex != nil || o.Stack.InitialImagePreset != "") {
		raw.InitialImageOptions = &initialImageOptions{
			Index:  o.Stack.InitialImageIndex,
			Preset: o.Stack.InitialImagePreset,
		}
	}
	return raw, nil
}

// UnmarshalYAML accepts rows, columns and layoutOptions either inline or
// nested under a properties block.
func (vs *ViewportStructure) UnmarshalYAML(node *yaml.Node) error {
	type props struct {
		Rows          int            `yaml:"rows"`
		Columns       int            `yaml:"columns"`
		LayoutOptions []LayoutOption `yaml:"layoutOptions"`
	}
	var raw struct {
		LayoutType string `yaml:"layoutType"`
		Inline     props  `yaml:",inline"`
		Properties *props `yaml:"properties"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	p := raw.Inline
	if raw.Properties != nil {
		p = *raw.Properties
	}
	*vs = ViewportStructure{
		LayoutType:    raw.LayoutType,
		Rows:          p.Rows,
		Columns:       p.Columns,
		LayoutOptions: p.LayoutOptions,
	}
	if vs.LayoutType == "" {
		vs.LayoutType = "grid"
	}
	return nil
}
