// Package protocol provides the typed hanging protocol model: protocols,
// stages, viewport slots, display set selectors and matching rules.
//
// Protocols are read-only configuration. Nothing in this package mutates a
// protocol after it has been loaded.
package protocol

import "fmt"

// DefaultProtocolID is the id of the built-in protocol and the fallback
// target when toggling off a protocol that has no recorded previous state.
const DefaultProtocolID = "default"

// Priors values for NumberOfPriorsReferenced.
const (
	NoPriors  = -1 // only the active study is referenced
	AnyPriors = 0  // any number of priors, including none
)

// Protocol is the top level hanging protocol definition.
type Protocol struct {
	ID                       string                        `yaml:"id"`
	Name                     string                        `yaml:"name"`
	Locked                   bool                          `yaml:"locked"`
	ToolGroupIDs             []string                      `yaml:"toolGroupIds"`
	NumberOfPriorsReferenced int                           `yaml:"numberOfPriorsReferenced"`
	ProtocolMatchingRules    []MatchingRule                `yaml:"protocolMatchingRules"`
	DisplaySetSelectors      map[string]DisplaySetSelector `yaml:"displaySetSelectors"`
	DefaultViewport          *Viewport                     `yaml:"defaultViewport"`
	Stages                   []Stage                       `yaml:"stages"`
}

// Stage is one concrete layout within a protocol.
type Stage struct {
	ID                  string            `yaml:"id"`
	Name                string            `yaml:"name"`
	ViewportStructure   ViewportStructure `yaml:"viewportStructure"`
	Viewports           []Viewport        `yaml:"viewports"`
	RequiredViewports   int               `yaml:"requiredViewports"`
	PreferredViewports  int               `yaml:"preferredViewports"`
	RequiredDisplaySets []string          `yaml:"requiredDisplaySets"`
	DefaultViewport     *Viewport         `yaml:"defaultViewport"`
}

// Key returns the stage id, falling back to the name.
func (s Stage) Key() string {
	if s.ID != "" {
		return s.ID
	}
	return s.Name
}

// MinViewports returns the number of filled viewports below which the stage
// is disabled. Defaults to 1.
func (s Stage) MinViewports() int {
	if s.RequiredViewports > 0 {
		return s.RequiredViewports
	}
	return 1
}

// WantedViewports returns the number of filled viewports at which the stage
// is fully enabled. Defaults to the number of declared viewport slots.
func (s Stage) WantedViewports() int {
	if s.PreferredViewports > 0 {
		return s.PreferredViewports
	}
	return len(s.Viewports)
}

// ViewportStructure describes the grid a stage lays out.
type ViewportStructure struct {
	LayoutType    string         `yaml:"layoutType"`
	Rows          int            `yaml:"rows"`
	Columns       int            `yaml:"columns"`
	LayoutOptions []LayoutOption `yaml:"layoutOptions"`
}

// LayoutOption is an explicit sub-rectangle of the display, in unit
// coordinates.
type LayoutOption struct {
	X      float64 `yaml:"x"`
	Y      float64 `yaml:"y"`
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

// Cells returns the number of positions the structure describes.
func (vs ViewportStructure) Cells() int {
	if len(vs.LayoutOptions) > 0 {
		return len(vs.LayoutOptions)
	}
	return vs.Rows * vs.Columns
}

// Viewport declares one slot of a stage.
type Viewport struct {
	Options     ViewportOptions `yaml:"viewportOptions"`
	DisplaySets []DisplaySetRef `yaml:"displaySets"`
}

// DisplaySetRef points a viewport slot at a display set selector.
type DisplaySetRef struct {
	SelectorID string `yaml:"id"`
	// DisplaySetIndex selects an entry of the ranked candidate list. Nil or
	// negative means "first candidate not already displayed".
	DisplaySetIndex *int           `yaml:"displaySetIndex"`
	ReuseID         string         `yaml:"reuseId"`
	ValidateReuseID bool           `yaml:"validateReuseId"`
	Options         map[string]any `yaml:"options"`
}

// ExplicitIndex reports the requested offset into the ranked candidates, or
// false when the ref asks for the first undisplayed candidate.
func (r DisplaySetRef) ExplicitIndex() (int, bool) {
	if r.DisplaySetIndex == nil || *r.DisplaySetIndex < 0 {
		return 0, false
	}
	return *r.DisplaySetIndex, true
}

// DisplaySetSelector is a named rule set used to pick display sets.
type DisplaySetSelector struct {
	// ImageMatchingRules are carried for completeness; image level matching
	// is not evaluated.
	ImageMatchingRules  []MatchingRule `yaml:"imageMatchingRules"`
	SeriesMatchingRules []MatchingRule `yaml:"seriesMatchingRules"`
	StudyMatchingRules  []MatchingRule `yaml:"studyMatchingRules"`
}

// Stage returns the stage at index, or false when out of range.
func (p *Protocol) Stage(index int) (Stage, bool) {
	if index < 0 || index >= len(p.Stages) {
		return Stage{}, false
	}
	return p.Stages[index], true
}

// StageIndex finds a stage by id (or name). An explicit index wins when
// given; with neither, the first stage is used.
func (p *Protocol) StageIndex(stageID string, stageIndex *int) (int, error) {
	if stageIndex != nil {
		if *stageIndex < 0 || *stageIndex >= len(p.Stages) {
			return 0, fmt.Errorf("protocol %q: stage index %d out of range [0,%d)", p.ID, *stageIndex, len(p.Stages))
		}
		return *stageIndex, nil
	}
	if stageID == "" {
		return 0, nil
	}
	for i, s := range p.Stages {
		if s.Key() == stageID {
			return i, nil
		}
	}
	for i, s := range p.Stages {
		if s.Name == stageID {
			return i, nil
		}
	}
	return 0, fmt.Errorf("protocol %q: no stage %q", p.ID, stageID)
}

// MissingViewport returns the viewport definition used to fill a position
// that a stage does not declare: the stage default, then the protocol
// default, then the stage slot at the same index.
func (p *Protocol) MissingViewport(stageIndex, position int) (Viewport, bool) {
	stage, ok := p.Stage(stageIndex)
	if !ok {
		return Viewport{}, false
	}
	if stage.DefaultViewport != nil {
		return *stage.DefaultViewport, true
	}
	if p.DefaultViewport != nil {
		return *p.DefaultViewport, true
	}
	if position >= 0 && position < len(stage.Viewports) {
		return stage.Viewports[position], true
	}
	return Viewport{}, false
}
