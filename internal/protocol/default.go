package protocol

const defaultSelectorID = "defaultDisplaySetId"

// Default returns the built-in protocol: a single viewport showing the first
// display set with image frames, plus a 1x2 stage showing the first two.
func Default() *Protocol {
	first := -1
	second := 1
	hasFrames := []MatchingRule{{
		Attribute:  "numImageFrames",
		Constraint: Constraint{GreaterThan: Value(0)},
	}}

	slot := func(reuseID string, index *int) Viewport {
		return Viewport{
			Options: ViewportOptions{
				Type:        ViewportStack,
				ToolGroupID: "default",
				Stack:       &StackOptions{},
			},
			DisplaySets: []DisplaySetRef{{
				SelectorID:      defaultSelectorID,
				ReuseID:         reuseID,
				DisplaySetIndex: index,
			}},
		}
	}

	return &Protocol{
		ID:                       DefaultProtocolID,
		Name:                     "Default",
		Locked:                   true,
		ToolGroupIDs:             []string{"default"},
		NumberOfPriorsReferenced: AnyPriors,
		DefaultViewport: &Viewport{
			Options: ViewportOptions{
				Type:               ViewportStack,
				ToolGroupID:        "default",
				AllowUnmatchedView: true,
				Stack:              &StackOptions{},
			},
			DisplaySets: []DisplaySetRef{{
				SelectorID:      defaultSelectorID,
				DisplaySetIndex: &first,
			}},
		},
		DisplaySetSelectors: map[string]DisplaySetSelector{
			defaultSelectorID: {SeriesMatchingRules: hasFrames},
		},
		Stages: []Stage{
			{
				ID:                "default",
				Name:              "default",
				ViewportStructure: ViewportStructure{LayoutType: "grid", Rows: 1, Columns: 1},
				Viewports:         []Viewport{slot("position-0,0", nil)},
			},
			{
				ID:                 "1x2",
				Name:               "1x2",
				RequiredViewports:  1,
				PreferredViewports: 2,
				ViewportStructure:  ViewportStructure{LayoutType: "grid", Rows: 1, Columns: 2},
				Viewports: []Viewport{
					slot("position-0,0", nil),
					slot("position-1,0", &second),
				},
			},
		},
	}
}
