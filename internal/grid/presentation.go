package grid

import (
	"strconv"
	"strings"
)

// maxDisplayInstances bounds how many copies of one presentation may be on
// screen at once.
const maxDisplayInstances = 128

// PresentationID returns the presentation identity of vp: viewport type,
// display instance ordinal, optional orientation, the display set UIDs and
// the optional prefix, joined with '&'. The ordinal is the lowest one not
// already used by any of viewports. Empty viewports have no presentation.
func PresentationID(vp Viewport, viewports []Viewport) string {
	if len(vp.DisplaySetInstanceUIDs) == 0 {
		return ""
	}

	parts := []string{string(vp.ViewportOptions.Kind()), "0"}
	if o := vp.ViewportOptions.Orientation(); o != "" {
		parts = append(parts, o)
	}
	parts = append(parts, vp.DisplaySetInstanceUIDs...)
	if p := vp.ViewportOptions.PresentationPrefix; p != "" {
		parts = append(parts, p)
	}

	used := make(map[string]bool, len(viewports))
	for _, other := range viewports {
		if other.PresentationID != "" {
			used[other.PresentationID] = true
		}
	}

	id := strings.Join(parts, "&")
	for ordinal := 0; ordinal < maxDisplayInstances; ordinal++ {
		parts[1] = strconv.Itoa(ordinal)
		id = strings.Join(parts, "&")
		if !used[id] {
			break
		}
	}
	return id
}

// AssignPresentationIDs fills PresentationID on every cell that lacks one,
// in cell order.
func AssignPresentationIDs(s *State) {
	for i := range s.Viewports {
		if s.Viewports[i].PresentationID != "" {
			continue
		}
		s.Viewports[i].PresentationID = PresentationID(s.Viewports[i], s.Viewports)
	}
}
