package dicom

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mrsinham/dicomhang/internal/protocol"
)

// Severity grades a lint finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is one problem found in a protocol.
type Finding struct {
	Severity Severity
	Location string
	Message  string
}

func (f Finding) String() string {
	return fmt.Sprintf("%s: %s: %s", f.Severity, f.Location, f.Message)
}

// LintProtocol checks a protocol against the attribute registry: rules must
// name known attributes, and study rules must use study level ones.
// Structural validation errors are reported first.
func LintProtocol(p *protocol.Protocol) []Finding {
	var findings []Finding
	if err := p.Validate(); err != nil {
		findings = append(findings, Finding{
			Severity: SeverityError,
			Location: p.ID,
			Message:  err.Error(),
		})
	}

	findings = append(findings, lintRules(p.ID+"/protocolMatchingRules", p.ProtocolMatchingRules, true)...)

	ids := make([]string, 0, len(p.DisplaySetSelectors))
	for id := range p.DisplaySetSelectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		sel := p.DisplaySetSelectors[id]
		base := p.ID + "/displaySetSelectors/" + id
		findings = append(findings, lintRules(base+"/studyMatchingRules", sel.StudyMatchingRules, true)...)
		findings = append(findings, lintRules(base+"/seriesMatchingRules", sel.SeriesMatchingRules, false)...)
		if len(sel.ImageMatchingRules) > 0 {
			findings = append(findings, Finding{
				Severity: SeverityWarning,
				Location: base + "/imageMatchingRules",
				Message:  "image matching rules are ignored",
			})
		}
	}
	return findings
}

func lintRules(location string, rules []protocol.MatchingRule, studyLevel bool) []Finding {
	var out []Finding
	for i, r := range rules {
		loc := fmt.Sprintf("%s[%d]", location, i)
		root, _, _ := strings.Cut(r.Attribute, ".")
		if root == "" {
			continue // reported by Validate
		}
		info, err := LookupAttribute(root)
		if err != nil {
			out = append(out, Finding{Severity: SeverityWarning, Location: loc, Message: err.Error()})
			continue
		}
		if studyLevel && !info.Scope.StudyLevel() {
			out = append(out, Finding{
				Severity: SeverityWarning,
				Location: loc,
				Message:  fmt.Sprintf("%s is a %s attribute and never matches a study rule", info.Name, strings.ToLower(info.Scope.String())),
			})
		}
	}
	return out
}
