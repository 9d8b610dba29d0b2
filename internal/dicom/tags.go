package dicom

import (
	"fmt"
	"sort"
	"strings"

	"github.com/suyashkumar/dicom/pkg/tag"
)

// Scope is the level of the DICOM hierarchy an attribute belongs to, which
// decides whether study or series matching rules can see it.
type Scope int

const (
	ScopePatient Scope = iota
	ScopeStudy
	ScopeSeries
	ScopeInstance
)

// String returns the string representation of a Scope.
func (s Scope) String() string {
	switch s {
	case ScopePatient:
		return "Patient"
	case ScopeStudy:
		return "Study"
	case ScopeSeries:
		return "Series"
	case ScopeInstance:
		return "Instance"
	default:
		return "Unknown"
	}
}

// StudyLevel reports whether study matching rules see attributes of s.
func (s Scope) StudyLevel() bool {
	return s == ScopePatient || s == ScopeStudy
}

// AttributeInfo describes an attribute usable in matching rules.
type AttributeInfo struct {
	Name  string
	Tag   tag.Tag
	Scope Scope
	// Derived attributes are computed while building display sets and have
	// no tag of their own.
	Derived bool
}

// attributes maps lowercase attribute names to their info.
var attributes = map[string]AttributeInfo{
	// Patient level
	"patientname":      {Name: "PatientName", Tag: tag.PatientName, Scope: ScopePatient},
	"patientid":        {Name: "PatientID", Tag: tag.PatientID, Scope: ScopePatient},
	"patientbirthdate": {Name: "PatientBirthDate", Tag: tag.PatientBirthDate, Scope: ScopePatient},
	"patientsex":       {Name: "PatientSex", Tag: tag.PatientSex, Scope: ScopePatient},

	// Study level
	"studyinstanceuid":       {Name: "StudyInstanceUID", Tag: tag.StudyInstanceUID, Scope: ScopeStudy},
	"studydate":              {Name: "StudyDate", Tag: tag.StudyDate, Scope: ScopeStudy},
	"studytime":              {Name: "StudyTime", Tag: tag.StudyTime, Scope: ScopeStudy},
	"studyid":                {Name: "StudyID", Tag: tag.StudyID, Scope: ScopeStudy},
	"studydescription":       {Name: "StudyDescription", Tag: tag.StudyDescription, Scope: ScopeStudy},
	"accessionnumber":        {Name: "AccessionNumber", Tag: tag.AccessionNumber, Scope: ScopeStudy},
	"institutionname":        {Name: "InstitutionName", Tag: tag.InstitutionName, Scope: ScopeStudy},
	"referringphysicianname": {Name: "ReferringPhysicianName", Tag: tag.ReferringPhysicianName, Scope: ScopeStudy},
	"modalitiesinstudy":      {Name: "ModalitiesInStudy", Scope: ScopeStudy, Derived: true},
	"numberofpriors":         {Name: "numberOfPriors", Scope: ScopeStudy, Derived: true},

	// Series level
	"seriesinstanceuid":     {Name: "SeriesInstanceUID", Tag: tag.SeriesInstanceUID, Scope: ScopeSeries},
	"seriesnumber":          {Name: "SeriesNumber", Tag: tag.SeriesNumber, Scope: ScopeSeries},
	"seriesdescription":     {Name: "SeriesDescription", Tag: tag.SeriesDescription, Scope: ScopeSeries},
	"modality":              {Name: "Modality", Tag: tag.Modality, Scope: ScopeSeries},
	"bodypartexamined":      {Name: "BodyPartExamined", Tag: tag.BodyPartExamined, Scope: ScopeSeries},
	"protocolname":          {Name: "ProtocolName", Tag: tag.ProtocolName, Scope: ScopeSeries},
	"laterality":            {Name: "Laterality", Tag: tag.Laterality, Scope: ScopeSeries},
	"manufacturer":          {Name: "Manufacturer", Tag: tag.Manufacturer, Scope: ScopeSeries},
	"manufacturermodelname": {Name: "ManufacturerModelName", Tag: tag.ManufacturerModelName, Scope: ScopeSeries},
	"sequencename":          {Name: "SequenceName", Tag: tag.SequenceName, Scope: ScopeSeries},
	"displaysetinstanceuid": {Name: "displaySetInstanceUID", Scope: ScopeSeries, Derived: true},
	"numimageframes":        {Name: "numImageFrames", Scope: ScopeSeries, Derived: true},
	"ismultiframe":          {Name: "isMultiFrame", Scope: ScopeSeries, Derived: true},
	"isreconstructable":     {Name: "isReconstructable", Scope: ScopeSeries, Derived: true},

	// Instance level, read from the first instance of a display set
	"sopclassuid":             {Name: "SOPClassUID", Tag: tag.SOPClassUID, Scope: ScopeInstance},
	"imagetype":               {Name: "ImageType", Tag: tag.ImageType, Scope: ScopeInstance},
	"viewposition":            {Name: "ViewPosition", Tag: tag.ViewPosition, Scope: ScopeInstance},
	"imagelaterality":         {Name: "ImageLaterality", Tag: tag.ImageLaterality, Scope: ScopeInstance},
	"imageorientationpatient": {Name: "ImageOrientationPatient", Tag: tag.ImageOrientationPatient, Scope: ScopeInstance},
	"rows":                    {Name: "Rows", Tag: tag.Rows, Scope: ScopeInstance},
	"columns":                 {Name: "Columns", Tag: tag.Columns, Scope: ScopeInstance},
	"windowcenter":            {Name: "WindowCenter", Tag: tag.WindowCenter, Scope: ScopeInstance},
	"windowwidth":             {Name: "WindowWidth", Tag: tag.WindowWidth, Scope: ScopeInstance},
}

// LookupAttribute returns the info of an attribute name. The lookup is case
// insensitive and falls back to the full DICOM dictionary, whose keywords are
// treated as instance level. Unknown names get a suggestion for the closest
// registered name (using Levenshtein distance).
func LookupAttribute(name string) (AttributeInfo, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if info, ok := attributes[normalized]; ok {
		return info, nil
	}
	if ti, err := tag.FindByName(strings.TrimSpace(name)); err == nil {
		return AttributeInfo{Name: ti.Name, Tag: ti.Tag, Scope: ScopeInstance}, nil
	}

	if suggestion := closestAttribute(normalized); suggestion != "" {
		return AttributeInfo{}, fmt.Errorf("unknown attribute %q, did you mean %q?", name, suggestion)
	}
	return AttributeInfo{}, fmt.Errorf("unknown attribute %q", name)
}

// taggedAttributes lists the registered attributes read from files, in name
// order.
func taggedAttributes() []AttributeInfo {
	out := make([]AttributeInfo, 0, len(attributes))
	for _, info := range attributes {
		if !info.Derived {
			out = append(out, info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// closestAttribute returns the registered name closest to input, or "" when
// nothing is within maxDistance edits.
func closestAttribute(input string) string {
	const maxDistance = 5
	bestDistance := maxDistance + 1
	var bestMatch string

	keys := make([]string, 0, len(attributes))
	for k := range attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if d := levenshteinDistance(input, key); d < bestDistance {
			bestDistance = d
			bestMatch = attributes[key].Name
		}
	}
	if bestDistance <= maxDistance {
		return bestMatch
	}
	return ""
}

// levenshteinDistance is the minimum number of single-character edits
// turning a into b.
func levenshteinDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
