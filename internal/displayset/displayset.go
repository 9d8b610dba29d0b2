// Package displayset models display sets and studies as seen by the
// hanging protocol engine, and the catalog interface that supplies them.
package displayset

import (
	"errors"
	"strings"

	"github.com/mrsinham/dicomhang/internal/matching"
)

// ErrStudyNotFound is returned by catalogs for unknown study UIDs.
var ErrStudyNotFound = errors.New("study not found")

// DisplaySet is a logical group of instances shown together in a viewport,
// usually one series or one multi-frame instance.
type DisplaySet struct {
	InstanceUID       string
	StudyInstanceUID  string
	SeriesInstanceUID string
	SOPClassUID       string
	Modality          string
	SeriesNumber      int
	SeriesDescription string
	NumImageFrames    int
	IsMultiFrame      bool
	IsReconstructable bool
	// Attributes carries any further metadata by DICOM keyword.
	Attributes map[string]any
}

// Lookup implements matching.Attributes. Well known fields answer to both
// their DICOM keyword and their camelCase name.
func (ds DisplaySet) Lookup(path string) (any, bool) {
	switch normalizeKey(path) {
	case "displaysetinstanceuid":
		return ds.InstanceUID, true
	case "studyinstanceuid":
		return ds.StudyInstanceUID, true
	case "seriesinstanceuid":
		return ds.SeriesInstanceUID, true
	case "sopclassuid":
		if ds.SOPClassUID == "" {
			break
		}
		return ds.SOPClassUID, true
	case "modality":
		return ds.Modality, true
	case "seriesnumber":
		return ds.SeriesNumber, true
	case "seriesdescription":
		return ds.SeriesDescription, true
	case "numimageframes":
		return ds.NumImageFrames, true
	case "ismultiframe":
		return ds.IsMultiFrame, true
	case "isreconstructable":
		return ds.IsReconstructable, true
	}
	if ds.Attributes == nil {
		return nil, false
	}
	return matching.LookupPath(ds.Attributes, path)
}

// Study is the study level view used by study and protocol matching rules.
type Study struct {
	StudyInstanceUID string
	PatientID        string
	StudyDate        string
	StudyDescription string
	// ModalitiesInStudy is derived from the study's display sets.
	ModalitiesInStudy []string
	// Priors are earlier studies of the same patient, most recent first.
	Priors     []string
	Attributes map[string]any
}

// Lookup implements matching.Attributes.
func (s Study) Lookup(path string) (any, bool) {
	switch normalizeKey(path) {
	case "studyinstanceuid":
		return s.StudyInstanceUID, true
	case "patientid":
		return s.PatientID, true
	case "studydate":
		return s.StudyDate, true
	case "studydescription":
		return s.StudyDescription, true
	case "modalitiesinstudy":
		return s.ModalitiesInStudy, true
	case "numberofpriors":
		return len(s.Priors), true
	}
	if s.Attributes == nil {
		return nil, false
	}
	return matching.LookupPath(s.Attributes, path)
}

// Catalog supplies the display sets of a study.
type Catalog interface {
	DisplaySetsForStudy(studyUID string) ([]DisplaySet, error)
	Study(studyUID string) (Study, error)
}

func normalizeKey(k string) string {
	return strings.ToLower(k)
}
