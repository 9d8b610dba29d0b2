// Package dicom reads DICOM studies into display sets and writes synthetic
// studies for fixtures and demos.
package dicom

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/mrsinham/dicomhang/internal/dicom/modalities"
	"github.com/mrsinham/dicomhang/internal/displayset"
)

// ErrNoInstances is returned when a directory holds no readable instance.
var ErrNoInstances = errors.New("no DICOM instances found")

// minReconstructableSlices is the smallest stack treated as a volume.
const minReconstructableSlices = 3

// Instance is the metadata of one DICOM file.
type Instance struct {
	Path              string
	SOPInstanceUID    string
	SOPClassUID       string
	StudyInstanceUID  string
	SeriesInstanceUID string
	Modality          string
	SeriesNumber      int
	SeriesDescription string
	InstanceNumber    int
	NumberOfFrames    int
	Rows              int
	PatientID         string
	StudyDate         string
	StudyDescription  string
	// Attributes holds every registered attribute found in the file, by
	// keyword.
	Attributes map[string]any
}

// IsImage reports whether the instance holds pixel data worth displaying.
func (in Instance) IsImage() bool {
	return modalities.IsImageSOPClass(in.SOPClassUID) || in.Rows > 0
}

// IsMultiFrame reports whether the instance holds more than one frame.
func (in Instance) IsMultiFrame() bool {
	return in.NumberOfFrames > 1
}

// ReadInstance reads the metadata of one file, skipping pixel data.
func ReadInstance(path string) (Instance, error) {
	ds, err := parseDICOMTolerant(path)
	if err != nil {
		return Instance{}, fmt.Errorf("read %s: %w", path, err)
	}

	in := Instance{Path: path, Attributes: make(map[string]any)}
	for _, info := range taggedAttributes() {
		if v, ok := elementValue(ds, info.Tag); ok {
			in.Attributes[info.Name] = v
		}
	}

	in.SOPInstanceUID = stringValue(ds, tag.SOPInstanceUID)
	in.SOPClassUID = stringValue(ds, tag.SOPClassUID)
	in.StudyInstanceUID = stringValue(ds, tag.StudyInstanceUID)
	in.SeriesInstanceUID = stringValue(ds, tag.SeriesInstanceUID)
	in.Modality = strings.ToUpper(stringValue(ds, tag.Modality))
	in.SeriesDescription = stringValue(ds, tag.SeriesDescription)
	in.PatientID = stringValue(ds, tag.PatientID)
	in.StudyDate = stringValue(ds, tag.StudyDate)
	in.StudyDescription = stringValue(ds, tag.StudyDescription)
	in.SeriesNumber = intValue(ds, tag.SeriesNumber)
	in.InstanceNumber = intValue(ds, tag.InstanceNumber)
	in.NumberOfFrames = intValue(ds, tag.NumberOfFrames)
	in.Rows = intValue(ds, tag.Rows)

	if in.StudyInstanceUID == "" || in.SeriesInstanceUID == "" {
		return Instance{}, fmt.Errorf("read %s: missing study or series instance UID", path)
	}
	return in, nil
}

// LoadOption configures LoadDirectory.
type LoadOption func(*loadConfig)

type loadConfig struct {
	log zerolog.Logger
}

// WithLogger reports skipped files on l.
func WithLogger(l zerolog.Logger) LoadOption {
	return func(c *loadConfig) { c.log = l }
}

// LoadDirectory reads every DICOM file under root and builds a catalog of
// display sets. Files that cannot be parsed are skipped.
func LoadDirectory(root string, opts ...LoadOption) (*displayset.MemoryCatalog, error) {
	cfg := loadConfig{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	var instances []Instance
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.EqualFold(d.Name(), "DICOMDIR") || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		in, err := ReadInstance(path)
		if err != nil {
			cfg.log.Debug().Err(err).Str("path", path).Msg("skipping file")
			return nil
		}
		instances = append(instances, in)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	if len(instances) == 0 {
		return nil, fmt.Errorf("%w under %s", ErrNoInstances, root)
	}

	catalog := displayset.NewMemoryCatalog()
	for _, study := range groupStudies(instances) {
		catalog.AddStudy(study.study)
		catalog.Add(study.sets...)
		cfg.log.Debug().
			Str("study", study.study.StudyInstanceUID).
			Int("display_sets", len(study.sets)).
			Msg("study loaded")
	}
	return catalog, nil
}

type studyGroup struct {
	study displayset.Study
	sets  []displayset.DisplaySet
}

// groupStudies splits instances by study, in study UID order.
func groupStudies(instances []Instance) []studyGroup {
	byStudy := make(map[string][]Instance)
	var order []string
	for _, in := range instances {
		if _, ok := byStudy[in.StudyInstanceUID]; !ok {
			order = append(order, in.StudyInstanceUID)
		}
		byStudy[in.StudyInstanceUID] = append(byStudy[in.StudyInstanceUID], in)
	}
	sort.Strings(order)

	out := make([]studyGroup, 0, len(order))
	for _, uid := range order {
		members := byStudy[uid]
		first := members[0]
		study := displayset.Study{
			StudyInstanceUID: uid,
			PatientID:        first.PatientID,
			StudyDate:        first.StudyDate,
			StudyDescription: first.StudyDescription,
			Attributes:       scopedAttributes(first.Attributes, true),
		}
		out = append(out, studyGroup{study: study, sets: BuildDisplaySets(members)})
	}
	return out
}

// BuildDisplaySets groups the instances of one study into display sets.
// Series are ordered by series number. Within a series, multi-frame
// instances and instances of single image modalities (CR, DX, MG) become
// display sets of their own; the remaining images form one stack. Non-image
// instances are dropped.
func BuildDisplaySets(instances []Instance) []displayset.DisplaySet {
	bySeries := make(map[string][]Instance)
	for _, in := range instances {
		bySeries[in.SeriesInstanceUID] = append(bySeries[in.SeriesInstanceUID], in)
	}
	series := make([]string, 0, len(bySeries))
	for uid := range bySeries {
		series = append(series, uid)
	}
	sort.Slice(series, func(i, j int) bool {
		a, b := bySeries[series[i]][0], bySeries[series[j]][0]
		if a.SeriesNumber != b.SeriesNumber {
			return a.SeriesNumber < b.SeriesNumber
		}
		return series[i] < series[j]
	})

	var out []displayset.DisplaySet
	for _, uid := range series {
		members := bySeries[uid]
		sort.SliceStable(members, func(i, j int) bool {
			if members[i].InstanceNumber != members[j].InstanceNumber {
				return members[i].InstanceNumber < members[j].InstanceNumber
			}
			return members[i].Path < members[j].Path
		})

		var stack []Instance
		for _, in := range members {
			switch {
			case !in.IsImage():
				continue
			case in.IsMultiFrame():
				ds := makeDisplaySet([]Instance{in})
				ds.NumImageFrames = in.NumberOfFrames
				ds.IsMultiFrame = true
				out = append(out, ds)
			case modalities.IsSingleImage(in.Modality):
				out = append(out, makeDisplaySet([]Instance{in}))
			default:
				stack = append(stack, in)
			}
		}
		if len(stack) > 0 {
			ds := makeDisplaySet(stack)
			ds.IsReconstructable = modalities.IsVolumeCapable(stack[0].Modality) &&
				len(stack) >= minReconstructableSlices
			out = append(out, ds)
		}
	}
	return out
}

func makeDisplaySet(instances []Instance) displayset.DisplaySet {
	first := instances[0]
	attrs := scopedAttributes(first.Attributes, false)
	attrs["InstanceNumber"] = first.InstanceNumber
	return displayset.DisplaySet{
		InstanceUID:       DeterministicUID(first.SeriesInstanceUID + "/" + first.SOPInstanceUID),
		StudyInstanceUID:  first.StudyInstanceUID,
		SeriesInstanceUID: first.SeriesInstanceUID,
		SOPClassUID:       first.SOPClassUID,
		Modality:          first.Modality,
		SeriesNumber:      first.SeriesNumber,
		SeriesDescription: first.SeriesDescription,
		NumImageFrames:    len(instances),
		Attributes:        attrs,
	}
}

// scopedAttributes keeps the study level attributes, or the series and
// instance level ones.
func scopedAttributes(all map[string]any, studyLevel bool) map[string]any {
	out := make(map[string]any)
	for name, v := range all {
		info, ok := attributes[strings.ToLower(name)]
		if !ok || info.Scope.StudyLevel() != studyLevel {
			continue
		}
		out[name] = v
	}
	return out
}

// parseDICOMTolerant parses a DICOM file element-by-element, tolerating errors
// in individual elements, and returns what it could read. Pixel data is
// skipped.
func parseDICOMTolerant(path string) (dicom.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return dicom.Dataset{}, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return dicom.Dataset{}, err
	}

	p, err := dicom.NewParser(f, info.Size(), nil, dicom.SkipPixelData())
	if err != nil {
		return dicom.Dataset{}, err
	}

	var elements []*dicom.Element
	for {
		elem, err := p.Next()
		if err != nil {
			// io.EOF or a broken element: keep what was collected
			break
		}
		elements = append(elements, elem)
	}

	if len(elements) == 0 {
		return dicom.Dataset{}, fmt.Errorf("no elements parsed")
	}

	meta := p.GetMetadata()
	return dicom.Dataset{Elements: append(meta.Elements, elements...)}, nil
}

// elementValue converts an element to a matching value: a scalar for single
// values, a list otherwise.
func elementValue(ds dicom.Dataset, t tag.Tag) (any, bool) {
	elem, err := ds.FindElementByTag(t)
	if err != nil || elem == nil || elem.Value == nil {
		return nil, false
	}

	var list []any
	switch v := elem.Value.GetValue().(type) {
	case []string:
		for _, s := range v {
			list = append(list, cleanString(s))
		}
	case []int:
		for _, n := range v {
			list = append(list, n)
		}
	case []float64:
		for _, f := range v {
			list = append(list, f)
		}
	default:
		return nil, false
	}

	switch len(list) {
	case 0:
		return nil, false
	case 1:
		return list[0], true
	default:
		return list, true
	}
}

// stringValue returns the first value of a string element, or "".
func stringValue(ds dicom.Dataset, t tag.Tag) string {
	elem, err := ds.FindElementByTag(t)
	if err != nil || elem == nil || elem.Value == nil {
		return ""
	}
	if v, ok := elem.Value.GetValue().([]string); ok && len(v) > 0 {
		return cleanString(v[0])
	}
	return strings.Trim(elem.Value.String(), " []")
}

// intValue reads IS strings and binary integers alike.
func intValue(ds dicom.Dataset, t tag.Tag) int {
	elem, err := ds.FindElementByTag(t)
	if err != nil || elem == nil || elem.Value == nil {
		return 0
	}
	switch v := elem.Value.GetValue().(type) {
	case []int:
		if len(v) > 0 {
			return v[0]
		}
	case []string:
		if len(v) > 0 {
			n, err := strconv.Atoi(cleanString(v[0]))
			if err == nil {
				return n
			}
		}
	}
	return 0
}

func cleanString(s string) string {
	return strings.TrimSpace(strings.TrimRight(s, "\x00"))
}
