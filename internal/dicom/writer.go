package dicom

import (
	"errors"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/mrsinham/dicomhang/internal/dicom/modalities"
)

const (
	explicitVRLittleEndian = "1.2.840.10008.1.2.1"
	defaultImageSize       = 64
)

// ErrInvalidStudySpec is returned by WriteStudy for unusable input.
var ErrInvalidStudySpec = errors.New("invalid study spec")

// SeriesSpec describes one synthetic series.
type SeriesSpec struct {
	Modality     string `yaml:"modality"`
	Description  string `yaml:"description"`
	BodyPart     string `yaml:"body_part"`
	ViewPosition string `yaml:"view_position"`
	Laterality   string `yaml:"laterality"`
	// Instances defaults to 1.
	Instances int `yaml:"instances"`
	// Frames above 1 writes multi-frame instances.
	Frames int     `yaml:"frames"`
	Quirks []Quirk `yaml:"quirks"`
}

// StudySpec describes one synthetic study.
type StudySpec struct {
	PatientID        string       `yaml:"patient_id"`
	PatientName      string       `yaml:"patient_name"`
	StudyDate        string       `yaml:"study_date"`
	StudyDescription string       `yaml:"study_description"`
	AccessionNumber  string       `yaml:"accession_number"`
	Width            int          `yaml:"width"`
	Height           int          `yaml:"height"`
	Seed             string       `yaml:"seed"`
	Series           []SeriesSpec `yaml:"series"`
}

// WrittenStudy reports what WriteStudy produced.
type WrittenStudy struct {
	StudyInstanceUID string
	Dir              string
	Files            []string
}

// WriteStudy writes spec as a tree of DICOM files under dir, one directory
// per series. UIDs derive from the seed, so the same spec always produces
// the same study.
func WriteStudy(dir string, spec StudySpec) (WrittenStudy, error) {
	if err := spec.validate(); err != nil {
		return WrittenStudy{}, err
	}
	width, height := spec.Width, spec.Height
	if width == 0 {
		width = defaultImageSize
	}
	if height == 0 {
		height = defaultImageSize
	}

	seed := spec.Seed
	if seed == "" {
		seed = spec.PatientID + "/" + spec.StudyDate + "/" + spec.StudyDescription
	}
	studyUID := DeterministicUID(seed)
	studyDir := filepath.Join(dir, "ST"+shortHash(seed))

	out := WrittenStudy{StudyInstanceUID: studyUID, Dir: studyDir}
	for i, series := range spec.Series {
		seriesNumber := i + 1
		seriesDir := filepath.Join(studyDir, fmt.Sprintf("SE%03d", seriesNumber))
		if err := os.MkdirAll(seriesDir, 0o755); err != nil {
			return out, fmt.Errorf("create series directory: %w", err)
		}

		profile, _ := modalities.Lookup(series.Modality)
		seriesUID := DeterministicUID(fmt.Sprintf("%s/series/%d", seed, seriesNumber))
		instances := max(series.Instances, 1)

		for n := 1; n <= instances; n++ {
			path := filepath.Join(seriesDir, fmt.Sprintf("IM%04d.dcm", n))
			inst := instanceSpec{
				study:        spec,
				series:       series,
				profile:      profile,
				studyUID:     studyUID,
				seriesUID:    seriesUID,
				sopUID:       DeterministicUID(fmt.Sprintf("%s/%d", seriesUID, n)),
				seriesNumber: seriesNumber,
				number:       n,
				width:        width,
				height:       height,
			}
			ds := inst.dataset()
			writeOpts := applyQuirks(&ds, series.Quirks)
			sortElements(&ds)
			if err := writeDatasetToFile(path, ds, writeOpts...); err != nil {
				return out, fmt.Errorf("write %s: %w", path, err)
			}
			if err := patchQuirks(path, series.Quirks); err != nil {
				return out, fmt.Errorf("patch %s: %w", path, err)
			}
			out.Files = append(out.Files, path)
		}
	}
	return out, nil
}

func (s StudySpec) validate() error {
	if s.PatientID == "" {
		return fmt.Errorf("%w: patient_id is required", ErrInvalidStudySpec)
	}
	if len(s.Series) == 0 {
		return fmt.Errorf("%w: at least one series is required", ErrInvalidStudySpec)
	}
	if s.Width < 0 || s.Height < 0 {
		return fmt.Errorf("%w: negative image size %dx%d", ErrInvalidStudySpec, s.Width, s.Height)
	}
	for i, series := range s.Series {
		if !modalities.IsValid(series.Modality) {
			return fmt.Errorf("%w: series %d: unknown modality %q", ErrInvalidStudySpec, i+1, series.Modality)
		}
		if series.Instances < 0 || series.Frames < 0 {
			return fmt.Errorf("%w: series %d: negative counts", ErrInvalidStudySpec, i+1)
		}
		for _, q := range series.Quirks {
			if !slices.Contains(AllQuirks(), q) {
				return fmt.Errorf("%w: series %d: unknown quirk %q", ErrInvalidStudySpec, i+1, q)
			}
		}
	}
	return nil
}

type instanceSpec struct {
	study        StudySpec
	series       SeriesSpec
	profile      modalities.Profile
	studyUID     string
	seriesUID    string
	sopUID       string
	seriesNumber int
	number       int
	width        int
	height       int
}

func (s instanceSpec) dataset() dicom.Dataset {
	ds := dicom.Dataset{Elements: []*dicom.Element{
		mustNewElement(tag.MediaStorageSOPClassUID, []string{s.profile.SOPClassUID}),
		mustNewElement(tag.MediaStorageSOPInstanceUID, []string{s.sopUID}),
		mustNewElement(tag.TransferSyntaxUID, []string{explicitVRLittleEndian}),
		mustNewElement(tag.PatientName, []string{s.study.PatientName}),
		mustNewElement(tag.PatientID, []string{s.study.PatientID}),
		mustNewElement(tag.StudyInstanceUID, []string{s.studyUID}),
		mustNewElement(tag.StudyDate, []string{s.study.StudyDate}),
		mustNewElement(tag.StudyDescription, []string{s.study.StudyDescription}),
		mustNewElement(tag.AccessionNumber, []string{s.study.AccessionNumber}),
		mustNewElement(tag.SeriesInstanceUID, []string{s.seriesUID}),
		mustNewElement(tag.SeriesNumber, []string{strconv.Itoa(s.seriesNumber)}),
		mustNewElement(tag.SeriesDescription, []string{s.series.Description}),
		mustNewElement(tag.Modality, []string{string(s.profile.Modality)}),
		mustNewElement(tag.SOPInstanceUID, []string{s.sopUID}),
		mustNewElement(tag.SOPClassUID, []string{s.profile.SOPClassUID}),
		mustNewElement(tag.InstanceNumber, []string{strconv.Itoa(s.number)}),
	}}
	if s.series.BodyPart != "" {
		ds.Elements = append(ds.Elements, mustNewElement(tag.BodyPartExamined, []string{s.series.BodyPart}))
	}
	if s.series.ViewPosition != "" {
		ds.Elements = append(ds.Elements, mustNewElement(tag.ViewPosition, []string{s.series.ViewPosition}))
	}
	if s.series.Laterality != "" {
		ds.Elements = append(ds.Elements, mustNewElement(tag.ImageLaterality, []string{s.series.Laterality}))
	}

	if s.profile.Image {
		s.appendImage(&ds)
	}
	if s.profile.Elements != nil {
		s.profile.Elements(&ds)
	}

	sortElements(&ds)
	return ds
}

// sortElements orders elements by tag, as the file format requires.
func sortElements(ds *dicom.Dataset) {
	sort.Slice(ds.Elements, func(i, j int) bool {
		a, b := ds.Elements[i].Tag, ds.Elements[j].Tag
		if a.Group != b.Group {
			return a.Group < b.Group
		}
		return a.Element < b.Element
	})
}

func (s instanceSpec) appendImage(ds *dicom.Dataset) {
	cfg := s.profile.Pixel
	frames := max(s.series.Frames, 1)
	label := fmt.Sprintf("%s %d", s.profile.Modality, s.number)
	mask := labelMask(s.width, s.height, label)

	info := dicom.PixelDataInfo{}
	for f := 0; f < frames; f++ {
		fr := &frame.Frame{Encapsulated: false}
		if cfg.BitsAllocated == 8 {
			native := frame.NewNativeFrame[uint8](8, s.height, s.width, s.width*s.height, 1)
			fillGradient(native.RawData, s.width, s.height, cfg.MaxValue, f)
			stampMask(native.RawData, mask, uint8(cfg.MaxValue))
			fr.NativeData = native
		} else {
			native := frame.NewNativeFrame[uint16](16, s.height, s.width, s.width*s.height, 1)
			fillGradient(native.RawData, s.width, s.height, cfg.MaxValue, f)
			stampMask(native.RawData, mask, uint16(cfg.MaxValue))
			fr.NativeData = native
		}
		info.Frames = append(info.Frames, fr)
	}

	ds.Elements = append(ds.Elements,
		mustNewElement(tag.ImageType, []string{"ORIGINAL", "PRIMARY"}),
		mustNewElement(tag.Rows, []int{s.height}),
		mustNewElement(tag.Columns, []int{s.width}),
		mustNewElement(tag.BitsAllocated, []int{int(cfg.BitsAllocated)}),
		mustNewElement(tag.BitsStored, []int{int(cfg.BitsStored)}),
		mustNewElement(tag.HighBit, []int{int(cfg.HighBit)}),
		mustNewElement(tag.PixelRepresentation, []int{int(cfg.PixelRepresentation)}),
		mustNewElement(tag.SamplesPerPixel, []int{1}),
		mustNewElement(tag.PhotometricInterpretation, []string{"MONOCHROME2"}),
		mustNewElement(tag.WindowCenter, []string{fmt.Sprintf("%.1f", s.profile.WindowCenter)}),
		mustNewElement(tag.WindowWidth, []string{fmt.Sprintf("%.1f", s.profile.WindowWidth)}),
		mustNewElement(tag.PixelData, info),
	)
	if frames > 1 {
		ds.Elements = append(ds.Elements, mustNewElement(tag.NumberOfFrames, []string{strconv.Itoa(frames)}))
	}
}

// fillGradient writes a radial gradient, shifted a little per frame so that
// frames of one instance differ.
func fillGradient[T uint8 | uint16](raw []T, width, height, maxValue, frameIndex int) {
	cx, cy := float64(width)/2, float64(height)/2
	maxDist := math.Hypot(cx, cy)
	shift := float64(frameIndex%8) / 16
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			d := math.Hypot(float64(x)-cx, float64(y)-cy) / maxDist
			v := (1 - d) * 0.6 * float64(maxValue) * (1 - shift)
			raw[y*width+x] = T(math.Max(0, math.Min(float64(maxValue), v)))
		}
	}
}

// labelMask renders text centered over a width x height canvas, scaled to
// about a third of the width. Non-zero alpha marks text pixels.
func labelMask(width, height int, text string) *image.Alpha {
	face := basicfont.Face7x13
	baseWidth := font.MeasureString(face, text).Ceil()
	baseHeight := 13

	textImg := image.NewAlpha(image.Rect(0, 0, baseWidth, baseHeight))
	drawer := &font.Drawer{
		Dst:  textImg,
		Src:  image.NewUniform(color.Alpha{A: 255}),
		Face: face,
		Dot:  fixed.Point26_6{Y: fixed.I(11)},
	}
	drawer.DrawString(text)

	scale := math.Max(1, float64(width)*0.3/float64(baseWidth))
	sw := min(int(float64(baseWidth)*scale), width)
	sh := min(int(float64(baseHeight)*scale), height)

	mask := image.NewAlpha(image.Rect(0, 0, width, height))
	x0, y0 := (width-sw)/2, (height-sh)/2
	draw.BiLinear.Scale(mask, image.Rect(x0, y0, x0+sw, y0+sh), textImg, textImg.Bounds(), draw.Over, nil)
	return mask
}

func stampMask[T uint8 | uint16](raw []T, mask *image.Alpha, value T) {
	for i, a := range mask.Pix {
		if a > 127 && i < len(raw) {
			raw[i] = value
		}
	}
}

// writeDatasetToFile writes a DICOM dataset to a file.
func writeDatasetToFile(filename string, ds dicom.Dataset, opts ...dicom.WriteOption) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	return dicom.Write(f, ds, opts...)
}

// mustNewElement creates a new DICOM element, panicking on error.
func mustNewElement(t tag.Tag, value interface{}) *dicom.Element {
	elem, err := dicom.NewElement(t, value)
	if err != nil {
		panic(fmt.Sprintf("failed to create element %v: %v", t, err))
	}
	return elem
}

func shortHash(s string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return fmt.Sprintf("%08X", h.Sum32())
}
