package dicom

import (
	"encoding/binary"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// Quirk is an irregularity seen in real scanner output. Synthetic series
// can carry quirks to check that reading stays tolerant.
type Quirk string

const (
	// QuirkMissingNumbers omits SeriesNumber and InstanceNumber.
	QuirkMissingNumbers Quirk = "missing-numbers"
	// QuirkPaddedStrings pads descriptions with trailing spaces.
	QuirkPaddedStrings Quirk = "padded-strings"
	// QuirkVendorPrivate adds GE style private creator blocks and values.
	QuirkVendorPrivate Quirk = "vendor-private"
	// QuirkOddPixelLength patches the pixel data length to an odd value.
	QuirkOddPixelLength Quirk = "odd-pixel-length"
)

// AllQuirks returns every quirk.
func AllQuirks() []Quirk {
	return []Quirk{QuirkMissingNumbers, QuirkPaddedStrings, QuirkVendorPrivate, QuirkOddPixelLength}
}

// ParseQuirks parses comma-separated quirks. The special value "all"
// enables every quirk.
func ParseQuirks(input string) ([]Quirk, error) {
	if strings.TrimSpace(input) == "" {
		return nil, nil
	}
	var out []Quirk
	for _, p := range strings.Split(input, ",") {
		p = strings.TrimSpace(p)
		if p == "all" {
			return AllQuirks(), nil
		}
		q := Quirk(p)
		if !slices.Contains(AllQuirks(), q) {
			return nil, fmt.Errorf("unknown quirk %q, valid quirks: %v (or 'all')", p, AllQuirks())
		}
		if !slices.Contains(out, q) {
			out = append(out, q)
		}
	}
	return out, nil
}

func hasQuirk(quirks []Quirk, q Quirk) bool {
	return slices.Contains(quirks, q)
}

// applyQuirks rewrites ds in place and returns the write options the result
// needs.
func applyQuirks(ds *dicom.Dataset, quirks []Quirk) []dicom.WriteOption {
	var opts []dicom.WriteOption
	if hasQuirk(quirks, QuirkMissingNumbers) {
		ds.Elements = slices.DeleteFunc(ds.Elements, func(e *dicom.Element) bool {
			return e.Tag == tag.SeriesNumber || e.Tag == tag.InstanceNumber
		})
	}
	if hasQuirk(quirks, QuirkPaddedStrings) {
		for _, e := range ds.Elements {
			if e.Tag != tag.SeriesDescription && e.Tag != tag.StudyDescription {
				continue
			}
			if v, ok := e.Value.GetValue().([]string); ok && len(v) == 1 {
				if padded, err := dicom.NewValue([]string{v[0] + "    "}); err == nil {
					e.Value = padded
				}
			}
		}
	}
	if hasQuirk(quirks, QuirkVendorPrivate) {
		ds.Elements = append(ds.Elements,
			mustNewPrivateElement(tag.Tag{Group: 0x0009, Element: 0x0010}, "LO", []string{"GEMS_IDEN_01"}),
			mustNewPrivateElement(tag.Tag{Group: 0x0043, Element: 0x0010}, "LO", []string{"GEMS_PARM_01"}),
			mustNewPrivateElement(tag.Tag{Group: 0x0009, Element: 0x10E3}, "LO", []string{"DV26.0_R03_M5"}),
			mustNewPrivateElement(tag.Tag{Group: 0x0043, Element: 0x1039}, "IS", []string{"1000", "0", "0", "0"}),
		)
		opts = append(opts, dicom.SkipVRVerification(), dicom.SkipValueTypeVerification())
	}
	return opts
}

// patchQuirks post-processes a written file for quirks the writer cannot
// produce.
func patchQuirks(path string, quirks []Quirk) error {
	if !hasQuirk(quirks, QuirkOddPixelLength) {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file for patching: %w", err)
	}
	if !patchPixelDataOddLength(data) {
		return nil
	}
	return os.WriteFile(path, data, 0o644)
}

// patchPixelDataOddLength finds the PixelData element (7FE0,0010) and makes
// its value length odd.
func patchPixelDataOddLength(data []byte) bool {
	for i := 0; i <= len(data)-12; i++ {
		if data[i] != 0xE0 || data[i+1] != 0x7F || data[i+2] != 0x10 || data[i+3] != 0x00 {
			continue
		}
		vr := string(data[i+4 : i+6])
		if vr != "OW" && vr != "OB" {
			continue
		}
		// long form: VR(2) + reserved(2) + VL(4)
		vl := binary.LittleEndian.Uint32(data[i+8 : i+12])
		if vl > 1 && vl%2 == 0 {
			binary.LittleEndian.PutUint32(data[i+8:i+12], vl-1)
			return true
		}
	}
	return false
}

func mustNewPrivateElement(t tag.Tag, rawVR string, data any) *dicom.Element {
	value, err := dicom.NewValue(data)
	if err != nil {
		panic(fmt.Sprintf("failed to create value for private element %v: %v", t, err))
	}
	return &dicom.Element{
		Tag:                    t,
		ValueRepresentation:    tag.GetVRKind(t, rawVR),
		RawValueRepresentation: rawVR,
		Value:                  value,
	}
}
