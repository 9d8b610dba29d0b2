// Package modalities classifies DICOM modalities for display set building
// and describes how synthetic instances of each one are written.
package modalities

import (
	"slices"
	"strings"

	"github.com/suyashkumar/dicom"
)

// Modality represents a DICOM imaging modality type.
type Modality string

const (
	CR  Modality = "CR"  // Computed Radiography
	DX  Modality = "DX"  // Digital Radiography
	MG  Modality = "MG"  // Mammography
	CT  Modality = "CT"  // Computed Tomography
	MR  Modality = "MR"  // Magnetic Resonance
	PT  Modality = "PT"  // Positron Emission Tomography
	US  Modality = "US"  // Ultrasound
	SR  Modality = "SR"  // Structured Report
	SEG Modality = "SEG" // Segmentation
)

// PixelConfig holds pixel data configuration for a modality.
type PixelConfig struct {
	BitsAllocated       uint16
	BitsStored          uint16
	HighBit             uint16
	PixelRepresentation uint16 // 0 = unsigned, 1 = signed
	MaxValue            int
}

// Profile describes one modality.
type Profile struct {
	Modality    Modality
	SOPClassUID string
	// SingleImage modalities get one display set per instance.
	SingleImage bool
	// Volume modalities can be reconstructed into a volume when a series
	// holds enough slices.
	Volume bool
	// Image is false for non-image objects such as reports.
	Image        bool
	Pixel        PixelConfig
	WindowCenter float64
	WindowWidth  float64
	// Elements appends modality specific elements to a synthetic instance.
	Elements func(ds *dicom.Dataset)
}

var pixel16 = PixelConfig{BitsAllocated: 16, BitsStored: 12, HighBit: 11, MaxValue: 4095}

var profiles = map[Modality]Profile{
	CR: {Modality: CR, SOPClassUID: "1.2.840.10008.5.1.4.1.1.1", SingleImage: true, Image: true, Pixel: pixel16, WindowCenter: 2048, WindowWidth: 4096},
	DX: {Modality: DX, SOPClassUID: "1.2.840.10008.5.1.4.1.1.1.1", SingleImage: true, Image: true, Pixel: pixel16, WindowCenter: 2048, WindowWidth: 4096},
	MG: {Modality: MG, SOPClassUID: "1.2.840.10008.5.1.4.1.1.1.2", SingleImage: true, Image: true, Pixel: pixel16, WindowCenter: 2048, WindowWidth: 4096},
	CT: ctProfile(),
	MR: mrProfile(),
	PT: {Modality: PT, SOPClassUID: "1.2.840.10008.5.1.4.1.1.128", Volume: true, Image: true, Pixel: pixel16, WindowCenter: 1000, WindowWidth: 2000},
	US: {
		Modality: US, SOPClassUID: "1.2.840.10008.5.1.4.1.1.6.1", Image: true,
		Pixel:        PixelConfig{BitsAllocated: 8, BitsStored: 8, HighBit: 7, MaxValue: 255},
		WindowCenter: 128, WindowWidth: 256,
	},
	SR:  {Modality: SR, SOPClassUID: "1.2.840.10008.5.1.4.1.1.88.11"},
	SEG: {Modality: SEG, SOPClassUID: "1.2.840.10008.5.1.4.1.1.66.4"},
}

// All returns every known modality in a stable order.
func All() []Modality {
	out := make([]Modality, 0, len(profiles))
	for m := range profiles {
		out = append(out, m)
	}
	slices.Sort(out)
	return out
}

// Lookup returns the profile of a modality code. The lookup is case
// insensitive.
func Lookup(m string) (Profile, bool) {
	p, ok := profiles[Modality(strings.ToUpper(strings.TrimSpace(m)))]
	return p, ok
}

// IsValid reports whether m is a known modality code.
func IsValid(m string) bool {
	_, ok := Lookup(m)
	return ok
}

// IsSingleImage reports whether every instance of m is its own display set.
func IsSingleImage(m string) bool {
	p, ok := Lookup(m)
	return ok && p.SingleImage
}

// IsVolumeCapable reports whether a stack of m can become a volume.
func IsVolumeCapable(m string) bool {
	p, ok := Lookup(m)
	return ok && p.Volume
}

// IsImageSOPClass reports whether a SOP class UID stores images. Unknown
// classes are treated as images when they are not a known non-image class.
func IsImageSOPClass(uid string) bool {
	if uid == "" {
		return false
	}
	for _, p := range profiles {
		if p.SOPClassUID == uid {
			return p.Image
		}
	}
	return !strings.HasPrefix(uid, "1.2.840.10008.5.1.4.1.1.88.")
}
