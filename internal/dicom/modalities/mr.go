package modalities

import (
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

func mrProfile() Profile {
	return Profile{
		Modality:     MR,
		SOPClassUID:  "1.2.840.10008.5.1.4.1.1.4",
		Volume:       true,
		Image:        true,
		Pixel:        pixel16,
		WindowCenter: 600,
		WindowWidth:  1200,
		Elements: func(ds *dicom.Dataset) {
			ds.Elements = append(ds.Elements,
				mustNewElement(tag.MagneticFieldStrength, []string{floatToDS(3)}),
				mustNewElement(tag.EchoTime, []string{floatToDS(90)}),
				mustNewElement(tag.RepetitionTime, []string{floatToDS(4000)}),
				mustNewElement(tag.SequenceName, []string{"*tse2d1_15"}),
			)
		},
	}
}
