package modalities

import (
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

func ctProfile() Profile {
	return Profile{
		Modality:    CT,
		SOPClassUID: "1.2.840.10008.5.1.4.1.1.2",
		Volume:      true,
		Image:       true,
		Pixel: PixelConfig{
			BitsAllocated:       16,
			BitsStored:          16,
			HighBit:             15,
			PixelRepresentation: 1,
			MaxValue:            3071,
		},
		WindowCenter: 40,
		WindowWidth:  400,
		Elements: func(ds *dicom.Dataset) {
			ds.Elements = append(ds.Elements,
				mustNewElement(tag.KVP, []string{floatToDS(120)}),
				mustNewElement(tag.ConvolutionKernel, []string{"STANDARD"}),
				mustNewElement(tag.RescaleIntercept, []string{floatToDS(-1024)}),
				mustNewElement(tag.RescaleSlope, []string{floatToDS(1)}),
				mustNewElement(tag.RescaleType, []string{"HU"}),
			)
		},
	}
}
