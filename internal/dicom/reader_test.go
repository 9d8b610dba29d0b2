package dicom

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func chestStudy() StudySpec {
	return StudySpec{
		PatientID:        "PAT001",
		PatientName:      "DOE^JANE",
		StudyDate:        "20240312",
		StudyDescription: "CHEST",
		Width:            32,
		Height:           32,
		Series: []SeriesSpec{
			{Modality: "CR", Description: "PA", ViewPosition: "PA", Instances: 2},
			{Modality: "CT", Description: "Axial", BodyPart: "CHEST", Instances: 4},
			{Modality: "MR", Description: "Cine", Frames: 3},
			{Modality: "SR", Description: "Report"},
		},
	}
}

func TestWriteStudy_LoadDirectory(t *testing.T) {
	dir := t.TempDir()
	written, err := WriteStudy(dir, chestStudy())
	if err != nil {
		t.Fatalf("WriteStudy() error = %v", err)
	}
	if len(written.Files) != 8 {
		t.Fatalf("wrote %d files, want 8", len(written.Files))
	}

	catalog, err := LoadDirectory(dir)
	if err != nil {
		t.Fatalf("LoadDirectory() error = %v", err)
	}

	study, err := catalog.Study(written.StudyInstanceUID)
	if err != nil {
		t.Fatalf("Study() error = %v", err)
	}
	if study.PatientID != "PAT001" || study.StudyDate != "20240312" {
		t.Errorf("study = %+v", study)
	}
	if v, ok := study.Lookup("PatientName"); !ok || v != "DOE^JANE" {
		t.Errorf("PatientName = %v, %v", v, ok)
	}

	sets, err := catalog.DisplaySetsForStudy(written.StudyInstanceUID)
	if err != nil {
		t.Fatalf("DisplaySetsForStudy() error = %v", err)
	}
	// two single CR images, one CT stack, one multi-frame MR, no SR
	if len(sets) != 4 {
		t.Fatalf("got %d display sets, want 4: %+v", len(sets), sets)
	}

	wantModalities := []string{"CR", "CR", "CT", "MR"}
	for i, ds := range sets {
		if ds.Modality != wantModalities[i] {
			t.Errorf("set %d modality = %q, want %q", i, ds.Modality, wantModalities[i])
		}
	}

	if v, ok := sets[0].Lookup("ViewPosition"); !ok || v != "PA" {
		t.Errorf("CR ViewPosition = %v, %v", v, ok)
	}
	if sets[0].InstanceUID == sets[1].InstanceUID {
		t.Error("CR display sets share an instance UID")
	}

	ct := sets[2]
	if ct.NumImageFrames != 4 || !ct.IsReconstructable || ct.IsMultiFrame {
		t.Errorf("CT set = %+v", ct)
	}
	if v, _ := ct.Lookup("BodyPartExamined"); v != "CHEST" {
		t.Errorf("CT BodyPartExamined = %v", v)
	}

	mr := sets[3]
	if mr.NumImageFrames != 3 || !mr.IsMultiFrame || mr.IsReconstructable {
		t.Errorf("MR set = %+v", mr)
	}

	for _, m := range []string{"CR", "CT", "MR"} {
		if !slices.Contains(study.ModalitiesInStudy, m) {
			t.Errorf("ModalitiesInStudy = %v, missing %s", study.ModalitiesInStudy, m)
		}
	}
}

func TestWriteStudy_Deterministic(t *testing.T) {
	a, err := WriteStudy(t.TempDir(), chestStudy())
	if err != nil {
		t.Fatal(err)
	}
	b, err := WriteStudy(t.TempDir(), chestStudy())
	if err != nil {
		t.Fatal(err)
	}
	if a.StudyInstanceUID != b.StudyInstanceUID {
		t.Errorf("study UIDs differ: %s vs %s", a.StudyInstanceUID, b.StudyInstanceUID)
	}

	other := chestStudy()
	other.Seed = "another"
	c, err := WriteStudy(t.TempDir(), other)
	if err != nil {
		t.Fatal(err)
	}
	if c.StudyInstanceUID == a.StudyInstanceUID {
		t.Error("different seeds produced the same study UID")
	}
}

func TestWriteStudy_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*StudySpec)
	}{
		{"no patient", func(s *StudySpec) { s.PatientID = "" }},
		{"no series", func(s *StudySpec) { s.Series = nil }},
		{"unknown modality", func(s *StudySpec) { s.Series[0].Modality = "XX" }},
		{"negative size", func(s *StudySpec) { s.Width = -1 }},
		{"negative instances", func(s *StudySpec) { s.Series[1].Instances = -2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := chestStudy()
			tt.mutate(&spec)
			_, err := WriteStudy(t.TempDir(), spec)
			if !errors.Is(err, ErrInvalidStudySpec) {
				t.Errorf("error = %v, want ErrInvalidStudySpec", err)
			}
		})
	}
}

func TestLoadDirectory_SkipsJunk(t *testing.T) {
	dir := t.TempDir()
	if _, err := WriteStudy(dir, StudySpec{
		PatientID: "PAT002",
		Series:    []SeriesSpec{{Modality: "DX", Instances: 1}},
	}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a dicom file"), 0o644); err != nil {
		t.Fatal(err)
	}

	catalog, err := LoadDirectory(dir)
	if err != nil {
		t.Fatalf("LoadDirectory() error = %v", err)
	}
	if got := len(catalog.StudyUIDs()); got != 1 {
		t.Errorf("loaded %d studies, want 1", got)
	}
}

func TestLoadDirectory_Empty(t *testing.T) {
	_, err := LoadDirectory(t.TempDir())
	if !errors.Is(err, ErrNoInstances) {
		t.Errorf("error = %v, want ErrNoInstances", err)
	}
}

func TestReadInstance_NotDICOM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.dcm")
	if err := os.WriteFile(path, []byte{0x00, 0x01, 0x02}, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadInstance(path); err == nil {
		t.Error("ReadInstance() accepted garbage")
	}
}

func TestBuildDisplaySets(t *testing.T) {
	const (
		ctClass = "1.2.840.10008.5.1.4.1.1.2"
		srClass = "1.2.840.10008.5.1.4.1.1.88.11"
	)
	inst := func(series string, seriesNumber, number int, modality, class string) Instance {
		return Instance{
			StudyInstanceUID:  "1.1",
			SeriesInstanceUID: series,
			SeriesNumber:      seriesNumber,
			InstanceNumber:    number,
			Modality:          modality,
			SOPClassUID:       class,
			SOPInstanceUID:    series + "." + string(rune('0'+number)),
			Rows:              16,
			Attributes:        map[string]any{"Modality": modality, "PatientID": "P"},
		}
	}

	t.Run("series order and stacking", func(t *testing.T) {
		sr := inst("1.1.9", 1, 1, "SR", srClass)
		sr.Rows = 0
		sets := BuildDisplaySets([]Instance{
			inst("1.1.2", 2, 2, "CT", ctClass),
			inst("1.1.2", 2, 1, "CT", ctClass),
			sr,
			inst("1.1.1", 1, 1, "CT", ctClass),
		})
		if len(sets) != 2 {
			t.Fatalf("got %d sets, want 2", len(sets))
		}
		if sets[0].SeriesInstanceUID != "1.1.1" || sets[1].SeriesInstanceUID != "1.1.2" {
			t.Errorf("order = %s, %s", sets[0].SeriesInstanceUID, sets[1].SeriesInstanceUID)
		}
		if sets[1].NumImageFrames != 2 || sets[1].IsReconstructable {
			t.Errorf("two slice stack = %+v", sets[1])
		}
		if v, _ := sets[1].Lookup("InstanceNumber"); v != 1 {
			t.Errorf("stack starts at instance %v, want 1", v)
		}
	})

	t.Run("study attributes stay out of display sets", func(t *testing.T) {
		sets := BuildDisplaySets([]Instance{inst("1.1.1", 1, 1, "CT", ctClass)})
		if _, ok := sets[0].Attributes["PatientID"]; ok {
			t.Error("PatientID leaked into display set attributes")
		}
		if sets[0].Attributes["Modality"] != "CT" {
			t.Errorf("Modality = %v", sets[0].Attributes["Modality"])
		}
	})

	t.Run("multi-frame splits from stack", func(t *testing.T) {
		mf := inst("1.1.3", 3, 3, "CT", ctClass)
		mf.NumberOfFrames = 40
		sets := BuildDisplaySets([]Instance{
			inst("1.1.3", 3, 1, "CT", ctClass),
			inst("1.1.3", 3, 2, "CT", ctClass),
			mf,
			inst("1.1.3", 3, 4, "CT", ctClass),
		})
		if len(sets) != 2 {
			t.Fatalf("got %d sets, want 2", len(sets))
		}
		if !sets[0].IsMultiFrame || sets[0].NumImageFrames != 40 {
			t.Errorf("multi-frame set = %+v", sets[0])
		}
		if sets[1].NumImageFrames != 3 || !sets[1].IsReconstructable {
			t.Errorf("stack = %+v", sets[1])
		}
	})
}
