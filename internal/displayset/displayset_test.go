package displayset

import (
	"errors"
	"testing"
)

func TestDisplaySet_Lookup(t *testing.T) {
	ds := DisplaySet{
		InstanceUID:       "ds-1",
		StudyInstanceUID:  "1.2.3",
		Modality:          "MR",
		SeriesNumber:      4,
		SeriesDescription: "T1 SAG",
		NumImageFrames:    24,
		IsReconstructable: true,
		Attributes: map[string]any{
			"ImageType":   []string{"ORIGINAL", "PRIMARY"},
			"Orientation": map[string]any{"plane": "sagittal"},
		},
	}

	tests := []struct {
		path   string
		want   any
		wantOK bool
	}{
		{"Modality", "MR", true},
		{"modality", "MR", true},
		{"SeriesNumber", 4, true},
		{"numImageFrames", 24, true},
		{"NumImageFrames", 24, true},
		{"isReconstructable", true, true},
		{"displaySetInstanceUID", "ds-1", true},
		{"Orientation.plane", "sagittal", true},
		{"SOPClassUID", nil, false},
		{"BodyPartExamined", nil, false},
	}

	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			got, ok := ds.Lookup(tc.path)
			if ok != tc.wantOK {
				t.Fatalf("Lookup(%q) ok = %v, want %v", tc.path, ok, tc.wantOK)
			}
			if ok && got != tc.want {
				t.Errorf("Lookup(%q) = %v, want %v", tc.path, got, tc.want)
			}
		})
	}
}

func TestMemoryCatalog(t *testing.T) {
	c := NewMemoryCatalog()
	c.Add(
		DisplaySet{InstanceUID: "a", StudyInstanceUID: "s1", Modality: "CT"},
		DisplaySet{InstanceUID: "b", StudyInstanceUID: "s1", Modality: "PT"},
		DisplaySet{InstanceUID: "c", StudyInstanceUID: "s1", Modality: "CT"},
	)

	sets, err := c.DisplaySetsForStudy("s1")
	if err != nil {
		t.Fatalf("DisplaySetsForStudy() error: %v", err)
	}
	if len(sets) != 3 || sets[0].InstanceUID != "a" || sets[2].InstanceUID != "c" {
		t.Errorf("insertion order not kept: %+v", sets)
	}

	st, err := c.Study("s1")
	if err != nil {
		t.Fatalf("Study() error: %v", err)
	}
	if len(st.ModalitiesInStudy) != 2 || st.ModalitiesInStudy[0] != "CT" || st.ModalitiesInStudy[1] != "PT" {
		t.Errorf("ModalitiesInStudy = %v, want [CT PT]", st.ModalitiesInStudy)
	}

	if _, err := c.DisplaySetsForStudy("nope"); !errors.Is(err, ErrStudyNotFound) {
		t.Errorf("unknown study error = %v, want ErrStudyNotFound", err)
	}
	if ds, ok := c.DisplaySet("b"); !ok || ds.Modality != "PT" {
		t.Errorf("DisplaySet(b) = %+v, %v", ds, ok)
	}
}

func TestMemoryCatalog_Priors(t *testing.T) {
	c := NewMemoryCatalog()
	c.AddStudy(Study{StudyInstanceUID: "current", PatientID: "P1", StudyDate: "20240301"})
	c.AddStudy(Study{StudyInstanceUID: "old", PatientID: "P1", StudyDate: "20220101"})
	c.AddStudy(Study{StudyInstanceUID: "recent", PatientID: "P1", StudyDate: "20231201"})
	c.AddStudy(Study{StudyInstanceUID: "other", PatientID: "P2", StudyDate: "20200101"})

	st, err := c.Study("current")
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Priors) != 2 || st.Priors[0] != "recent" || st.Priors[1] != "old" {
		t.Errorf("Priors = %v, want [recent old]", st.Priors)
	}
	if n, _ := st.Lookup("numberOfPriors"); n != 2 {
		t.Errorf("numberOfPriors = %v, want 2", n)
	}

	old, _ := c.Study("old")
	if len(old.Priors) != 0 {
		t.Errorf("oldest study should have no priors, got %v", old.Priors)
	}
}
