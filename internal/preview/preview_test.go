package preview

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/mrsinham/dicomhang/internal/grid"
	"github.com/mrsinham/dicomhang/internal/protocol"
)

func twoByOne() grid.State {
	return grid.State{
		Layout: grid.Layout{NumRows: 1, NumCols: 2},
		Viewports: []grid.Viewport{
			{PositionID: "0-0", DisplaySetInstanceUIDs: []string{"ds-1"}},
			{PositionID: "1-0"},
		},
		ActiveViewportIndex: 0,
	}
}

func TestRender(t *testing.T) {
	img, err := Render(twoByOne(), Options{Width: 200, Height: 100})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got := img.Bounds().Size(); got != (image.Point{X: 200, Y: 100}) {
		t.Fatalf("size = %v", got)
	}
	// top left corner is the active border
	if got := img.RGBAAt(0, 0); got != activeBorder {
		t.Errorf("active border = %v, want %v", got, activeBorder)
	}
	if got := img.RGBAAt(100, 0); got != borderColor {
		t.Errorf("inactive border = %v, want %v", got, borderColor)
	}
	if got := img.RGBAAt(195, 95); got != emptyFill {
		t.Errorf("empty cell fill = %v, want %v", got, emptyFill)
	}
}

func TestRender_InvalidSize(t *testing.T) {
	if _, err := Render(twoByOne(), Options{Width: 0, Height: 10}); err == nil {
		t.Error("Render() accepted a zero width")
	}
}

func TestRender_LayoutOptions(t *testing.T) {
	state := grid.State{
		Layout: grid.Layout{Options: []protocol.LayoutOption{
			{X: 0, Y: 0, Width: 0.25, Height: 1},
			{X: 0.25, Y: 0, Width: 0.75, Height: 1},
		}},
		Viewports:           []grid.Viewport{{PositionID: "0-0"}, {PositionID: "0.25-0"}},
		ActiveViewportIndex: 1,
	}
	img, err := Render(state, Options{Width: 400, Height: 100})
	if err != nil {
		t.Fatal(err)
	}
	if got := img.RGBAAt(100, 0); got != activeBorder {
		t.Errorf("second rectangle border = %v, want %v", got, activeBorder)
	}
}

func TestLabelIsUsed(t *testing.T) {
	var seen []string
	_, err := Render(twoByOne(), Options{Width: 120, Height: 60, Label: func(uid string) string {
		seen = append(seen, uid)
		return "CR PA"
	}})
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 1 || seen[0] != "ds-1" {
		t.Errorf("labelled %v", seen)
	}
}

func TestFormatOf(t *testing.T) {
	tests := []struct {
		path string
		want Format
		err  bool
	}{
		{"out.png", PNG, false},
		{"OUT.BMP", BMP, false},
		{"a/b.tif", TIFF, false},
		{"x.tiff", TIFF, false},
		{"x.jpg", "", true},
	}
	for _, tt := range tests {
		got, err := FormatOf(tt.path)
		if (err != nil) != tt.err {
			t.Errorf("FormatOf(%q) error = %v", tt.path, err)
		}
		if got != tt.want {
			t.Errorf("FormatOf(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestEncode_UnknownFormat(t *testing.T) {
	err := Encode(&bytes.Buffer{}, image.NewRGBA(image.Rect(0, 0, 1, 1)), "gif")
	if !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("error = %v", err)
	}
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"grid.png", "grid.bmp", "grid.tiff"} {
		path := filepath.Join(dir, name)
		if err := WriteFile(path, twoByOne(), Options{Width: 64, Height: 32}); err != nil {
			t.Fatalf("WriteFile(%s) error = %v", name, err)
		}
		info, err := os.Stat(path)
		if err != nil || info.Size() == 0 {
			t.Errorf("%s not written: %v", name, err)
		}
	}

	f, err := os.Open(filepath.Join(dir, "grid.png"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("png.Decode() error = %v", err)
	}
	if img.Bounds().Dx() != 64 {
		t.Errorf("width = %d", img.Bounds().Dx())
	}
}
