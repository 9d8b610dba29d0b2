// Package preview renders a grid state as a picture: one labelled box per
// viewport, laid out like the grid.
package preview

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/tiff"

	"github.com/mrsinham/dicomhang/internal/grid"
)

// Format is an output image encoding.
type Format string

const (
	PNG  Format = "png"
	BMP  Format = "bmp"
	TIFF Format = "tiff"
)

var ErrUnknownFormat = errors.New("unknown preview format")

const (
	lineHeight = 13
	padding    = 4
	border     = 2
)

var (
	background   = color.RGBA{16, 16, 16, 255}
	cellFill     = color.RGBA{40, 40, 48, 255}
	emptyFill    = color.RGBA{24, 24, 24, 255}
	borderColor  = color.RGBA{96, 96, 112, 255}
	activeBorder = color.RGBA{250, 204, 21, 255}
	textColor    = color.RGBA{230, 230, 230, 255}
	mutedText    = color.RGBA{130, 130, 140, 255}
)

// Options controls rendering.
type Options struct {
	Width  int
	Height int
	// Label describes a display set; the instance UID is shown when nil.
	Label func(displaySetInstanceUID string) string
}

// Render draws state into a new image.
func Render(state grid.State, opts Options) (*image.RGBA, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("preview size must be positive, got %dx%d", opts.Width, opts.Height)
	}
	img := image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)

	rects := cellRects(state.Layout, opts.Width, opts.Height)
	for i, vp := range state.Viewports {
		if i >= len(rects) {
			break
		}
		drawCell(img, rects[i], vp, i == state.ActiveViewportIndex, opts.Label)
	}
	return img, nil
}

// Encode writes img in the given format.
func Encode(w io.Writer, img image.Image, format Format) error {
	switch format {
	case PNG:
		return png.Encode(w, img)
	case BMP:
		return bmp.Encode(w, img)
	case TIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return PNG, nil
	case ".bmp":
		return BMP, nil
	case ".tif", ".tiff":
		return TIFF, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, filepath.Ext(path))
}

// WriteFile renders state to path, in the format given by its extension.
func WriteFile(path string, state grid.State, opts Options) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	img, err := Render(state, opts)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Encode(f, img, format); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// cellRects maps grid positions to pixel rectangles, row major for grid
// layouts and in option order otherwise.
func cellRects(l grid.Layout, width, height int) []image.Rectangle {
	if len(l.Options) > 0 {
		out := make([]image.Rectangle, len(l.Options))
		for i, o := range l.Options {
			x0 := int(o.X * float64(width))
			y0 := int(o.Y * float64(height))
			out[i] = image.Rect(x0, y0, x0+int(o.Width*float64(width)), y0+int(o.Height*float64(height)))
		}
		return out
	}
	rows, cols := max(l.NumRows, 1), max(l.NumCols, 1)
	out := make([]image.Rectangle, 0, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			out = append(out, image.Rect(
				c*width/cols, r*height/rows,
				(c+1)*width/cols, (r+1)*height/rows,
			))
		}
	}
	return out
}

func drawCell(img *image.RGBA, r image.Rectangle, vp grid.Viewport, active bool, label func(string) string) {
	edge := borderColor
	if active {
		edge = activeBorder
	}
	draw.Draw(img, r, image.NewUniform(edge), image.Point{}, draw.Src)
	inner := r.Inset(border)
	fill := cellFill
	if vp.Empty() {
		fill = emptyFill
	}
	draw.Draw(img, inner, image.NewUniform(fill), image.Point{}, draw.Src)

	lines := []string{vp.PositionID}
	if vp.Empty() {
		lines = append(lines, "(empty)")
	}
	for _, uid := range vp.DisplaySetInstanceUIDs {
		if label != nil {
			lines = append(lines, label(uid))
		} else {
			lines = append(lines, uid)
		}
	}
	if kind := string(vp.ViewportOptions.Kind()); kind != "" {
		lines = append(lines, kind)
	}
	drawText(img, inner.Inset(padding), lines)
}

// drawText renders lines at the base font size, then scales the block up to
// fill about half of the box width when there is room.
func drawText(dst *image.RGBA, box image.Rectangle, lines []string) {
	if box.Empty() {
		return
	}
	face := basicfont.Face7x13
	textWidth := 1
	for _, l := range lines {
		textWidth = max(textWidth, font.MeasureString(face, l).Ceil())
	}
	textHeight := lineHeight * len(lines)

	text := image.NewRGBA(image.Rect(0, 0, textWidth, textHeight))
	for i, l := range lines {
		src := textColor
		if i == 0 {
			src = mutedText
		}
		d := &font.Drawer{
			Dst:  text,
			Src:  image.NewUniform(src),
			Face: face,
			Dot:  fixed.Point26_6{Y: fixed.I(lineHeight*(i+1) - 2)},
		}
		d.DrawString(l)
	}

	scale := float64(box.Dx()) * 0.5 / float64(textWidth)
	scale = min(scale, float64(box.Dy())/float64(textHeight))
	scale = max(1, min(scale, 4))

	w := min(int(float64(textWidth)*scale), box.Dx())
	h := min(int(float64(textHeight)*scale), box.Dy())
	target := image.Rect(box.Min.X, box.Min.Y, box.Min.X+w, box.Min.Y+h)
	draw.BiLinear.Scale(dst, target, text, text.Bounds(), draw.Over, nil)
}
