package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"time"

	"github.com/andresmejia3/feelcam/internal/types"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const boxThickness = 3

var (
	boxColor   = color.RGBA{R: 255, A: 255}
	labelColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	fpsColor   = color.RGBA{R: 255, G: 255, A: 255}

	// fpsOrigin is the baseline of the FPS text (top-left corner).
	fpsOrigin = image.Pt(10, 20)
)

// Annotated is a preview frame with the detection and FPS burned in.
type Annotated struct {
	Image *image.RGBA
	Box   image.Rectangle // zero when no face was drawn
	Label string
	FPS   int
}

// HasFace reports whether a detection box was drawn.
func (a *Annotated) HasFace() bool {
	return !a.Box.Empty()
}

// FPS is the reciprocal of one iteration's duration truncated to an int.
func FPS(elapsed time.Duration) int {
	if elapsed <= 0 {
		return 0
	}
	return int(1 / elapsed.Seconds())
}

// Annotate copies frame and draws the detection (if any) and the FPS counter.
// The input frame is never modified.
func Annotate(frame image.Image, det *types.Detection, fps int) *Annotated {
	bounds := frame.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, frame, bounds.Min, draw.Src)

	out := &Annotated{Image: dst, FPS: fps}

	if det != nil {
		box := det.Box.Intersect(bounds)
		if !box.Empty() {
			drawRect(dst, box, boxThickness, boxColor)
			// Label sits just inside the top-left corner of the box
			drawText(dst, det.Label, image.Pt(box.Min.X+boxThickness+2, box.Min.Y+boxThickness+13), labelColor)
			out.Box = box
			out.Label = det.Label
		}
	}

	drawText(dst, fmt.Sprintf("FPS: %d", fps), fpsOrigin.Add(bounds.Min), fpsColor)
	return out
}

// drawRect strokes the outline of r with the given thickness, inside r.
func drawRect(img *image.RGBA, r image.Rectangle, thickness int, c color.Color) {
	src := image.NewUniform(c)
	if thickness*2 > r.Dx() || thickness*2 > r.Dy() {
		draw.Draw(img, r, src, image.Point{}, draw.Src)
		return
	}
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+thickness), // top
		image.Rect(r.Min.X, r.Max.Y-thickness, r.Max.X, r.Max.Y), // bottom
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+thickness, r.Max.Y), // left
		image.Rect(r.Max.X-thickness, r.Min.Y, r.Max.X, r.Max.Y), // right
	}
	for _, e := range edges {
		draw.Draw(img, e, src, image.Point{}, draw.Src)
	}
}

func drawText(img *image.RGBA, text string, dot image.Point, c color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(dot.X, dot.Y),
	}
	d.DrawString(text)
}
