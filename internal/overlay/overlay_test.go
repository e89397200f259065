package overlay

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/andresmejia3/feelcam/internal/types"
)

func grayFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	return img
}

func TestFPS(t *testing.T) {
	tests := []struct {
		elapsed time.Duration
		want    int
	}{
		{0, 0},
		{-time.Second, 0},
		{100 * time.Millisecond, 10},
		{33 * time.Millisecond, 30},
		{2 * time.Second, 0},
	}
	for _, tt := range tests {
		if got := FPS(tt.elapsed); got != tt.want {
			t.Errorf("FPS(%v) = %d, want %d", tt.elapsed, got, tt.want)
		}
	}
}

func TestAnnotateWithFace(t *testing.T) {
	frame := grayFrame(200, 200)
	det := &types.Detection{
		Label:  "happiness",
		Scores: []float64{0.01, 0.01, 0.01, 0.01, 0.9, 0.02, 0.02, 0.03},
		Box:    image.Rect(50, 50, 150, 150),
	}

	out := Annotate(frame, det, 24)

	if !out.HasFace() {
		t.Fatal("Expected a drawn box")
	}
	if out.Label != "happiness" {
		t.Errorf("Expected label 'happiness', got %q", out.Label)
	}
	if out.FPS != 24 {
		t.Errorf("Expected FPS 24, got %d", out.FPS)
	}
	if got := out.Image.RGBAAt(50, 100); got != boxColor {
		t.Errorf("Expected box edge pixel to be %v, got %v", boxColor, got)
	}
	// The camera frame must stay untouched
	if got := frame.RGBAAt(50, 100); got != (color.RGBA{128, 128, 128, 128}) {
		t.Errorf("Input frame was modified: %v", got)
	}
	// Box interior away from the label stays untouched
	if got := out.Image.RGBAAt(100, 120); got != frame.RGBAAt(100, 120) {
		t.Errorf("Box interior changed: %v", got)
	}
}

func TestAnnotateWithoutFace(t *testing.T) {
	frame := grayFrame(120, 80)
	out := Annotate(frame, nil, 7)

	if out.HasFace() {
		t.Error("No box expected without a detection")
	}
	if out.Label != "" {
		t.Errorf("Expected empty label, got %q", out.Label)
	}

	// Some pixel in the FPS text area must have the FPS color
	found := false
	for y := 5; y < 25 && !found; y++ {
		for x := 10; x < 80; x++ {
			if out.Image.RGBAAt(x, y) == fpsColor {
				found = true
				break
			}
		}
	}
	if !found {
		t.Error("Expected FPS text to be drawn in the top-left corner")
	}
}

func TestAnnotateClipsBox(t *testing.T) {
	frame := grayFrame(100, 100)
	det := &types.Detection{Label: "fear", Scores: make([]float64, 8), Box: image.Rect(80, 80, 300, 300)}

	out := Annotate(frame, det, 1)
	if out.Box != image.Rect(80, 80, 100, 100) {
		t.Errorf("Expected box clipped to frame, got %v", out.Box)
	}
}
