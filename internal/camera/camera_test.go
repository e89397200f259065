package camera

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/pkg/errors"
)

func TestDevicePath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "/dev/video0"},
		{"2", "/dev/video2"},
		{"/dev/video4", "/dev/video4"},
	}
	for _, tt := range tests {
		if got := devicePath(tt.in); got != tt.want {
			t.Errorf("devicePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open(Config{Backend: "dshow"}); err == nil {
		t.Error("Expected error for unknown backend")
	}
}

func TestDecodeMJPEG(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 16, 8))
	for x := 0; x < 16; x++ {
		src.Set(x, 0, color.RGBA{200, 10, 10, 255})
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, nil); err != nil {
		t.Fatal(err)
	}

	// Drivers return the image followed by zero padding.
	padded := append(buf.Bytes(), make([]byte, 64)...)
	img, err := decodeMJPEG(padded)
	if err != nil {
		t.Fatalf("decodeMJPEG failed: %v", err)
	}
	if img.Bounds() != src.Bounds() {
		t.Errorf("Bounds = %v, want %v", img.Bounds(), src.Bounds())
	}
}

func TestDecodeMJPEG_Empty(t *testing.T) {
	if _, err := decodeMJPEG(nil); err != ErrEmptyFrame {
		t.Errorf("Expected ErrEmptyFrame, got %v", err)
	}
	_, err := decodeMJPEG([]byte{0x00, 0x01})
	if errors.Cause(err) != ErrEmptyFrame {
		t.Errorf("Expected wrapped ErrEmptyFrame, got %v", err)
	}
}
