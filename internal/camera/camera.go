// Package camera opens local video devices and hands back decoded frames.
package camera

import (
	"fmt"
	"image"
	"strconv"

	"github.com/pkg/errors"
)

var (
	// ErrEmptyFrame is returned when the device produced no image data.
	ErrEmptyFrame = errors.New("captured frame is empty")
	// ErrTimeout is returned when no frame arrived within the wait window.
	ErrTimeout = errors.New("timed out waiting for frame")
	// ErrClosed is returned by Read after Close.
	ErrClosed = errors.New("camera is closed")
)

// Camera is a frame source. Read blocks until a frame is available.
type Camera interface {
	Read() (image.Image, error)
	Close() error
}

// Backends accepted by Open.
const (
	BackendOpenCV = "gocv"
	BackendV4L2   = "v4l2"
)

// Config selects a device and its requested resolution. Zero sizes keep the
// driver default.
type Config struct {
	Backend string
	Device  string // index ("0") or path ("/dev/video0")
	Width   int
	Height  int
}

// Open opens the configured backend.
func Open(cfg Config) (Camera, error) {
	switch cfg.Backend {
	case BackendOpenCV, "":
		return OpenCV(cfg.Device, cfg.Width, cfg.Height)
	case BackendV4L2:
		return V4L2(devicePath(cfg.Device), cfg.Width, cfg.Height)
	default:
		return nil, fmt.Errorf("unknown camera backend %q", cfg.Backend)
	}
}

// devicePath turns a bare index into a V4L2 node path.
func devicePath(device string) string {
	if device == "" {
		return "/dev/video0"
	}
	if _, err := strconv.Atoi(device); err == nil {
		return "/dev/video" + device
	}
	return device
}
