package camera

import (
	"image"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// OpenCVCamera reads BGR frames through OpenCV and converts them to RGBA.
type OpenCVCamera struct {
	mu      sync.Mutex
	capture *gocv.VideoCapture
	mat     gocv.Mat
}

// OpenCV opens a device by index or path.
func OpenCV(device string, width, height int) (*OpenCVCamera, error) {
	var id interface{} = device
	if device == "" {
		id = 0
	} else if n, err := strconv.Atoi(device); err == nil {
		id = n
	}

	capture, err := gocv.OpenVideoCapture(id)
	if err != nil {
		return nil, errors.Wrapf(err, "can not open video device %v", id)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, errors.Errorf("video device %v is not available", id)
	}

	if width > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(width))
	}
	if height > 0 {
		capture.Set(gocv.VideoCaptureFrameHeight, float64(height))
	}

	return &OpenCVCamera{capture: capture, mat: gocv.NewMat()}, nil
}

// Read grabs the next frame. The returned image is owned by the caller.
func (c *OpenCVCamera) Read() (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture == nil {
		return nil, ErrClosed
	}
	if ok := c.capture.Read(&c.mat); !ok {
		return nil, errors.New("failed to read frame from camera")
	}
	if c.mat.Empty() {
		return nil, ErrEmptyFrame
	}

	img, err := c.mat.ToImage()
	if err != nil {
		return nil, errors.Wrap(err, "frame conversion failed")
	}
	return img, nil
}

// Close releases the device. Safe to call more than once.
func (c *OpenCVCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture == nil {
		return nil
	}
	err := c.capture.Close()
	c.mat.Close()
	c.capture = nil
	return err
}
