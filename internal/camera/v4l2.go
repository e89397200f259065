package camera

import (
	"bytes"
	"image"
	"image/jpeg"
	"sync"

	"github.com/andresmejia3/feelcam/internal/utils"
	"github.com/blackjack/webcam"
	"github.com/pkg/errors"
)

// pixFmtMJPEG is V4L2_PIX_FMT_MJPEG ('M','J','P','G').
const pixFmtMJPEG webcam.PixelFormat = 0x47504A4D

// waitSeconds bounds each WaitForFrame call.
const waitSeconds = 1

// V4L2Camera streams MJPEG frames straight from a Video4Linux node.
type V4L2Camera struct {
	mu  sync.Mutex
	cam *webcam.Webcam
}

// V4L2 opens path in MJPEG mode and starts streaming.
func V4L2(path string, width, height int) (*V4L2Camera, error) {
	cam, err := webcam.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "Can not open device")
	}

	if _, ok := cam.GetSupportedFormats()[pixFmtMJPEG]; !ok {
		cam.Close()
		return nil, errors.Errorf("%s does not support MJPEG", path)
	}
	if _, _, _, err := cam.SetImageFormat(pixFmtMJPEG, uint32(width), uint32(height)); err != nil {
		cam.Close()
		return nil, errors.Wrap(err, "Can not set image format")
	}

	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, errors.Wrap(err, "Can not start streaming")
	}
	return &V4L2Camera{cam: cam}, nil
}

// Read waits for and decodes the next frame.
func (c *V4L2Camera) Read() (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cam == nil {
		return nil, ErrClosed
	}

	err := c.cam.WaitForFrame(waitSeconds)
	switch err.(type) {
	case nil:
	case *webcam.Timeout:
		return nil, ErrTimeout
	default:
		return nil, errors.Wrap(err, "Frame wait failed")
	}

	frame, err := c.cam.ReadFrame()
	if err != nil {
		return nil, errors.Wrap(err, "Read frame failed")
	}
	return decodeMJPEG(frame)
}

func decodeMJPEG(frame []byte) (image.Image, error) {
	if len(frame) == 0 {
		return nil, ErrEmptyFrame
	}
	data, ok := utils.ExtractJpeg(frame)
	if !ok {
		return nil, errors.Wrap(ErrEmptyFrame, "no complete JPEG in buffer")
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "MJPEG decode failed")
	}
	return img, nil
}

// Close stops streaming and releases the device. Safe to call more than once.
func (c *V4L2Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cam == nil {
		return nil
	}
	c.cam.StopStreaming()
	err := c.cam.Close()
	c.cam = nil
	return err
}
