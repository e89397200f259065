package onnx

import (
	"fmt"
	"image"
	"sort"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	// DefaultInputSize is the square input resolution of the face detector.
	DefaultInputSize = 640
	// DefaultConfThreshold drops weaker face candidates.
	DefaultConfThreshold = 0.5
	// IouThreshold suppresses overlapping candidates.
	IouThreshold = 0.45
)

// DetectorConfig is fixed at construction.
type DetectorConfig struct {
	ModelPath     string
	InputSize     int     // square input resolution hint
	ConfThreshold float32 // minimum face confidence
}

// FaceDetector runs a YOLO-style single-class face model with output [1,5,N]
// holding cx, cy, w, h and confidence in input pixel space.
type FaceDetector struct {
	mu      sync.Mutex
	model   *ModelSession
	size    int
	anchors int
	conf    float32
}

type candidate struct {
	box  image.Rectangle
	conf float32
}

// NewFaceDetector creates the detector session once.
func NewFaceDetector(cfg DetectorConfig) (*FaceDetector, error) {
	if cfg.InputSize <= 0 {
		cfg.InputSize = DefaultInputSize
	}
	if cfg.ConfThreshold <= 0 {
		cfg.ConfThreshold = DefaultConfThreshold
	}

	anchors := anchorCount(cfg.InputSize)
	model, err := newModelSession(
		cfg.ModelPath, "images", "output0",
		ort.NewShape(1, 3, int64(cfg.InputSize), int64(cfg.InputSize)),
		ort.NewShape(1, 5, int64(anchors)),
	)
	if err != nil {
		return nil, err
	}

	return &FaceDetector{model: model, size: cfg.InputSize, anchors: anchors, conf: cfg.ConfThreshold}, nil
}

// anchorCount is the number of predictions of a stride 8/16/32 YOLO head.
func anchorCount(size int) int {
	n := 0
	for _, stride := range []int{8, 16, 32} {
		g := size / stride
		n += g * g
	}
	return n
}

// Detect returns face boxes in frame coordinates, most confident first.
func (d *FaceDetector) Detect(frame image.Image) ([]image.Rectangle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	fillCHW(d.model.Input.GetData(), frame, d.size, d.size, [3]float32{}, [3]float32{1, 1, 1})

	if err := d.model.Session.Run(); err != nil {
		return nil, fmt.Errorf("model inference: %w", err)
	}

	b := frame.Bounds()
	cands, err := decodePredictions(d.model.Output.GetData(), d.anchors, d.size, d.conf, b)
	if err != nil {
		return nil, err
	}
	return suppress(cands, IouThreshold), nil
}

// Close destroys the session.
func (d *FaceDetector) Close() {
	d.model.Destroy()
}

// decodePredictions converts raw [5,N] output into thresholded candidates in
// frame coordinates, sorted by confidence.
func decodePredictions(pred []float32, anchors, inputSize int, threshold float32, frame image.Rectangle) ([]candidate, error) {
	if len(pred) != 5*anchors {
		return nil, fmt.Errorf("unexpected predictions length: got %d, want %d", len(pred), 5*anchors)
	}

	scaleX := float32(frame.Dx()) / float32(inputSize)
	scaleY := float32(frame.Dy()) / float32(inputSize)

	var out []candidate
	for i := 0; i < anchors; i++ {
		conf := pred[4*anchors+i]
		if conf < threshold {
			continue
		}
		cx, cy := pred[i], pred[anchors+i]
		w, h := pred[2*anchors+i], pred[3*anchors+i]

		r := image.Rect(
			frame.Min.X+int((cx-w/2)*scaleX),
			frame.Min.Y+int((cy-h/2)*scaleY),
			frame.Min.X+int((cx+w/2)*scaleX),
			frame.Min.Y+int((cy+h/2)*scaleY),
		).Intersect(frame)
		if r.Empty() {
			continue
		}
		out = append(out, candidate{box: r, conf: conf})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].conf > out[j].conf })
	return out, nil
}

// suppress keeps candidates (already sorted) that do not overlap a stronger one.
func suppress(cands []candidate, iouThreshold float64) []image.Rectangle {
	var kept []image.Rectangle
	for _, c := range cands {
		overlaps := false
		for _, k := range kept {
			if iou(c.box, k) > iouThreshold {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, c.box)
		}
	}
	return kept
}

func iou(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	ia := float64(inter.Dx() * inter.Dy())
	union := float64(a.Dx()*a.Dy()+b.Dx()*b.Dy()) - ia
	if union <= 0 {
		return 0
	}
	return ia / union
}
