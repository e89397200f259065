package inference

import (
	"fmt"
	"image"
	"log/slog"

	"github.com/andresmejia3/feelcam/internal/types"
	"github.com/disintegration/imaging"
)

// Detector locates faces in a full frame. Boxes are returned in frame pixel
// coordinates, most confident first.
type Detector interface {
	Detect(frame image.Image) ([]image.Rectangle, error)
}

// Classifier scores a cropped face against types.EmotionLabels.
type Classifier interface {
	Classify(face image.Image) (label string, scores []float64, err error)
}

// Adapter turns a frame into at most one emotion detection.
//
// Only the first face returned by the detector is classified; any further
// faces in the frame are ignored. Every detector or classifier fault is
// logged and reported as "no face".
type Adapter struct {
	detector   Detector
	classifier Classifier
	log        *slog.Logger
}

// NewAdapter wires long-lived detector and classifier backends together.
func NewAdapter(d Detector, c Classifier, log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{detector: d, classifier: c, log: log}
}

// InferEmotion returns the detection for the first face in frame, or nil.
func (a *Adapter) InferEmotion(frame image.Image) *types.Detection {
	det, err := a.infer(frame)
	if err != nil {
		a.log.Debug("inference failed, treating frame as faceless", "error", err)
		return nil
	}
	return det
}

func (a *Adapter) infer(frame image.Image) (det *types.Detection, err error) {
	// Backends may panic on malformed input; never let that reach the worker.
	defer func() {
		if r := recover(); r != nil {
			det, err = nil, fmt.Errorf("inference panicked: %v", r)
		}
	}()

	if frame == nil || frame.Bounds().Empty() {
		return nil, nil
	}

	faces, err := a.detector.Detect(frame)
	if err != nil {
		return nil, fmt.Errorf("face detection: %w", err)
	}
	if len(faces) == 0 {
		return nil, nil
	}

	box := faces[0].Canon().Intersect(frame.Bounds())
	if box.Empty() {
		return nil, nil
	}

	label, scores, err := a.classifier.Classify(imaging.Crop(frame, box))
	if err != nil {
		return nil, fmt.Errorf("emotion classification: %w", err)
	}
	if len(scores) != types.NumEmotions {
		return nil, fmt.Errorf("emotion classification: expected %d scores, got %d", types.NumEmotions, len(scores))
	}
	if label == "" {
		label = types.EmotionLabels[argmax(scores)]
	}

	return &types.Detection{Label: label, Scores: scores, Box: box}, nil
}

func argmax(v []float64) int {
	best := 0
	for i := range v {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}
