package onnx

import (
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/andresmejia3/feelcam/internal/types"
	ort "github.com/yalue/onnxruntime_go"
)

// ClassifierInputSize is the square face crop resolution of enet_b0_8.
const ClassifierInputSize = 224

var (
	imagenetMean = [3]float32{0.485, 0.456, 0.406}
	imagenetStd  = [3]float32{0.229, 0.224, 0.225}
)

// EmotionClassifier scores a face crop with an HSEmotion 8-class model.
// Outputs follow types.EmotionLabels order.
type EmotionClassifier struct {
	mu    sync.Mutex
	model *ModelSession
}

// NewEmotionClassifier loads the classifier session once.
func NewEmotionClassifier(modelPath string) (*EmotionClassifier, error) {
	model, err := newModelSession(
		modelPath, "input", "output",
		ort.NewShape(1, 3, ClassifierInputSize, ClassifierInputSize),
		ort.NewShape(1, types.NumEmotions),
	)
	if err != nil {
		return nil, err
	}
	return &EmotionClassifier{model: model}, nil
}

// Classify returns the argmax label and the softmax probabilities.
func (c *EmotionClassifier) Classify(face image.Image) (string, []float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fillCHW(c.model.Input.GetData(), face, ClassifierInputSize, ClassifierInputSize, imagenetMean, imagenetStd)

	if err := c.model.Session.Run(); err != nil {
		return "", nil, fmt.Errorf("model inference: %w", err)
	}

	scores := softmax(c.model.Output.GetData())
	best := 0
	for i := range scores {
		if scores[i] > scores[best] {
			best = i
		}
	}
	return types.EmotionLabels[best], scores, nil
}

// Close destroys the session.
func (c *EmotionClassifier) Close() {
	c.model.Destroy()
}

func softmax(logits []float32) []float64 {
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}

	peak := float64(logits[0])
	for _, v := range logits[1:] {
		if float64(v) > peak {
			peak = float64(v)
		}
	}

	var sum float64
	for i, v := range logits {
		out[i] = math.Exp(float64(v) - peak)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
