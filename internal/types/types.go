package types

import "image"

// EmotionLabels is the fixed score order used by every classifier backend and
// by the session log columns.
var EmotionLabels = [NumEmotions]string{
	"anger",
	"contempt",
	"disgust",
	"fear",
	"happiness",
	"neutral",
	"sadness",
	"surprise",
}

// NumEmotions is the length of every score vector.
const NumEmotions = 8

// Detection is the result of running the detector and classifier on one frame.
// A nil *Detection means no face was found; a non-nil one always carries a
// label, a full score vector and a box.
type Detection struct {
	Label  string
	Scores []float64
	Box    image.Rectangle // x1,y1 = Min; x2,y2 = Max
}

// Mode is the presenter's execution mode.
type Mode int32

const (
	Preview Mode = iota
	Recording
)

func (m Mode) String() string {
	switch m {
	case Preview:
		return "preview"
	case Recording:
		return "recording"
	default:
		return "unknown"
	}
}

// LabelIndex returns the score column of an emotion label, or -1.
func LabelIndex(label string) int {
	for i, l := range EmotionLabels {
		if l == label {
			return i
		}
	}
	return -1
}
