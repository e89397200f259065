package worker

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/jpeg"
	"io"
	"math"
	"os"
	"testing"
	"time"

	"github.com/andresmejia3/feelcam/internal/recorder"
)

// MockCloser wraps a bytes.Buffer to satisfy io.ReadCloser and io.WriteCloser interfaces.
// This allows us to use in-memory buffers as if they were OS Pipes.
type MockCloser struct {
	*bytes.Buffer
}

func (m *MockCloser) Close() error { return nil }

// respond frames a fake Python response onto the data pipe.
func respond(pipe *MockCloser, body []byte) {
	binary.Write(pipe, binary.BigEndian, uint32(len(body)))
	pipe.Write(body)
}

func newMockEngine() (*EmotionEngine, *MockCloser, *MockCloser) {
	stdin := &MockCloser{Buffer: new(bytes.Buffer)}
	data := &MockCloser{Buffer: new(bytes.Buffer)}
	// Cmd is nil because we aren't testing process management, just the protocol
	return &EmotionEngine{Stdin: stdin, DataPipe: data}, stdin, data
}

func testFrame() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 32, 24))
}

func TestDetect(t *testing.T) {
	e, stdin, data := newMockEngine()

	// Protocol: [Status:0] [NumFaces:2] {[Box] [Score]}*2
	payload := new(bytes.Buffer)
	payload.WriteByte(0)
	binary.Write(payload, binary.BigEndian, uint32(2))
	binary.Write(payload, binary.BigEndian, [4]int32{10, 12, 20, 22})
	binary.Write(payload, binary.BigEndian, float32(0.98))
	binary.Write(payload, binary.BigEndian, [4]int32{1, 2, 3, 4})
	binary.Write(payload, binary.BigEndian, float32(0.51))
	respond(data, payload.Bytes())

	faces, err := e.DetectFaces(testFrame())
	if err != nil {
		t.Fatalf("DetectFaces failed: %v", err)
	}

	// Verify Go sent [len][op][jpeg] TO Python
	sent := stdin.Bytes()
	n := binary.BigEndian.Uint32(sent[:4])
	if int(n) != len(sent)-4 {
		t.Errorf("Length header %d does not match body %d", n, len(sent)-4)
	}
	if sent[4] != OpDetect {
		t.Errorf("Expected op %q, got %q", OpDetect, sent[4])
	}
	if _, err := jpeg.Decode(bytes.NewReader(sent[5:])); err != nil {
		t.Errorf("Request body is not a JPEG: %v", err)
	}

	if len(faces) != 2 {
		t.Fatalf("Expected 2 faces, got %d", len(faces))
	}
	if faces[0].Box != image.Rect(10, 12, 20, 22) {
		t.Errorf("Unexpected first box %v", faces[0].Box)
	}
	if math.Abs(float64(faces[0].Score)-0.98) > 1e-6 {
		t.Errorf("Expected score ~0.98, got %f", faces[0].Score)
	}
}

func TestDetect_NoFaces(t *testing.T) {
	e, _, data := newMockEngine()
	respond(data, []byte{0, 0, 0, 0, 0})

	boxes, err := e.Detect(testFrame())
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(boxes) != 0 {
		t.Errorf("Expected no boxes, got %v", boxes)
	}
}

func classifyPayload(label string, scores []float32) []byte {
	payload := new(bytes.Buffer)
	payload.WriteByte(0)
	binary.Write(payload, binary.BigEndian, uint32(len(label)))
	payload.WriteString(label)
	binary.Write(payload, binary.BigEndian, uint32(len(scores)))
	binary.Write(payload, binary.BigEndian, scores)
	return payload.Bytes()
}

func TestClassify(t *testing.T) {
	e, stdin, data := newMockEngine()
	respond(data, classifyPayload("happiness", []float32{0.01, 0.01, 0.01, 0.01, 0.9, 0.02, 0.02, 0.03}))

	label, scores, err := e.Classify(testFrame())
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if stdin.Bytes()[4] != OpClassify {
		t.Errorf("Expected op %q, got %q", OpClassify, stdin.Bytes()[4])
	}
	if label != "happiness" {
		t.Errorf("Expected label happiness, got %q", label)
	}
	if len(scores) != 8 || math.Abs(scores[4]-0.9) > 1e-6 {
		t.Errorf("Unexpected scores %v", scores)
	}
}

func TestClassify_ScoresLogAtWirePrecision(t *testing.T) {
	e, _, data := newMockEngine()
	respond(data, classifyPayload("happiness", []float32{0.01, 0.01, 0.01, 0.01, 0.9, 0.02, 0.02, 0.03}))

	_, scores, err := e.Classify(testFrame())
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}

	got := recorder.FormatRow(time.Unix(1700000000, 0), scores)
	want := "1700000000;0.01;0.01;0.01;0.01;0.9;0.02;0.02;0.03"
	if got != want {
		t.Errorf("FormatRow() = %q, want %q", got, want)
	}
}

func TestWiden(t *testing.T) {
	tests := []struct {
		in   float32
		want float64
	}{
		{0.01, 0.01},
		{0.9, 0.9},
		{1, 1},
		{0, 0},
		{0.123456789, 0.12345679},
	}
	for _, tt := range tests {
		if got := widen(tt.in); got != tt.want {
			t.Errorf("widen(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestClassify_BadResponses(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{"Short score vector", classifyPayload("happiness", []float32{1})},
		{"Unknown label", classifyPayload("joy", make([]float32, 8))},
		{"Truncated", []byte{0, 0, 0, 0, 9, 'h'}},
		{"Empty", []byte{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _, data := newMockEngine()
			respond(data, tt.body)
			if _, _, err := e.Classify(testFrame()); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestCommunicate_Error(t *testing.T) {
	e, _, data := newMockEngine()

	// Protocol: [Status:1] [MsgLen] [Msg]
	payload := new(bytes.Buffer)
	payload.WriteByte(1)
	errMsg := "Python Exception: Import Error"
	binary.Write(payload, binary.BigEndian, uint32(len(errMsg)))
	payload.WriteString(errMsg)
	respond(data, payload.Bytes())

	_, err := e.Detect(testFrame())
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if err.Error() != "python worker error: "+errMsg {
		t.Errorf("Expected error message '%s', got '%v'", "python worker error: "+errMsg, err)
	}
}

func TestTransportFailureIsSticky(t *testing.T) {
	e, stdin, _ := newMockEngine() // no response queued: reads hit EOF

	if _, err := e.Detect(testFrame()); err == nil {
		t.Fatal("Expected read error on empty pipe")
	}
	sent := stdin.Len()

	if _, err := e.Detect(testFrame()); err == nil {
		t.Fatal("Expected broken engine to keep failing")
	}
	if stdin.Len() != sent {
		t.Error("Broken engine should not send further requests")
	}
}

func TestReadTimeout(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	e := &EmotionEngine{
		Stdin:    &MockCloser{Buffer: new(bytes.Buffer)},
		DataPipe: r,
		Timeout:  50 * time.Millisecond,
	}
	defer r.Close()

	start := time.Now()
	_, err = e.Communicate([]byte{OpDetect})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Expected ErrTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Timeout took too long: %v", elapsed)
	}
}

var _ io.ReadCloser = (*MockCloser)(nil)
