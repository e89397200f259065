package worker

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/andresmejia3/feelcam/internal/types"
	"github.com/andresmejia3/feelcam/internal/utils"
)

// Request opcodes understood by python/worker.py.
const (
	OpDetect   byte = 'D'
	OpClassify byte = 'C'
)

// ErrTimeout is returned when the worker does not answer within the
// configured deadline.
var ErrTimeout = errors.New("python worker timed out")

// Config controls how the Python engine is launched.
type Config struct {
	Script    string        // path to worker.py
	Threshold float64       // face confidence threshold
	DetSize   int           // detector input resolution
	GPU       bool          // use CUDA execution provider
	Timeout   time.Duration // per call; 0 disables
}

// EmotionEngine is a long-lived Python subprocess that runs face detection
// and emotion classification. Calls are serialized.
type EmotionEngine struct {
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser
	Timeout  time.Duration

	mu     sync.Mutex
	broken error // sticky transport failure; the stream is out of sync after it
}

// FaceBox is one detector hit as reported by the worker.
type FaceBox struct {
	Box   image.Rectangle
	Score float32
}

// NewEmotionEngine starts the worker and waits until its models are loaded.
func NewEmotionEngine(cfg Config) (*EmotionEngine, error) {
	if cfg.Script == "" {
		cfg.Script = "python/worker.py"
	}
	args := []string{"-u", cfg.Script,
		"--threshold", strconv.FormatFloat(cfg.Threshold, 'f', -1, 64),
		"--det-size", strconv.Itoa(cfg.DetSize),
	}
	if cfg.GPU {
		args = append(args, "--gpu")
	}
	py := utils.NewSafeCommand("python3", args...)

	// Responses travel on FD 3 so Python logging on stdout/stderr cannot corrupt them.
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("python worker failed to start: %w", err)
	}
	w.Close()

	e := &EmotionEngine{Cmd: py, Stdin: stdin, DataPipe: r, Timeout: cfg.Timeout}

	// The first frame on the pipe is the ready ack, sent once models are loaded.
	body, err := e.readFrame(0)
	if err == nil {
		err = checkStatus(bytes.NewReader(body))
	}
	if err != nil {
		e.Close()
		return nil, &InitError{Err: err, Cmd: py}
	}
	return e, nil
}

// InitError reports a worker that exited or failed before it was ready.
// Cmd holds whatever the worker wrote to stderr.
type InitError struct {
	Err error
	Cmd *utils.SafeCommand
}

func (e *InitError) Error() string {
	return fmt.Sprintf("python worker failed to initialize: %v", e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// Detect implements inference.Detector.
func (e *EmotionEngine) Detect(frame image.Image) ([]image.Rectangle, error) {
	faces, err := e.DetectFaces(frame)
	if err != nil {
		return nil, err
	}
	boxes := make([]image.Rectangle, len(faces))
	for i, f := range faces {
		boxes[i] = f.Box
	}
	return boxes, nil
}

// DetectFaces returns every face the worker found, in detector order.
func (e *EmotionEngine) DetectFaces(frame image.Image) ([]FaceBox, error) {
	resp, err := e.call(OpDetect, frame)
	if err != nil {
		return nil, err
	}
	return parseDetect(resp)
}

// Classify implements inference.Classifier.
func (e *EmotionEngine) Classify(face image.Image) (string, []float64, error) {
	resp, err := e.call(OpClassify, face)
	if err != nil {
		return "", nil, err
	}
	return parseClassify(resp)
}

func (e *EmotionEngine) call(op byte, img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(op)
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.broken != nil {
		return nil, e.broken
	}
	resp, err := e.Communicate(buf.Bytes())
	if err != nil {
		e.broken = fmt.Errorf("python worker unusable: %w", err)
	}
	return resp, err
}

// Communicate sends one request and returns the raw response body.
// Protocol: [Length][Data] in both directions.
func (e *EmotionEngine) Communicate(data []byte) ([]byte, error) {
	if err := binary.Write(e.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := e.Stdin.Write(data); err != nil {
		return nil, err
	}
	return e.readFrame(e.Timeout)
}

type deadliner interface {
	SetReadDeadline(t time.Time) error
}

func (e *EmotionEngine) readFrame(timeout time.Duration) ([]byte, error) {
	if d, ok := e.DataPipe.(deadliner); ok {
		var deadline time.Time
		if timeout > 0 {
			deadline = time.Now().Add(timeout)
		}
		// Pipes that cannot take a deadline simply block.
		_ = d.SetReadDeadline(deadline)
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(e.DataPipe, header); err != nil {
		return nil, wrapRead(err)
	}

	body := make([]byte, binary.BigEndian.Uint32(header))
	if _, err := io.ReadFull(e.DataPipe, body); err != nil {
		return nil, wrapRead(err)
	}
	return body, nil
}

func wrapRead(err error) error {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return ErrTimeout
	}
	return err
}

// Close stops the worker. Safe on a partially constructed engine.
func (e *EmotionEngine) Close() {
	if e.Stdin != nil {
		e.Stdin.Close()
	}
	if e.DataPipe != nil {
		e.DataPipe.Close()
	}
	if e.Cmd != nil {
		e.Cmd.Wait()
	}
}

// checkStatus consumes the status byte and turns an error body into an error.
func checkStatus(r *bytes.Reader) error {
	status, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("empty response from worker")
	}
	if status == 0 {
		return nil
	}

	var msgLen uint32
	if err := binary.Read(r, binary.BigEndian, &msgLen); err != nil {
		return fmt.Errorf("python worker error: unknown (status %d)", status)
	}
	msg := make([]byte, msgLen)
	if _, err := io.ReadFull(r, msg); err != nil {
		return fmt.Errorf("python worker error: truncated message")
	}
	return fmt.Errorf("python worker error: %s", msg)
}

// parseDetect decodes [0][n]{[4]int32 box, float32 score}*n.
func parseDetect(resp []byte) ([]FaceBox, error) {
	r := bytes.NewReader(resp)
	if err := checkStatus(r); err != nil {
		return nil, err
	}

	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, fmt.Errorf("failed to read face count: %w", err)
	}

	faces := make([]FaceBox, 0, n)
	for i := uint32(0); i < n; i++ {
		var loc [4]int32
		var score float32
		if err := binary.Read(r, binary.BigEndian, &loc); err != nil {
			return nil, fmt.Errorf("failed to read box %d: %w", i, err)
		}
		if err := binary.Read(r, binary.BigEndian, &score); err != nil {
			return nil, fmt.Errorf("failed to read score %d: %w", i, err)
		}
		faces = append(faces, FaceBox{
			Box:   image.Rect(int(loc[0]), int(loc[1]), int(loc[2]), int(loc[3])),
			Score: score,
		})
	}
	return faces, nil
}

// parseClassify decodes [0][labelLen][label][n][float32]*n.
func parseClassify(resp []byte) (string, []float64, error) {
	r := bytes.NewReader(resp)
	if err := checkStatus(r); err != nil {
		return "", nil, err
	}

	var labelLen uint32
	if err := binary.Read(r, binary.BigEndian, &labelLen); err != nil {
		return "", nil, fmt.Errorf("failed to read label length: %w", err)
	}
	label := make([]byte, labelLen)
	if _, err := io.ReadFull(r, label); err != nil {
		return "", nil, fmt.Errorf("failed to read label: %w", err)
	}

	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", nil, fmt.Errorf("failed to read score count: %w", err)
	}
	if n != types.NumEmotions {
		return "", nil, fmt.Errorf("worker returned %d scores, want %d", n, types.NumEmotions)
	}

	raw := make([]float32, n)
	if err := binary.Read(r, binary.BigEndian, raw); err != nil {
		return "", nil, fmt.Errorf("failed to read scores: %w", err)
	}
	scores := make([]float64, n)
	for i, v := range raw {
		scores[i] = widen(v)
	}

	if types.LabelIndex(string(label)) < 0 {
		return "", nil, fmt.Errorf("worker returned unknown label %q", label)
	}
	return string(label), scores, nil
}

// widen converts a wire float32 to the float64 with the same shortest
// decimal form, so 0.01f logs as 0.01 rather than 0.009999999776482582.
func widen(v float32) float64 {
	f, _ := strconv.ParseFloat(strconv.FormatFloat(float64(v), 'g', -1, 32), 64)
	return f
}
