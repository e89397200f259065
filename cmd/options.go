package cmd

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/andresmejia3/feelcam/internal/camera"
	"github.com/spf13/cobra"
)

const (
	enginePython = "python"
	engineONNX   = "onnx"
)

// Options holds shared configuration for the live and record commands
type Options struct {
	Device        string
	CameraBackend string
	Width         int
	Height        int

	Engine             string
	WorkerScript       string
	DetectorModel      string
	ClassifierModel    string
	OnnxLib            string
	DetectionThreshold float64
	DetectionSize      int
	GPU                bool

	OutputDir      string
	SampleInterval string
	WorkerTimeout  string
	StatusAddr     string

	// Filled in by validateOptions.
	sampleInterval time.Duration
	workerTimeout  time.Duration
}

func addCaptureFlags(cmd *cobra.Command, opts *Options) {
	f := cmd.Flags()
	f.StringVar(&opts.Device, "device", "0", "Camera index or device path")
	f.StringVar(&opts.CameraBackend, "camera-backend", camera.BackendOpenCV, "Camera backend: gocv or v4l2")
	f.IntVar(&opts.Width, "width", 640, "Requested frame width (0 keeps the driver default)")
	f.IntVar(&opts.Height, "height", 480, "Requested frame height (0 keeps the driver default)")

	f.StringVarP(&opts.Engine, "engine", "e", enginePython, "Inference engine: python (InsightFace + HSEmotion) or onnx (in-process)")
	f.StringVar(&opts.WorkerScript, "worker-script", "python/worker.py", "Path to the Python inference worker")
	f.StringVar(&opts.DetectorModel, "detector-model", "models/yolov8n-face.onnx", "Face detector model for the onnx engine")
	f.StringVar(&opts.ClassifierModel, "classifier-model", "models/enet_b0_8_best_afew.onnx", "Emotion classifier model for the onnx engine")
	f.StringVar(&opts.OnnxLib, "onnx-lib", "", "Path to the ONNX Runtime shared library (default: system search path)")
	f.Float64VarP(&opts.DetectionThreshold, "detection-threshold", "t", 0.5, "Minimum face confidence (0.0 - 1.0)")
	f.IntVar(&opts.DetectionSize, "detection-size", 640, "Detector input resolution (multiple of 32)")
	f.BoolVar(&opts.GPU, "gpu", false, "Use CUDA for the python engine")

	f.StringVarP(&opts.OutputDir, "output-dir", "o", ".", "Directory for session CSV files")
	f.StringVar(&opts.SampleInterval, "sample-interval", "100ms", "Minimum time between recorded samples")
	f.StringVar(&opts.WorkerTimeout, "worker-timeout", "0s", "Abandon a Python inference call after this long (0 waits forever)")
	f.StringVar(&opts.StatusAddr, "status-addr", "", "Serve /status and /healthz on this address (e.g. 127.0.0.1:8090)")
}

// validateOptions checks every option before any device or model is opened.
func validateOptions(opts *Options) error {
	switch opts.CameraBackend {
	case camera.BackendOpenCV, camera.BackendV4L2:
	default:
		return fmt.Errorf("invalid camera backend %q (use gocv or v4l2)", opts.CameraBackend)
	}
	if opts.Width < 0 || opts.Height < 0 {
		return fmt.Errorf("invalid resolution %dx%d", opts.Width, opts.Height)
	}

	switch opts.Engine {
	case enginePython:
		if err := requireFile(opts.WorkerScript, "worker script"); err != nil {
			return err
		}
	case engineONNX:
		if err := requireFile(opts.DetectorModel, "detector model"); err != nil {
			return err
		}
		if err := requireFile(opts.ClassifierModel, "classifier model"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid engine %q (use python or onnx)", opts.Engine)
	}

	if opts.DetectionThreshold <= 0 || opts.DetectionThreshold > 1.0 {
		return fmt.Errorf("detection threshold must be between 0.0 and 1.0, got %f", opts.DetectionThreshold)
	}
	if opts.DetectionSize <= 0 || opts.DetectionSize%32 != 0 {
		return fmt.Errorf("detection size must be a positive multiple of 32, got %d", opts.DetectionSize)
	}

	var err error
	if opts.sampleInterval, err = time.ParseDuration(opts.SampleInterval); err != nil {
		return fmt.Errorf("invalid sample-interval format (use '100ms', '1s'): %w", err)
	}
	if opts.sampleInterval <= 0 {
		return fmt.Errorf("sample-interval must be positive, got %s", opts.SampleInterval)
	}
	if opts.workerTimeout, err = time.ParseDuration(opts.WorkerTimeout); err != nil {
		return fmt.Errorf("invalid worker-timeout format (use '2s', '500ms'): %w", err)
	}
	if opts.workerTimeout < 0 {
		return fmt.Errorf("worker-timeout cannot be negative, got %s", opts.WorkerTimeout)
	}

	if opts.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}
	if info, err := os.Stat(opts.OutputDir); err == nil && !info.IsDir() {
		return fmt.Errorf("output path %s is not a directory", opts.OutputDir)
	}

	if opts.StatusAddr != "" {
		if _, _, err := net.SplitHostPort(opts.StatusAddr); err != nil {
			return fmt.Errorf("invalid status address %q: %w", opts.StatusAddr, err)
		}
	}
	return nil
}

func requireFile(path, what string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s %s does not exist", what, path)
		}
		return fmt.Errorf("unable to access %s: %w", what, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s %s is a directory, expected a file", what, path)
	}
	return nil
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func fmtTime(seconds float64) string {
	duration := time.Duration(seconds * float64(time.Second))
	h := int(duration.Hours())
	m := int(duration.Minutes()) % 60
	s := int(duration.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
