package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/andresmejia3/feelcam/internal/camera"
	"github.com/andresmejia3/feelcam/internal/inference"
	"github.com/andresmejia3/feelcam/internal/inference/onnx"
	"github.com/andresmejia3/feelcam/internal/presenter"
	"github.com/andresmejia3/feelcam/internal/store"
	"github.com/andresmejia3/feelcam/internal/utils"
	"github.com/andresmejia3/feelcam/internal/worker"
)

// pipeline bundles the long-lived capture and inference resources. The
// camera is handed to the presenter, which releases it; Close releases the
// inference backends.
type pipeline struct {
	cam     camera.Camera
	inf     *inference.Adapter
	closers []func()
}

// openPipeline loads the models first and opens the camera last, so a slow
// model load never holds the device.
func openPipeline(opts *Options, log *slog.Logger) (*pipeline, error) {
	p := &pipeline{}

	var det inference.Detector
	var cls inference.Classifier

	switch opts.Engine {
	case enginePython:
		fmt.Fprintf(os.Stderr, "🐍 Starting Python inference worker...\n")
		engine, err := worker.NewEmotionEngine(worker.Config{
			Script:    opts.WorkerScript,
			Threshold: opts.DetectionThreshold,
			DetSize:   opts.DetectionSize,
			GPU:       opts.GPU,
			Timeout:   opts.workerTimeout,
		})
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, engine.Close)
		det, cls = engine, engine

	case engineONNX:
		fmt.Fprintf(os.Stderr, "🧠 Loading ONNX models...\n")
		teardown, err := onnx.InitEnvironment(opts.OnnxLib)
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, teardown)

		fd, err := onnx.NewFaceDetector(onnx.DetectorConfig{
			ModelPath:     opts.DetectorModel,
			InputSize:     opts.DetectionSize,
			ConfThreshold: float32(opts.DetectionThreshold),
		})
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to load face detector: %w", err)
		}
		p.closers = append(p.closers, fd.Close)

		ec, err := onnx.NewEmotionClassifier(opts.ClassifierModel)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to load emotion classifier: %w", err)
		}
		p.closers = append(p.closers, ec.Close)
		det, cls = fd, ec
	}
	p.inf = inference.NewAdapter(det, cls, log)

	fmt.Fprintf(os.Stderr, "📷 Opening camera %s (%s)...\n", opts.Device, opts.CameraBackend)
	cam, err := camera.Open(camera.Config{
		Backend: opts.CameraBackend,
		Device:  opts.Device,
		Width:   opts.Width,
		Height:  opts.Height,
	})
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to open camera: %w", err)
	}
	p.cam = cam
	return p, nil
}

// Close releases inference backends in reverse order of creation.
func (p *pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
	p.closers = nil
}

// dieOnPipelineError prints Python logs when the worker is the culprit.
func dieOnPipelineError(err error) {
	var initErr *worker.InitError
	if errors.As(err, &initErr) {
		utils.Die("Failed to start inference engine", initErr.Err, initErr.Cmd)
	}
	utils.Die("Failed to start capture pipeline", err, nil)
}

func presenterConfig(opts *Options, log *slog.Logger) presenter.Config {
	cfg := presenter.Config{
		OutputDir:      opts.OutputDir,
		SampleInterval: opts.sampleInterval,
		Logger:         log,
	}
	if DB != nil {
		cfg.Catalog = store.Catalog(DB)
	}
	return cfg
}
