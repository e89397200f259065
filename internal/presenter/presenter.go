// Package presenter drives the camera through the preview and recording loops.
//
// Exactly one background worker runs at a time. A mode switch cancels the
// current worker, waits for it to finish its iteration, and starts a fresh
// one for the new mode. Workers check for cancellation at the top of each
// iteration only, so a camera read that never returns blocks the switch.
package presenter

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andresmejia3/feelcam/internal/handoff"
	"github.com/andresmejia3/feelcam/internal/overlay"
	"github.com/andresmejia3/feelcam/internal/recorder"
	"github.com/andresmejia3/feelcam/internal/types"
)

const (
	// DefaultSampleInterval caps recording at 10 rows per second.
	DefaultSampleInterval = 100 * time.Millisecond
	// DefaultReadRetryDelay is the pause after a failed preview read.
	DefaultReadRetryDelay = 10 * time.Millisecond

	catalogTimeout = 2 * time.Second
)

// ErrClosed is returned by Start and Toggle after Shutdown.
var ErrClosed = errors.New("presenter is shut down")

// Camera is the frame source. The presenter owns it until Shutdown.
type Camera interface {
	Read() (image.Image, error)
	Close() error
}

// Inferer maps a frame to at most one detection. It must not fail.
type Inferer interface {
	InferEmotion(frame image.Image) *types.Detection
}

// SessionCatalog is told about every recording session. Failures are logged
// and otherwise ignored.
type SessionCatalog interface {
	SessionStarted(ctx context.Context, path string, startedAt time.Time) (int64, error)
	SessionFinished(ctx context.Context, id int64, endedAt time.Time, rows int, cause error) error
}

// Config tunes the loops. Zero values pick the defaults.
type Config struct {
	OutputDir      string
	SampleInterval time.Duration
	ReadRetryDelay time.Duration
	Now            func() time.Time
	Logger         *slog.Logger
	Catalog        SessionCatalog
}

// Stats is a point-in-time snapshot of the presenter counters.
type Stats struct {
	Mode            string `json:"mode"`
	Workers         int32  `json:"workers"`
	PreviewFrames   uint64 `json:"preview_frames"`
	RecordedFrames  uint64 `json:"recorded_frames"`
	Rows            uint64 `json:"rows"`
	ReadFaults      uint64 `json:"read_faults"`
	Sessions        uint64 `json:"sessions"`
	SessionFailures uint64 `json:"session_failures"`
	SessionPath     string `json:"session_path,omitempty"`
}

// Presenter is the PREVIEW/RECORDING state machine.
type Presenter struct {
	cam  Camera
	inf  Inferer
	slot *handoff.Slot[*overlay.Annotated]
	cfg  Config
	log  *slog.Logger

	mu     sync.Mutex // serializes Start, Toggle and Shutdown
	cancel context.CancelFunc
	done   chan struct{}
	closed bool

	mode    atomic.Int32
	workers atomic.Int32
	errs    chan error

	previewFrames   atomic.Uint64
	recordedFrames  atomic.Uint64
	rows            atomic.Uint64
	readFaults      atomic.Uint64
	sessions        atomic.Uint64
	sessionFailures atomic.Uint64
	sessionPath     atomic.Pointer[string]
}

// New takes ownership of an open camera. Nothing runs until Start.
func New(cam Camera, inf Inferer, slot *handoff.Slot[*overlay.Annotated], cfg Config) *Presenter {
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = DefaultSampleInterval
	}
	if cfg.ReadRetryDelay <= 0 {
		cfg.ReadRetryDelay = DefaultReadRetryDelay
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	p := &Presenter{
		cam:  cam,
		inf:  inf,
		slot: slot,
		cfg:  cfg,
		log:  log,
		errs: make(chan error, 1),
	}
	p.mode.Store(int32(types.Preview))
	return p
}

// Start launches the preview worker. It is a no-op if a worker is running.
func (p *Presenter) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if p.done != nil {
		return nil
	}
	p.launch(p.previewLoop)
	return nil
}

// Toggle switches between PREVIEW and RECORDING and returns the new mode.
// If the session file cannot be opened the presenter stays in PREVIEW and
// the error is returned.
func (p *Presenter) Toggle() (types.Mode, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return p.Mode(), ErrClosed
	}
	p.join()

	switch p.Mode() {
	case types.Preview:
		sess, err := recorder.Create(p.cfg.OutputDir, p.cfg.Now())
		if err != nil {
			p.launch(p.previewLoop)
			return types.Preview, fmt.Errorf("failed to start recording: %w", err)
		}
		p.sessions.Add(1)
		p.sessionPath.Store(ptr(sess.Path()))
		p.mode.Store(int32(types.Recording))
		p.launch(func(ctx context.Context) { p.recordLoop(ctx, sess) })
		return types.Recording, nil

	default:
		p.mode.Store(int32(types.Preview))
		p.launch(p.previewLoop)
		return types.Preview, nil
	}
}

// Shutdown stops the worker and releases the camera. Later calls are no-ops.
func (p *Presenter) Shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	p.join()
	close(p.errs)

	if err := p.cam.Close(); err != nil {
		return fmt.Errorf("failed to release camera: %w", err)
	}
	return nil
}

// Mode reports the current mode.
func (p *Presenter) Mode() types.Mode {
	return types.Mode(p.mode.Load())
}

// Errors delivers session-level faults raised inside the recording worker.
// The channel is closed by Shutdown.
func (p *Presenter) Errors() <-chan error {
	return p.errs
}

// Stats returns a snapshot of the counters.
func (p *Presenter) Stats() Stats {
	s := Stats{
		Mode:            p.Mode().String(),
		Workers:         p.workers.Load(),
		PreviewFrames:   p.previewFrames.Load(),
		RecordedFrames:  p.recordedFrames.Load(),
		Rows:            p.rows.Load(),
		ReadFaults:      p.readFaults.Load(),
		Sessions:        p.sessions.Load(),
		SessionFailures: p.sessionFailures.Load(),
	}
	if path := p.sessionPath.Load(); path != nil {
		s.SessionPath = *path
	}
	return s
}

// launch must be called with mu held and no worker running.
func (p *Presenter) launch(loop func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.cancel, p.done = cancel, done

	p.workers.Add(1)
	go func() {
		defer close(done)
		defer p.workers.Add(-1)
		loop(ctx)
	}()
}

// join must be called with mu held.
func (p *Presenter) join() {
	if p.done == nil {
		return
	}
	p.cancel()
	<-p.done
	p.cancel, p.done = nil, nil
}

func (p *Presenter) previewLoop(ctx context.Context) {
	for ctx.Err() == nil {
		start := time.Now()
		frame, err := p.cam.Read()
		if err != nil {
			p.readFault(err)
			sleep(ctx, p.cfg.ReadRetryDelay)
			continue
		}

		det := p.inf.InferEmotion(frame)
		fps := overlay.FPS(time.Since(start))
		p.slot.Publish(overlay.Annotate(frame, det, fps))
		p.previewFrames.Add(1)
	}
}

// recordLoop owns sess and closes it before returning. A write failure ends
// the session and the same worker carries on as the preview loop.
func (p *Presenter) recordLoop(ctx context.Context, sess *recorder.Session) {
	id := p.catalogStarted(sess)

	for ctx.Err() == nil {
		start := time.Now()

		frame, err := p.cam.Read()
		if err != nil {
			p.readFault(err)
			p.pace(ctx, start)
			continue
		}

		det := p.inf.InferEmotion(frame)
		p.recordedFrames.Add(1)

		if det != nil {
			if err := sess.Append(p.cfg.Now(), det.Scores); err != nil {
				// Flip the mode before reporting so listeners never see RECORDING.
				p.mode.Store(int32(types.Preview))
				p.failSession(sess, id, err)
				p.previewLoop(ctx)
				return
			}
			p.rows.Add(1)
		}

		p.pace(ctx, start)
	}

	err := sess.Close()
	if err != nil {
		p.log.Warn("failed to close session file", "path", sess.Path(), "error", err)
	}
	p.catalogFinished(id, sess, err)
	p.sessionPath.Store(nil)
}

func (p *Presenter) failSession(sess *recorder.Session, id int64, cause error) {
	p.sessionFailures.Add(1)
	p.sessionPath.Store(nil)
	if err := sess.Close(); err != nil {
		p.log.Warn("failed to close session file", "path", sess.Path(), "error", err)
	}
	p.catalogFinished(id, sess, cause)

	err := fmt.Errorf("recording to %s aborted: %w", sess.Path(), cause)
	select {
	case p.errs <- err:
	default:
		p.log.Error("dropping session error, nobody is listening", "error", err)
	}
}

// pace sleeps out the rest of the sample interval measured from start.
// Late iterations are not compensated.
func (p *Presenter) pace(ctx context.Context, start time.Time) {
	sleep(ctx, p.cfg.SampleInterval-time.Since(start))
}

func (p *Presenter) readFault(err error) {
	if n := p.readFaults.Add(1); n == 1 || n%100 == 0 {
		p.log.Warn("camera read failed, retrying", "faults", n, "error", err)
	}
}

func (p *Presenter) catalogStarted(sess *recorder.Session) int64 {
	if p.cfg.Catalog == nil {
		return 0
	}
	ctx, cancel := context.WithTimeout(context.Background(), catalogTimeout)
	defer cancel()

	id, err := p.cfg.Catalog.SessionStarted(ctx, sess.Path(), sess.StartedAt())
	if err != nil {
		p.log.Warn("failed to catalog session", "path", sess.Path(), "error", err)
		return 0
	}
	return id
}

func (p *Presenter) catalogFinished(id int64, sess *recorder.Session, cause error) {
	if p.cfg.Catalog == nil || id == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), catalogTimeout)
	defer cancel()

	if err := p.cfg.Catalog.SessionFinished(ctx, id, p.cfg.Now(), sess.Rows(), cause); err != nil {
		p.log.Warn("failed to update session catalog", "id", id, "error", err)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func ptr[T any](v T) *T { return &v }
