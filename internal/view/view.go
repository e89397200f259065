// Package view is the fyne window: live frame display plus the record button.
package view

import (
	"sync"
	"sync/atomic"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/andresmejia3/feelcam/internal/overlay"
	"github.com/andresmejia3/feelcam/internal/types"
)

const (
	// PollInterval is how often the display checks the hand-off slot.
	PollInterval = 5 * time.Millisecond

	labelStart = "Start Recording"
	labelStop  = "Stop Recording"
)

// Controller is the presenter surface the window drives.
type Controller interface {
	Toggle() (types.Mode, error)
	Shutdown() error
	Errors() <-chan error
}

// FrameSource is polled for the latest annotated frame.
type FrameSource interface {
	TryTake() (*overlay.Annotated, bool)
}

// View owns the window. Widget state is only touched on the fyne goroutine.
type View struct {
	app    fyne.App
	win    fyne.Window
	img    *canvas.Image
	button *widget.Button

	ctrl   Controller
	frames FrameSource

	recording bool
	polling   atomic.Bool
	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New builds the window without showing it.
func New(a fyne.App, title string, ctrl Controller, frames FrameSource) *View {
	v := &View{
		app:    a,
		win:    a.NewWindow(title),
		ctrl:   ctrl,
		frames: frames,
		stop:   make(chan struct{}),
	}

	v.img = canvas.NewImageFromImage(nil)
	v.img.FillMode = canvas.ImageFillContain
	v.img.ScaleMode = canvas.ImageScaleFastest
	v.img.SetMinSize(fyne.NewSize(640, 480))

	v.button = widget.NewButton(labelStart, v.onToggle)

	v.win.SetContent(container.NewBorder(nil, v.button, nil, nil, v.img))
	v.win.SetCloseIntercept(v.Close)
	return v
}

// Start launches the frame poller and the session error watcher.
func (v *View) Start() {
	v.polling.Store(true)
	v.wg.Add(1)
	go v.poll()
	go v.watchErrors()
}

// Run starts the background loops and blocks in the fyne event loop.
func (v *View) Run() {
	v.Start()
	v.win.ShowAndRun()
}

func (v *View) poll() {
	defer v.wg.Done()
	defer v.polling.Store(false)

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-v.stop:
			return
		case <-ticker.C:
			v.pollOnce()
		}
	}
}

// pollOnce paints the newest frame if there is one. It never blocks.
func (v *View) pollOnce() bool {
	frame, ok := v.frames.TryTake()
	if !ok {
		return false
	}
	fyne.Do(func() {
		v.img.Image = frame.Image
		v.img.Refresh()
	})
	return true
}

func (v *View) watchErrors() {
	for err := range v.ctrl.Errors() {
		fyne.Do(func() {
			v.setRecording(false)
			dialog.ShowError(err, v.win)
		})
	}
}

// onToggle flips the label first and reverts it if the switch fails.
func (v *View) onToggle() {
	v.setRecording(!v.recording)

	mode, err := v.ctrl.Toggle()
	v.setRecording(mode == types.Recording)
	if err != nil {
		dialog.ShowError(err, v.win)
	}
}

func (v *View) setRecording(on bool) {
	v.recording = on
	if on {
		v.button.SetText(labelStop)
	} else {
		v.button.SetText(labelStart)
	}
}

// Done is closed once Close has started tearing the view down.
func (v *View) Done() <-chan struct{} {
	return v.stop
}

// Close tears down in order: poller, presenter (worker and camera), window.
func (v *View) Close() {
	v.closeOnce.Do(func() {
		close(v.stop)
		v.wg.Wait()

		if err := v.ctrl.Shutdown(); err != nil {
			fyne.LogError("presenter shutdown", err)
		}
		v.win.Close()
		v.app.Quit()
	})
}
