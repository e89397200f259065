package view

import (
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"fyne.io/fyne/v2/test"

	"github.com/andresmejia3/feelcam/internal/handoff"
	"github.com/andresmejia3/feelcam/internal/overlay"
	"github.com/andresmejia3/feelcam/internal/types"
)

type fakeController struct {
	mu          sync.Mutex
	mode        types.Mode
	failNext    error
	toggles     int
	shutdowns   int
	pollingSeen bool // poller state observed when Shutdown ran
	view        *View
	errs        chan error
}

func newFakeController() *fakeController {
	return &fakeController{errs: make(chan error, 1)}
}

func (c *fakeController) Toggle() (types.Mode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toggles++
	if c.failNext != nil {
		err := c.failNext
		c.failNext = nil
		return c.mode, err
	}
	if c.mode == types.Preview {
		c.mode = types.Recording
	} else {
		c.mode = types.Preview
	}
	return c.mode, nil
}

func (c *fakeController) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shutdowns++
	c.pollingSeen = c.view.polling.Load()
	return nil
}

func (c *fakeController) Errors() <-chan error { return c.errs }

func newTestView(t *testing.T) (*View, *fakeController, *handoff.Slot[*overlay.Annotated]) {
	t.Helper()
	a := test.NewApp()
	t.Cleanup(a.Quit)

	ctrl := newFakeController()
	slot := handoff.New[*overlay.Annotated]()
	v := New(a, "feelcam", ctrl, slot)
	ctrl.view = v
	return v, ctrl, slot
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func TestToggleButtonLabel(t *testing.T) {
	v, ctrl, _ := newTestView(t)

	if v.button.Text != labelStart {
		t.Fatalf("Initial label = %q, want %q", v.button.Text, labelStart)
	}

	test.Tap(v.button)
	if v.button.Text != labelStop {
		t.Errorf("After first tap label = %q, want %q", v.button.Text, labelStop)
	}

	test.Tap(v.button)
	if v.button.Text != labelStart {
		t.Errorf("After second tap label = %q, want %q", v.button.Text, labelStart)
	}
	if ctrl.toggles != 2 {
		t.Errorf("Expected 2 toggles, got %d", ctrl.toggles)
	}
}

func TestToggleFailureRevertsLabel(t *testing.T) {
	v, ctrl, _ := newTestView(t)
	ctrl.failNext = errors.New("permission denied")

	test.Tap(v.button)
	if v.button.Text != labelStart {
		t.Errorf("Label = %q after failed toggle, want %q", v.button.Text, labelStart)
	}
	if v.recording {
		t.Error("View should not believe it is recording")
	}
}

func TestPollOnce(t *testing.T) {
	v, _, slot := newTestView(t)

	if v.pollOnce() {
		t.Error("Empty slot should be a no-op")
	}
	if v.img.Image != nil {
		t.Error("Nothing should have been painted")
	}

	frame := &overlay.Annotated{Image: image.NewRGBA(image.Rect(0, 0, 8, 8))}
	slot.Publish(frame)
	if !v.pollOnce() {
		t.Fatal("Expected a frame to be taken")
	}
	waitFor(t, "frame to be painted", func() bool { return v.img.Image == frame.Image })

	if _, ok := slot.TryTake(); ok {
		t.Error("Slot should be empty after the poll")
	}
}

func TestSessionErrorResetsButton(t *testing.T) {
	v, ctrl, _ := newTestView(t)
	v.Start()

	test.Tap(v.button)
	if v.button.Text != labelStop {
		t.Fatalf("Expected to be recording")
	}

	ctrl.errs <- errors.New("disk full")
	waitFor(t, "label revert", func() bool { return v.button.Text == labelStart })
}

func TestCloseOrder(t *testing.T) {
	v, ctrl, _ := newTestView(t)
	v.Start()

	v.Close()
	v.Close() // idempotent

	if ctrl.shutdowns != 1 {
		t.Fatalf("Expected one Shutdown, got %d", ctrl.shutdowns)
	}
	if ctrl.pollingSeen {
		t.Error("Poller must be stopped before the presenter shuts down")
	}
}

func TestDoneClosedByClose(t *testing.T) {
	v, _, _ := newTestView(t)
	select {
	case <-v.Done():
		t.Fatal("Done closed before Close")
	default:
	}

	v.Close()
	select {
	case <-v.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed after Close")
	}
}
