package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andresmejia3/feelcam/internal/handoff"
	"github.com/andresmejia3/feelcam/internal/presenter"
)

type fixedStats presenter.Stats

func (f fixedStats) Stats() presenter.Stats { return presenter.Stats(f) }

func TestStatus(t *testing.T) {
	slot := handoff.New[int]()
	slot.Publish(1)
	slot.Publish(2) // overwrites 1

	src := fixedStats{Mode: "recording", Workers: 1, Rows: 42, SessionPath: "out/a.csv"}
	s := New("127.0.0.1:0", src, slot)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Unexpected content type %q", ct)
	}

	var got Report
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if got.Presenter.Mode != "recording" || got.Presenter.Rows != 42 || got.Presenter.SessionPath != "out/a.csv" {
		t.Errorf("Unexpected presenter stats: %+v", got.Presenter)
	}
	if got.Slot.Published != 2 || got.Slot.Dropped != 1 {
		t.Errorf("Unexpected slot stats: %+v", got.Slot)
	}
}

func TestHealthz(t *testing.T) {
	s := New("127.0.0.1:0", fixedStats{}, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "ok" {
		t.Errorf("Unexpected health response %d %q", rec.Code, rec.Body.String())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s := New("127.0.0.1:0", fixedStats{}, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}
