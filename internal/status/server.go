// Package status serves presenter counters over HTTP.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/andresmejia3/feelcam/internal/handoff"
	"github.com/andresmejia3/feelcam/internal/presenter"
	"github.com/gorilla/mux"
)

// Source provides the numbers reported by /status.
type Source interface {
	Stats() presenter.Stats
}

// SlotSource reports hand-off slot counters.
type SlotSource interface {
	Stats() handoff.Stats
}

// Report is the /status response body.
type Report struct {
	Presenter presenter.Stats `json:"presenter"`
	Slot      handoff.Stats   `json:"slot"`
	Uptime    string          `json:"uptime"`
}

// Server is a small monitoring endpoint.
type Server struct {
	src     Source
	slot    SlotSource
	started time.Time
	srv     *http.Server
}

// New builds the router. Call Serve to start listening.
func New(addr string, src Source, slot SlotSource) *Server {
	s := &Server{src: src, slot: slot, started: time.Now()}

	r := mux.NewRouter()
	r.HandleFunc("/status", s.handleStatus).Methods("GET")
	r.HandleFunc("/healthz", handleHealth).Methods("GET")

	s.srv = &http.Server{
		Handler:      r,
		Addr:         addr,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Serve listens until Shutdown. The listener is bound before returning so
// address errors surface immediately.
func (s *Server) Serve() (<-chan error, error) {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return nil, err
	}
	errc := make(chan error, 1)
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()
	return errc, nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	report := Report{
		Presenter: s.src.Stats(),
		Uptime:    time.Since(s.started).Truncate(time.Second).String(),
	}
	if s.slot != nil {
		report.Slot = s.slot.Stats()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok\n"))
}
