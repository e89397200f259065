package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"

	"github.com/andresmejia3/feelcam/internal/handoff"
	"github.com/andresmejia3/feelcam/internal/overlay"
	"github.com/andresmejia3/feelcam/internal/presenter"
	"github.com/andresmejia3/feelcam/internal/status"
	"github.com/andresmejia3/feelcam/internal/utils"
	"github.com/andresmejia3/feelcam/internal/view"
	"github.com/spf13/cobra"
)

var liveOpts Options

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Open the preview window with a record button",
	Run: func(cmd *cobra.Command, args []string) {
		runLive(cmd.Context(), &liveOpts)
	},
}

func init() {
	addCaptureFlags(liveCmd, &liveOpts)
	rootCmd.AddCommand(liveCmd)
}

func runLive(ctx context.Context, opts *Options) {
	if err := validateOptions(opts); err != nil {
		utils.Die("Invalid options", err, nil)
	}
	log := newLogger()

	pipe, err := openPipeline(opts, log)
	if err != nil {
		dieOnPipelineError(err)
	}
	defer pipe.Close()

	slot := handoff.New[*overlay.Annotated]()
	p := presenter.New(pipe.cam, pipe.inf, slot, presenterConfig(opts, log))
	defer p.Shutdown()

	stopStatus := startStatus(opts.StatusAddr, p, slot, log)
	defer stopStatus()

	if err := p.Start(); err != nil {
		utils.Die("Failed to start preview", err, nil)
	}

	a := app.NewWithID("io.github.andresmejia3.feelcam")
	v := view.New(a, "feelcam", p, slot)

	// Ctrl+C goes through the same teardown as closing the window.
	go func() {
		select {
		case <-ctx.Done():
			fyne.Do(v.Close)
		case <-v.Done():
		}
	}()

	fmt.Fprintf(os.Stderr, "🎬 Preview running. Close the window to exit.\n")
	v.Run()

	s := p.Stats()
	fmt.Fprintf(os.Stderr, "👋 Done. %d sessions, %d rows recorded.\n", s.Sessions, s.Rows)
}

// startStatus serves the monitoring endpoint if addr is set. The returned
// func stops it.
func startStatus(addr string, p *presenter.Presenter, slot *handoff.Slot[*overlay.Annotated], log *slog.Logger) func() {
	if addr == "" {
		return func() {}
	}

	srv := status.New(addr, p, slot)
	errc, err := srv.Serve()
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Status endpoint disabled: %v\n", err)
		return func() {}
	}
	go func() {
		for err := range errc {
			log.Error("status server stopped", "error", err)
		}
	}()
	fmt.Fprintf(os.Stderr, "📡 Status at http://%s/status\n", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}
