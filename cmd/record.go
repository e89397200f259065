package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/andresmejia3/feelcam/internal/handoff"
	"github.com/andresmejia3/feelcam/internal/overlay"
	"github.com/andresmejia3/feelcam/internal/presenter"
	"github.com/andresmejia3/feelcam/internal/recorder"
	"github.com/andresmejia3/feelcam/internal/types"
	"github.com/andresmejia3/feelcam/internal/utils"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

const progressTick = 100 * time.Millisecond

var (
	recordOpts     Options
	recordDuration string
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record emotion scores headlessly for a fixed duration",
	Run: func(cmd *cobra.Command, args []string) {
		runRecord(cmd.Context(), &recordOpts, recordDuration)
	},
}

func init() {
	addCaptureFlags(recordCmd, &recordOpts)
	recordCmd.Flags().StringVarP(&recordDuration, "duration", "d", "30s", "How long to record")
	rootCmd.AddCommand(recordCmd)
}

func runRecord(ctx context.Context, opts *Options, durationFlag string) {
	if err := validateOptions(opts); err != nil {
		utils.Die("Invalid options", err, nil)
	}
	duration, err := time.ParseDuration(durationFlag)
	if err != nil || duration <= 0 {
		utils.Die("Invalid duration format (use '30s', '2m')", err, nil)
	}
	log := newLogger()

	pipe, err := openPipeline(opts, log)
	if err != nil {
		dieOnPipelineError(err)
	}
	defer pipe.Close()

	// Nobody displays frames here; the slot only feeds the status endpoint.
	slot := handoff.New[*overlay.Annotated]()
	p := presenter.New(pipe.cam, pipe.inf, slot, presenterConfig(opts, log))
	defer p.Shutdown()

	stopStatus := startStatus(opts.StatusAddr, p, slot, log)
	defer stopStatus()

	if err := p.Start(); err != nil {
		utils.Die("Failed to start preview", err, nil)
	}
	if _, err := p.Toggle(); err != nil {
		p.Shutdown()
		utils.Die("Failed to start recording", err, nil)
	}
	path := p.Stats().SessionPath
	fmt.Fprintf(os.Stderr, "🔴 Recording to %s\n", path)

	sessionErr := waitRecording(ctx, p, duration)

	// A failed session has already dropped back to preview.
	if sessionErr == nil && p.Mode() == types.Recording {
		p.Toggle()
	}
	p.Shutdown()
	stopStatus()
	pipe.Close()

	printSessionSummary(path)
	if sessionErr != nil {
		utils.Die("Recording aborted", sessionErr, nil)
	}
}

// waitRecording shows progress until the duration passes, the user
// interrupts, or the session fails.
func waitRecording(ctx context.Context, p *presenter.Presenter, duration time.Duration) error {
	steps := int(duration / progressTick)
	bar := progressbar.NewOptions(steps,
		progressbar.OptionSetDescription("🎥 Recording"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionClearOnFinish(),
	)
	defer bar.Finish()

	ticker := time.NewTicker(progressTick)
	defer ticker.Stop()

	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			fmt.Fprintf(os.Stderr, "\n⏹️  Interrupted, stopping early.\n")
			return nil
		case err := <-p.Errors():
			return err
		case <-ticker.C:
			bar.Describe(fmt.Sprintf("🎥 Recording (%d samples)", p.Stats().Rows))
			bar.Add(1)
		}
	}
	return nil
}

func printSessionSummary(path string) {
	rows, err := recorder.ReadRows(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Could not read back %s: %v\n", path, err)
		return
	}
	sum := recorder.Summarize(rows)
	fmt.Fprintf(os.Stderr, "✅ Saved %d samples to %s\n", sum.Rows, path)
	if sum.Rows > 0 {
		fmt.Fprintf(os.Stderr, "   Dominant emotion: %s over %s\n", sum.Dominant, fmtTime(sum.End-sum.Start))
	}
}
