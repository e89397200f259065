package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/andresmejia3/feelcam/internal/recorder"
	"github.com/andresmejia3/feelcam/internal/store"
	"github.com/andresmejia3/feelcam/internal/types"
	"github.com/andresmejia3/feelcam/internal/utils"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recording sessions in the catalog",
	Run: func(cmd *cobra.Command, args []string) {
		if DB == nil {
			utils.Die("No session catalog configured", fmt.Errorf("set --db or POSTGRES_HOST"), nil)
		}
		sessions, err := DB.ListSessions(cmd.Context())
		if err != nil {
			utils.Die("Failed to list sessions", err, nil)
		}
		printSessions(os.Stdout, sessions)
	},
}

var showCmd = &cobra.Command{
	Use:   "show <csv_path>",
	Short: "Summarize a recorded session file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		rows, err := recorder.ReadRows(args[0])
		if err != nil {
			utils.Die("Failed to read session file", err, nil)
		}
		printSummary(os.Stdout, filepath.Base(args[0]), recorder.Summarize(rows))
	},
}

func init() {
	sessionsCmd.AddCommand(showCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func printSessions(out io.Writer, sessions []store.Session) {
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No sessions found in catalog.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tDURATION\tSAMPLES\tSTATUS\tFILE")
	fmt.Fprintln(w, "--\t-------\t--------\t-------\t------\t----")

	for _, s := range sessions {
		duration, status := "-", "recording"
		if s.EndedAt != nil {
			duration = fmtTime(s.EndedAt.Sub(s.StartedAt).Seconds())
			status = "ok"
		}
		if s.Error != "" {
			status = "failed: " + s.Error
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\n",
			s.ID, s.StartedAt.Local().Format("2006-01-02 15:04:05"), duration, s.Rows, status, s.Path)
	}
	w.Flush()
}

func printSummary(out io.Writer, name string, sum recorder.Summary) {
	fmt.Fprintf(out, "Session: %s\n", name)
	fmt.Fprintf(out, "Samples: %d\n", sum.Rows)
	if sum.Rows == 0 {
		return
	}

	start := time.Unix(0, int64(sum.Start*float64(time.Second)))
	fmt.Fprintf(out, "Started: %s\n", start.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Span:    %s\n", fmtTime(sum.End-sum.Start))
	fmt.Fprintf(out, "Dominant: %s\n\n", sum.Dominant)

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "EMOTION\tMEAN")
	fmt.Fprintln(w, "-------\t----")
	for i, label := range types.EmotionLabels {
		fmt.Fprintf(w, "%s\t%.4f\n", label, sum.Mean[i])
	}
	w.Flush()
}
