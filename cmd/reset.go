package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/feelcam/internal/recorder"
	"github.com/andresmejia3/feelcam/internal/utils"
	"github.com/spf13/cobra"
)

var (
	resetCatalog bool
	resetFiles   bool
	resetDir     string
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset stored state (session catalog, session files)",
	Long:  "Clears recorded data. By default, it resets everything. Use flags to clear specific components.",
	Run: func(cmd *cobra.Command, args []string) {
		// If no flags are set, default to clearing EVERYTHING
		if !resetCatalog && !resetFiles {
			resetCatalog = true
			resetFiles = true
		}

		reader := bufio.NewReader(os.Stdin)

		if resetCatalog {
			if DB == nil {
				fmt.Fprintf(os.Stderr, "⚠️  No session catalog configured, skipping database reset.\n")
			} else if confirm(reader, "⚠️  Are you sure you want to DROP the session catalog?") {
				fmt.Println("🗑️  Clearing Session Catalog...")
				if err := DB.Reset(cmd.Context()); err != nil {
					utils.Die("Failed to reset database", err, nil)
				}
			}
		}

		if resetFiles {
			prompt := fmt.Sprintf("⚠️  Are you sure you want to delete all session files in %s?", resetDir)
			if confirm(reader, prompt) {
				fmt.Println("🗑️  Clearing Session Files...")
				n := removeSessionFiles(os.Stderr, resetDir)
				fmt.Printf("   Removed %d files.\n", n)
			}
		}

		fmt.Println("✨ Reset Complete.")
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetCatalog, "catalog", false, "Clear the PostgreSQL session catalog")
	resetCmd.Flags().BoolVar(&resetFiles, "files", false, "Delete session CSV files")
	resetCmd.Flags().StringVarP(&resetDir, "output-dir", "o", ".", "Directory holding session CSV files")
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

// removeSessionFiles deletes files in dir whose names parse as session
// files. Anything else with a .csv extension is left alone.
func removeSessionFiles(warn io.Writer, dir string) int {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+recorder.Ext))
	if err != nil {
		fmt.Fprintf(warn, "⚠️  Failed to list %s: %v\n", dir, err)
		return 0
	}

	removed := 0
	for _, path := range matches {
		if !recorder.IsSessionFile(filepath.Base(path)) {
			continue
		}
		if err := os.Remove(path); err != nil {
			fmt.Fprintf(warn, "⚠️  Failed to remove %s: %v\n", path, err)
			continue
		}
		removed++
	}
	return removed
}
