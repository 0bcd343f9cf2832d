package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var scanDir string

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the music library and extract features",
	Long:  `Walk the library directory, register every audio file and run feature extraction over tracks that are missing features.`,
	Run: func(cmd *cobra.Command, args []string) {
		application, cleanup, err := newApp()
		if err != nil {
			log.Fatalf("startup failed: %v", err)
		}
		defer cleanup()

		dir := scanDir
		if dir == "" {
			dir = application.cfg.LibraryDir
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		report, err := application.scanner.Scan(ctx, dir, application.pipelineOptions())
		if err != nil {
			log.Fatalf("scan failed: %v", err)
		}

		fmt.Printf("scan completed: %d tracks with features, %d errors\n",
			len(report.SuccessfulIDs), len(report.Errors))
		for _, msg := range report.Errors {
			fmt.Printf("  %s\n", msg)
		}
	},
}

func init() {
	scanCmd.Flags().StringVarP(&scanDir, "dir", "d", "", "library directory (defaults to LIBRARY_DIR)")
	rootCmd.AddCommand(scanCmd)
}
