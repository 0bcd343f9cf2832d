package cmd

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	watchDir      string
	watchInterval time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the library directory and rescan on changes",
	Long:  `Monitor the library directory for new or changed audio files and rescan automatically, rate limited to one scan per interval.`,
	Run: func(cmd *cobra.Command, args []string) {
		application, cleanup, err := newApp()
		if err != nil {
			log.Fatalf("startup failed: %v", err)
		}
		defer cleanup()

		dir := watchDir
		if dir == "" {
			dir = application.cfg.LibraryDir
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// Bring the library up to date before watching.
		if _, err := application.scanner.Scan(ctx, dir, application.pipelineOptions()); err != nil {
			log.Fatalf("initial scan failed: %v", err)
		}

		err = application.scanner.Watch(ctx, dir, watchInterval, application.pipelineOptions())
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Fatalf("watch failed: %v", err)
		}
	},
}

func init() {
	watchCmd.Flags().StringVarP(&watchDir, "dir", "d", "", "library directory (defaults to LIBRARY_DIR)")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", time.Minute, "minimum time between rescans")
	rootCmd.AddCommand(watchCmd)
}
