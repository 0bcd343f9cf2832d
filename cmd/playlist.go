package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"ChromaFM/core/playlist"
)

var (
	playlistSeeds []int64
	playlistPaths []string
	playlistK     int
	playlistN     int
	playlistMode  string
)

var playlistCmd = &cobra.Command{
	Use:   "playlist [fanout|walk|directional|stitch|union]",
	Short: "Generate a playlist from seed tracks",
	Long: `Generate a playlist using one of the generation strategies:

  fanout       seed track followed by its nearest neighbors
  walk         interpolation walk between two tracks
  directional  stepwise walk between two tracks
  stitch       directional walks chained through several waypoints
  union        merged fanouts of several seed tracks

Seeds are given as track IDs (--seed) or library paths (--path).`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		application, cleanup, err := newApp()
		if err != nil {
			log.Fatalf("startup failed: %v", err)
		}
		defer cleanup()

		ctx := context.Background()
		seeds := playlistSeeds
		if len(seeds) == 0 {
			if len(playlistPaths) == 0 {
				log.Fatal("at least one --seed or --path is required")
			}
			seeds, err = application.generator.ResolvePaths(ctx, playlistPaths)
			if err != nil {
				log.Fatalf("failed to resolve seed paths: %v", err)
			}
		}

		var ids []int64
		switch args[0] {
		case "fanout":
			requireSeeds(seeds, 1)
			ids, err = application.generator.Fanout(ctx, seeds[0], playlistK)
		case "walk":
			requireSeeds(seeds, 2)
			mode := playlist.WalkLinear
			if playlistMode == "gradient" {
				mode = playlist.WalkGradient
			}
			ids, err = application.generator.InterpolationWalk(ctx, seeds[0], seeds[1], playlistN, mode)
		case "directional":
			requireSeeds(seeds, 2)
			ids, err = application.generator.DirectionalWalk(ctx, seeds[0], seeds[1], playlistN)
		case "stitch":
			requireSeeds(seeds, 2)
			ids, err = application.generator.Stitch(ctx, seeds, playlistN)
		case "union":
			requireSeeds(seeds, 1)
			ids, err = application.generator.Union(ctx, seeds, playlistK)
		default:
			log.Fatalf("unknown strategy: %s", args[0])
		}
		if err != nil {
			log.Fatalf("playlist generation failed: %v", err)
		}

		for i, id := range ids {
			track, err := application.tracks.GetTrackByID(id)
			if err != nil || track == nil {
				fmt.Printf("%2d. track %d\n", i+1, id)
				continue
			}
			fmt.Printf("%2d. %s - %s (%s)\n", i+1, track.Artist, track.Title, track.Album)
		}
	},
}

func requireSeeds(seeds []int64, min int) {
	if len(seeds) < min {
		log.Fatalf("this strategy needs at least %d seed track(s), got %d", min, len(seeds))
	}
}

func init() {
	playlistCmd.Flags().Int64SliceVar(&playlistSeeds, "seed", nil, "seed track IDs")
	playlistCmd.Flags().StringSliceVar(&playlistPaths, "path", nil, "seed library paths")
	playlistCmd.Flags().IntVar(&playlistK, "k", 10, "neighbors per seed (fanout, union)")
	playlistCmd.Flags().IntVar(&playlistN, "n", 8, "intermediate tracks per segment (walk, directional, stitch)")
	playlistCmd.Flags().StringVar(&playlistMode, "mode", "linear", "walk mode: linear or gradient")
	rootCmd.AddCommand(playlistCmd)
}
