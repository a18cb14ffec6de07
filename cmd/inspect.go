package cmd

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"decayfm/config"
	"decayfm/core/wavio"
	"decayfm/repository"
	"decayfm/storage"

	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <filename>",
	Short: "Show WAV properties and decay state for one track",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		filename := args[0]

		codec := wavio.NewCodec(cfg.SegmentDuration)
		info, err := codec.Probe(filepath.Join(cfg.AudioDir, filename))
		if err != nil {
			log.Fatalf("probe %s: %v", filename, err)
		}

		fmt.Printf("File:          %s\n", filename)
		fmt.Printf("Duration:      %.2fs\n", info.Duration())
		fmt.Printf("Sample rate:   %d Hz\n", info.SampleRate)
		fmt.Printf("Channels:      %d\n", info.Channels)
		fmt.Printf("Bit depth:     %d\n", info.BitsPerSample)
		fmt.Printf("Frames:        %d\n", info.NumFrames())
		fmt.Printf("Segments:      %d x %.2fs\n", codec.TotalSegments(info), cfg.SegmentDuration)

		blobs, err := storage.NewStore(cfg)
		if err != nil {
			log.Fatalf("blob store: %v", err)
		}
		repo, err := repository.NewBlobMetadataRepository(context.Background(), blobs)
		if err != nil {
			log.Fatalf("load decay records: %v", err)
		}

		meta, err := repo.GetTrack(filename)
		if err != nil {
			fmt.Println("\nNo decay record yet; run `decayfm scan` to register this track.")
			return
		}
		overall, err := repo.OverallDegradation(filename, cfg.DegradationRate)
		if err != nil {
			log.Fatalf("degradation: %v", err)
		}

		fmt.Printf("\nTotal streams: %d\n", meta.TotalStreams)
		fmt.Printf("Degradation:   %.1f%%\n", overall)
		fmt.Print("Segment plays:")
		for _, c := range meta.SegmentPlayCounts {
			fmt.Printf(" %d", c)
		}
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
