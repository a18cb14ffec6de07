package cmd

import (
	"context"
	"fmt"
	"log"

	"decayfm/config"
	"decayfm/core/wavio"
	"decayfm/library"
	"decayfm/logger"
	"decayfm/repository"
	"decayfm/storage"
	"decayfm/waveform"

	"github.com/spf13/cobra"
)

var scanRefresh bool

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Register new WAV files without starting the server",
	Long:  `Walk the audio directory once, create decay records for unknown tracks and render their waveform overviews.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		logger.InitLogger(logger.Config{
			Level:      logger.LogLevel(cfg.LogLevel),
			OutputPath: cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			MaxAge:     cfg.LogMaxAgeDays,
			Compress:   cfg.LogCompress,
		})

		blobs, err := storage.NewStore(cfg)
		if err != nil {
			log.Fatalf("blob store: %v", err)
		}
		ctx := context.Background()
		repo, err := repository.NewBlobMetadataRepository(ctx, blobs)
		if err != nil {
			log.Fatalf("load decay records: %v", err)
		}

		scanner := library.NewScanner(cfg.AudioDir, wavio.NewCodec(cfg.SegmentDuration), repo, waveform.NewGenerator(blobs))
		res, err := scanner.Scan(ctx)
		if err != nil {
			log.Fatalf("scan failed: %v", err)
		}

		fmt.Printf("Registered %d new track(s), %d already known, %d skipped\n",
			len(res.Registered), res.Known, res.Skipped)
		for _, name := range res.Registered {
			fmt.Printf("  + %s\n", name)
		}

		if scanRefresh {
			fmt.Println("Refreshing waveform overviews from the current audio...")
			if err := scanner.RefreshWaveforms(ctx); err != nil {
				log.Fatalf("refresh failed: %v", err)
			}
			fmt.Println("Waveforms refreshed.")
		}
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().BoolVarP(&scanRefresh, "refresh", "r", false, "re-render waveform overviews from the decayed audio")
}
