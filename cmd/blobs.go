package cmd

import (
	"context"
	"fmt"
	"log"

	"decayfm/config"
	"decayfm/storage"

	"github.com/spf13/cobra"
)

var blobsPrefix string

var blobsCmd = &cobra.Command{
	Use:   "blobs",
	Short: "List stored metadata blobs",
	Long:  `List the keys in the metadata blob store, decay records and waveform caches alike, on whichever backend is configured.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()

		blobs, err := storage.NewStore(cfg)
		if err != nil {
			log.Fatalf("blob store: %v", err)
		}

		keys, err := blobs.List(context.Background(), blobsPrefix)
		if err != nil {
			log.Fatalf("list blobs: %v", err)
		}

		if len(keys) == 0 {
			fmt.Println("No blobs found.")
			return
		}
		for _, k := range keys {
			fmt.Println(k)
		}
		fmt.Printf("\n%d blob(s)\n", len(keys))
	},
}

func init() {
	rootCmd.AddCommand(blobsCmd)
	blobsCmd.Flags().StringVarP(&blobsPrefix, "prefix", "p", "", "filter keys by prefix")

	blobsCmd.Example = `  # All blobs
  decayfm blobs

  # Decay records only
  decayfm blobs -p tracks/

  # Waveform caches only
  decayfm blobs -p waveforms/`
}
