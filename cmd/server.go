package cmd

import (
	"log"

	"decayfm/config"
	"decayfm/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the decaying audio server",
	Long:  `Scan the audio library, then serve streaming, degradation and stats endpoints until interrupted.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := server.Start(config.Load()); err != nil {
			log.Fatalf("server failed: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
