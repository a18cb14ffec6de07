package cmd

import (
	"fmt"
	"log"
	"os"

	"decayfm/config"
	"decayfm/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "decayfm",
	Short: "decayfm serves WAV tracks that wear out a little every time they are played.",
	Run: func(cmd *cobra.Command, args []string) {
		// Bare invocation runs the server, same as `decayfm server`.
		if err := server.Start(config.Load()); err != nil {
			log.Fatalf("server failed: %v", err)
		}
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
