// Package cmd provides the mapperd command-line interface.
package cmd

import (
	"log"

	"github.com/spf13/cobra"
)

var (
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "mapperd",
		Short: "Control-plane mapper for a plantd work-dispatch fabric",
		Long: `mapperd maintains cluster membership and liveness, resolves target
agents for typed requests, correlates in-flight replies, and parks
otherwise-undeliverable requests on a durable offline queue.`,
	}
)

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config", "",
		"config file (default is $HOME/.config/plantd/mapperd.yaml)",
	)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
