package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/geoffjay/plantd-mapper/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of mapperd",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println(version.VERSION)
	},
}
