package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "0.3.0"

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print the version number",
	Long:        `Display the current version of the volaccel CLI.`,
	Annotations: map[string]string{skipConfig: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("volaccel version %s\n", version)
		fmt.Println("Volume acceleration strategy engine for Kraken margin trading")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
