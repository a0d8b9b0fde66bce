package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of kmn-dl",
	Long:  `Display the current version of the app.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("kmn-dl v0.4.0")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
