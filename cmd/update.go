package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// updateCmd represents the update command
var (
	updateForce bool

	updateCmd = &cobra.Command{
		Use:   "update",
		Short: "Update the creator roster cache",
		Long: `Refresh the locally cached creator roster. The roster is only re-downloaded
when its remote size differs from the cached fingerprint, unless --force is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return updateRoster()
		},
	}
)

// updateRoster refreshes the roster cache and reports the result.
func updateRoster() error {
	fmt.Println("Updating creators...")
	if err := directory.Refresh(ctx, updateForce); err != nil {
		return err
	}
	fmt.Printf("Creators updated successfully (%d known).\n", directory.Len())
	return nil
}

func init() {
	rootCmd.AddCommand(updateCmd)
	updateCmd.Flags().BoolVar(&updateForce, "force", false, "Re-download the roster even when unchanged")
}
