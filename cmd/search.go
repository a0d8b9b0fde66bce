package cmd

import (
	"fmt"

	"github.com/alexferrari88/kmn-dl/lib"
	"github.com/spf13/cobra"
)

// searchCmd represents the search command
var (
	searchService string
	searchUpdate  bool

	searchCmd = &cobra.Command{
		Use:   "search <name>",
		Short: "Search the creator roster by name",
		Long:  `Search the locally cached creator roster for names containing the given word.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if searchService != "" && !lib.ValidPlatform(searchService) {
				return fmt.Errorf("unknown service: %s", searchService)
			}
			if searchUpdate {
				if err := updateRoster(); err != nil {
					return err
				}
			} else if err := loadDirectory(); err != nil {
				return err
			}

			matches := directory.Search(args[0], lib.Platform(searchService))
			if len(matches) == 0 {
				fmt.Printf("Not found %q in creators list.\n", args[0])
				fmt.Println("Try again after running: kmn-dl update")
				return nil
			}

			rows := make([][]string, 0, len(matches))
			for _, c := range matches {
				rows = append(rows, []string{c.Name, c.ID, string(c.Service), c.URL(client.BaseURL)})
			}
			printTable([]string{"Name", "ID", "Service", "URL"}, rows)
			return nil
		},
	}
)

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringVar(&searchService, "service", "", "Restrict the search to one service")
	searchCmd.Flags().BoolVar(&searchUpdate, "update", false, "Update the creator roster before searching")
}
