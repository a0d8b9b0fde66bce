package cmd

import (
	"fmt"

	"github.com/alexferrari88/kmn-dl/lib"
	"github.com/spf13/cobra"
)

// favoritesCmd represents the favorites command
var (
	favPosts bool

	favoritesCmd = &cobra.Command{
		Use:   "favorites",
		Short: "List favorite creators or download favorite posts",
		Long: `List the logged-in account's favorite creators, or download the attachments
of its favorite posts with --posts. Requires the --session cookie value.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if sessionID == "" {
				return fmt.Errorf("favorites requires --session")
			}
			if !favPosts {
				return listFavoriteCreators()
			}
			return downloadFavoritePosts()
		},
	}
)

func listFavoriteCreators() error {
	favs, err := client.FavoriteCreators(ctx)
	if err != nil {
		return err
	}
	if len(favs) == 0 {
		fmt.Println("No favorite creators.")
		return nil
	}
	rows := make([][]string, 0, len(favs))
	for _, c := range favs {
		record := lib.CreatorRecord{ID: c.ID, Name: c.Name, Service: c.Service}
		rows = append(rows, []string{c.Name, c.ID, string(c.Service), record.URL(client.BaseURL)})
	}
	printTable([]string{"Name", "ID", "Service", "URL"}, rows)
	return nil
}

func downloadFavoritePosts() error {
	if err := loadDirectory(); err != nil {
		return err
	}
	ledger, err := lib.OpenLedger(ledgerPath)
	if err != nil {
		return err
	}
	executor := lib.NewExecutor(client, ledger, lib.ExecutorOptions{
		Layout:    lib.Layout{Root: outputFolder},
		QueuePath: queuePath,
		Progress:  !verbose,
		Logger:    logger,
	})

	posts, err := client.FavoritePosts(ctx)
	if err != nil {
		return err
	}
	parser := lib.NewParser(lib.ParseOptions{}, directory, ledger)
	for _, raw := range posts {
		if post, ok := parser.Parse(raw); ok {
			executor.Enqueue(post)
		}
	}
	return runQueue(executor)
}

func init() {
	rootCmd.AddCommand(favoritesCmd)
	favoritesCmd.Flags().BoolVar(&favPosts, "posts", false, "Download favorite posts instead of listing creators")
}
