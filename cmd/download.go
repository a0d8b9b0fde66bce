package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/alexferrari88/kmn-dl/lib"
	"github.com/spf13/cobra"
)

// downloadCmd represents the download command
var (
	page          int
	word          string
	blockWord     string
	tag           string
	filterImage   bool
	filterArchive bool
	filterMovie   bool
	filterSound   bool
	filterPSD     bool
	filterPDF     bool
	flat          bool
	extract       bool
	contentFormat string
	typesFile     string
	resume        bool
	maxAttempts   int
	retryDelay    time.Duration

	downloadCmd = &cobra.Command{
		Use:   "download <url>",
		Short: "Download the attachments of a creator or a single post",
		Long: `Resolve a creator or post url from any supported platform and download its
file attachments. Posts already recorded in the ledger are skipped, so the
command is safe to re-run.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runDownload,
	}
)

func runDownload(cmd *cobra.Command, args []string) error {
	if word != "" && len([]rune(word)) < 2 {
		return fmt.Errorf("word must be at least 2 characters")
	}
	if cmd.Flags().Changed("page") && page < 1 {
		return fmt.Errorf("page must be at least 1")
	}
	if len(args) == 0 && !resume {
		return fmt.Errorf("an url is required unless --resume is given")
	}

	ledger, err := lib.OpenLedger(ledgerPath)
	if err != nil {
		return err
	}
	executor := lib.NewExecutor(client, ledger, lib.ExecutorOptions{
		Layout:          lib.Layout{Root: outputFolder, Flat: flat},
		Retry:           lib.RetryPolicy{MaxAttempts: maxAttempts, Backoff: retryDelay},
		ExtractArchives: extract,
		ContentFormat:   contentFormat,
		QueuePath:       queuePath,
		Progress:        !verbose,
		Logger:          logger,
	})

	if resume {
		n, err := executor.LoadQueue()
		if err != nil {
			return err
		}
		if verbose {
			fmt.Printf("Resumed %d queued posts\n", n)
		}
	}

	if len(args) > 0 {
		res, err := resolver.Resolve(ctx, args[0])
		switch {
		case errors.Is(err, lib.ErrUnrecognizedURL):
			fmt.Println("The url does not belong to any supported platform.")
			return nil
		case errors.Is(err, lib.ErrNotFound):
			fmt.Println("Not found.")
			return nil
		case err != nil:
			return err
		}
		if verbose {
			fmt.Printf("Resolved to %s\n", res)
		}

		if res.Platform == lib.PlatformDiscord {
			return listChannels(res.CreatorID)
		}

		if err := loadDirectory(); err != nil {
			return err
		}
		if err := enqueuePosts(executor, ledger, *res); err != nil {
			return err
		}
	}

	return runQueue(executor)
}

// enqueuePosts paginates the resource and fills the executor's queue with
// the posts that survive parsing and filtering.
func enqueuePosts(executor *lib.Executor, ledger *lib.Ledger, res lib.CanonicalResource) error {
	table := lib.KindTable(nil)
	if typesFile != "" {
		var err error
		table, err = lib.LoadKindTable(typesFile)
		if err != nil {
			return err
		}
	}
	parser := lib.NewParser(lib.ParseOptions{
		BlockWord: blockWord,
		Kinds:     makeKindFilter(),
		Table:     table,
	}, directory, ledger)

	if c, ok := directory.Lookup(res.Platform, res.CreatorID); ok {
		fmt.Printf("%s@%s[%s]\n", c.Name, c.Service, c.ID)
	}

	paginator := lib.NewPaginator(client)
	posts, err := paginator.Posts(ctx, res, lib.PageOptions{Page: page, Word: word, Tag: tag})
	if errors.Is(err, lib.ErrNotFound) {
		fmt.Println("Not found.")
		return nil
	}
	if err != nil {
		return err
	}
	for _, raw := range posts {
		if post, ok := parser.Parse(raw); ok {
			executor.Enqueue(post)
		}
	}
	return nil
}

// runQueue drains the executor's queue with interrupt handling and prints
// the run summary.
func runQueue(executor *lib.Executor) error {
	queue := executor.Queue()
	if len(queue) == 0 {
		fmt.Println("There is nothing in the queue.")
		return nil
	}

	rows := make([][]string, 0, len(queue))
	for _, post := range queue {
		rows = append(rows, []string{post.Title, post.ID, strconv.Itoa(len(post.Attachments))})
	}
	printTable([]string{"Title", "ID", "Attachments"}, rows)
	fmt.Println()
	fmt.Println("Download started.")

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	summary, err := executor.Run(runCtx)
	switch {
	case errors.Is(err, lib.ErrDiskFull):
		fmt.Println("No space left on device. The remaining queue was saved;")
		fmt.Println("run again with --resume once space is available.")
		fmt.Println("Press Enter to exit.")
		fmt.Scanln()
		os.Exit(1)
	case errors.Is(err, context.Canceled):
		fmt.Println("Download interrupted.")
	case err != nil:
		return err
	}

	printTable(
		[]string{"Files", "Size"},
		[][]string{{strconv.Itoa(summary.Files), lib.HumanSize(summary.Bytes)}},
	)
	if summary.Failed > 0 {
		fmt.Printf("%d attachments failed, see %s\n", summary.Failed, logPath)
	}
	if err == nil {
		fmt.Println("Download completed.")
	}
	return nil
}

// listChannels prints the indexed channels of a Discord server. Message
// archiving is not supported.
func listChannels(serverID string) error {
	channels, err := client.ListChannels(ctx, serverID)
	if err != nil {
		return err
	}
	if len(channels) == 0 {
		fmt.Println("Not found.")
		return nil
	}
	rows := make([][]string, 0, len(channels))
	for _, ch := range channels {
		rows = append(rows, []string{"#" + ch.Name, ch.ID})
	}
	printTable([]string{"Channel", "ID"}, rows)
	return nil
}

// makeKindFilter translates the per-kind flags into a KindFilter. No flag
// set means everything is downloaded.
func makeKindFilter() lib.KindFilter {
	filter := lib.KindFilter{}
	if filterImage {
		filter[lib.KindImage] = true
	}
	if filterArchive {
		filter[lib.KindArchive] = true
	}
	if filterMovie {
		filter[lib.KindVideo] = true
	}
	if filterSound {
		filter[lib.KindAudio] = true
	}
	if filterPSD || filterPDF {
		filter[lib.KindDocument] = true
	}
	if len(filter) == 0 {
		return nil
	}
	return filter
}

func init() {
	rootCmd.AddCommand(downloadCmd)
	downloadCmd.Flags().IntVarP(&page, "page", "p", 0, "Download only the given page of posts")
	downloadCmd.Flags().StringVarP(&word, "word", "w", "", "Download only posts whose title contains the word (min 2 characters)")
	downloadCmd.Flags().StringVar(&blockWord, "block-word", "", "Skip posts whose title contains the word")
	downloadCmd.Flags().StringVar(&tag, "tag", "", "Download only posts carrying the tag")
	downloadCmd.Flags().BoolVarP(&filterImage, "image", "i", false, "Download image files only")
	downloadCmd.Flags().BoolVarP(&filterArchive, "archive", "a", false, "Download archive files only")
	downloadCmd.Flags().BoolVarP(&filterMovie, "movie", "m", false, "Download video files only")
	downloadCmd.Flags().BoolVarP(&filterSound, "sound", "s", false, "Download audio files only")
	downloadCmd.Flags().BoolVar(&filterPSD, "psd", false, "Download psd files only")
	downloadCmd.Flags().BoolVar(&filterPDF, "pdf", false, "Download pdf files only")
	downloadCmd.Flags().BoolVar(&flat, "flat", false, "Do not create a folder per post")
	downloadCmd.Flags().BoolVarP(&extract, "extract", "e", false, "Expand downloaded archives into a sibling folder")
	downloadCmd.Flags().StringVar(&contentFormat, "content", "", "Also save the post body (options: \"md\", \"txt\", \"html\")")
	downloadCmd.Flags().StringVar(&typesFile, "types", "", "Specify a YAML file overriding the extension-to-kind table")
	downloadCmd.Flags().BoolVar(&resume, "resume", false, "Resume a queue persisted by an aborted run")
	downloadCmd.Flags().IntVar(&maxAttempts, "retries", lib.DefaultRetryPolicy.MaxAttempts, "Specify the attempt bound per attachment")
	downloadCmd.Flags().DurationVar(&retryDelay, "retry-delay", lib.DefaultRetryPolicy.Backoff, "Specify the delay between attempts")
}
