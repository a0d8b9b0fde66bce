package cmd

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/alexferrari88/kmn-dl/lib"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// rootCmd represents the base command when called without any subcommands

var (
	proxyURL      string
	verbose       bool
	ratePerSecond int
	sessionID     string
	baseURL       string
	outputFolder  string
	cachePath     string
	ledgerPath    string
	queuePath     string
	logPath       string

	ctx       = context.Background()
	logger    *zap.Logger
	fetcher   *lib.Fetcher
	client    *lib.Client
	resolver  *lib.Resolver
	directory *lib.Directory

	rootCmd = &cobra.Command{
		Use:   "kmn-dl",
		Short: "Creator archive downloader",
		Long: `kmn-dl is a command line tool for resolving creator and post links from
supported platforms and downloading their file attachments for archival purposes.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup()
		},
	}
)

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if logger != nil {
		logger.Sync()
	}
	if err != nil {
		os.Exit(1)
	}
}

// setup wires the shared collaborators from the parsed persistent flags.
func setup() error {
	if ratePerSecond <= 0 {
		return fmt.Errorf("rate must be greater than 0")
	}
	var parsedProxyURL *url.URL
	if proxyURL != "" {
		var err error
		parsedProxyURL, err = parseURL(proxyURL)
		if err != nil {
			return fmt.Errorf("invalid proxy url: %w", err)
		}
	}
	var cookie *http.Cookie
	if sessionID != "" {
		cookie = &http.Cookie{Name: "session", Value: sessionID}
	}

	logger = makeLogger(logPath)
	fetcher = lib.NewFetcher(
		lib.WithRatePerSecond(ratePerSecond),
		lib.WithProxyURL(parsedProxyURL),
		lib.WithCookie(cookie),
	)
	client = lib.NewClient(baseURL, fetcher)
	resolver = lib.NewResolver(fetcher, logger)
	directory = lib.NewDirectory(client, cachePath)
	return nil
}

// makeLogger builds the debug file logger. Logging failures never block the
// download run, so a broken log path degrades to a no-op logger.
func makeLogger(path string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}
	cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// loadDirectory makes the creator roster available, downloading it on first
// use when no cache exists yet.
func loadDirectory() error {
	err := directory.Load()
	if os.IsNotExist(err) {
		if verbose {
			fmt.Println("No roster cache found, downloading creators...")
		}
		return directory.Refresh(ctx, false)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&proxyURL, "proxy", "x", "", "Specify the proxy url")
	rootCmd.PersistentFlags().StringVar(&sessionID, "session", "", "The session cookie value (required for the favorites command)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().IntVarP(&ratePerSecond, "rate", "r", lib.DefaultRatePerSecond, "Specify the rate of requests per second")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", lib.DefaultBaseURL, "Specify the aggregator origin")
	rootCmd.PersistentFlags().StringVarP(&outputFolder, "path", "o", "./downloads", "Specify the download directory")
	rootCmd.PersistentFlags().StringVar(&cachePath, "cache", "creators.json", "Specify the roster cache file")
	rootCmd.PersistentFlags().StringVar(&ledgerPath, "ledger", "ledger.txt", "Specify the downloaded-posts ledger file")
	rootCmd.PersistentFlags().StringVar(&queuePath, "queue", "queue.json", "Specify the persisted queue file")
	rootCmd.PersistentFlags().StringVar(&logPath, "log", "kmn-dl.log", "Specify the debug log file")
}

func parseURL(toTest string) (*url.URL, error) {
	u, err := url.Parse(toTest)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid url: %s", toTest)
	}
	return u, nil
}
