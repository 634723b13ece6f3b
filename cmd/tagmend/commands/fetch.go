package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/tagmend/internal/logger"
	"github.com/jmylchreest/tagmend/pkg/contentcache"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch URL...",
	Short: "Download pages into the content cache",
	Long: `Download pages through the throttled content cache and print them.

Pages already cached are read from disk without a request.

Examples:
  # Warm the cache
  tagmend fetch https://example.com/a https://example.com/b > /dev/null

  # Show where a page is cached
  tagmend fetch --path https://example.com/a`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	flags := fetchCmd.Flags()
	flags.Bool("path", false, "print the cache file path instead of the content")
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		return err
	}

	cache := contentcache.New(cfg.Cache, nil)
	defer func() { _ = cache.Close() }()

	pathOnly, _ := cmd.Flags().GetBool("path")
	out := cmd.OutOrStdout()

	for _, u := range args {
		if pathOnly {
			fmt.Fprintln(out, cache.CachePath(u))
			continue
		}
		content, err := cache.LoadContent(ctx, u)
		if err != nil {
			logger.Error("fetch failed", "url", u, "error", err)
			return err
		}
		logInfo("fetched %s (%d bytes)", u, len(content))
		fmt.Fprintln(out, content)
	}
	return nil
}
