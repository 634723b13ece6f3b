// Package commands implements the CLI commands for tagmend.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/tagmend/internal/config"
	"github.com/jmylchreest/tagmend/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "tagmend",
	Short: "Repair broken HTML fragments into strict, parseable XML",
	Long: `Tagmend rewrites malformed HTML scraped from the web until a strict
XML parser accepts it.

Scripts and styles are dropped, void elements closed, stray ampersands
escaped, bogus tags and attributes removed and invalid byte sequences
stripped. Documents that still fail are saved for inspection.

Examples:
  # Repair a file
  tagmend repair page.html

  # Download, cache and repair the article body of a page
  tagmend repair -u "https://www.golem.de/1002/72853.html" \
      --pattern '(?s)^.*?<article[^>]*>(.*?)</article>.*$'

  # Report per-pass statistics as YAML
  tagmend repair page.html --report yaml

  # Serve the repair pipeline over HTTP
  tagmend serve --addr :8080`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Init(logger.Options{
			Debug: viper.GetBool("debug"),
			Quiet: viper.GetBool("quiet"),
			JSON:  viper.GetBool("log_json"),
		})
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default $HOME/.tagmend.yaml)")
	flags.Bool("debug", false, "enable debug logging (per-pass fix counts)")
	flags.BoolP("quiet", "q", false, "only log errors")
	flags.Bool("log-json", false, "log as JSON")

	_ = viper.BindPFlag("config", flags.Lookup("config"))
	_ = viper.BindPFlag("debug", flags.Lookup("debug"))
	_ = viper.BindPFlag("quiet", flags.Lookup("quiet"))
	_ = viper.BindPFlag("log_json", flags.Lookup("log-json"))
}

func initConfig() {
	v := viper.GetViper()
	config.SetDefaults(v)
	config.BindEnv(v)

	if cfgFile := v.GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigName(".tagmend")
		v.SetConfigType("yaml")
	}

	// Read config file (ignore error if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && v.GetString("config") != "" {
			logError("reading config: %v", err)
		}
	}
}

// loadConfig resolves the merged flags, environment and config file.
func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// logError prints an error message to stderr.
func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

// logInfo prints an info message to stderr (unless quiet mode).
func logInfo(format string, args ...any) {
	if !viper.GetBool("quiet") {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}
