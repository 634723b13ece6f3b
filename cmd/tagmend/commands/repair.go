package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/tagmend/internal/config"
	"github.com/jmylchreest/tagmend/internal/logger"
	"github.com/jmylchreest/tagmend/internal/output"
	"github.com/jmylchreest/tagmend/pkg/calccache"
	"github.com/jmylchreest/tagmend/pkg/contentcache"
	"github.com/jmylchreest/tagmend/pkg/repair"
)

// stdinSource names standard input on the command line.
const stdinSource = "-"

var repairCmd = &cobra.Command{
	Use:   "repair [file...]",
	Short: "Repair markup read from files, stdin or URLs",
	Long: `Repair HTML fragments until a strict XML parser accepts them.

Inputs are files, "-" for standard input, or URLs given with --url.
URLs are downloaded through the content cache. With no inputs at all,
standard input is read.

The repaired markup is written to the output unless --report is set, in
which case one report per input is written instead.

Examples:
  # Repair standard input
  cat page.html | tagmend repair

  # Only strip scripts and close void elements
  tagmend repair page.html --features remove-scripts,repair-self-closing

  # JSON report including the parsed document
  tagmend repair a.html b.html --report json --xml`,
	RunE: runRepair,
}

func init() {
	rootCmd.AddCommand(repairCmd)

	flags := repairCmd.Flags()

	// Inputs
	flags.StringSliceP("url", "u", nil, "URL(s) to download and repair (can be repeated)")
	flags.String("pattern", "", "regular expression; every match is replaced by its first capture group")
	flags.StringSlice("features", nil, "features to enable (default: all)")

	// Output settings
	flags.StringP("output", "o", "", "output file (default: stdout)")
	flags.String("report", "", "write a report per input instead of markup: json, jsonl, yaml")
	flags.Bool("xml", false, "output the serialized document including the envelope")
	flags.Bool("text", false, "output the character data of the document only")
	flags.Bool("datetime-strings", false, "render report timestamps as \"2006-01-02 15:04:05\"")
	flags.String("max-input-size", "", "max input size (e.g., 512KB, 10MB)")
	flags.Bool("no-memo", false, "repair repeated inputs again instead of reusing the first result")

	// Bind to viper
	_ = viper.BindPFlag("pattern", flags.Lookup("pattern"))
	_ = viper.BindPFlag("features", flags.Lookup("features"))
	_ = viper.BindPFlag("max_input_size", flags.Lookup("max-input-size"))
}

// repairOptions selects what is emitted for each repaired input.
type repairOptions struct {
	XML  bool
	Text bool
}

func runRepair(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		return err
	}

	urls, _ := cmd.Flags().GetStringSlice("url")
	sources := args
	if len(sources) == 0 && len(urls) == 0 {
		sources = []string{stdinSource}
	}

	var cache *contentcache.Service
	if len(urls) > 0 {
		cache = contentcache.New(cfg.Cache, nil)
		defer func() { _ = cache.Close() }()
	}

	// Setup output
	out := cmd.OutOrStdout()
	if path, _ := cmd.Flags().GetString("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			logger.Error("failed to create output file", "path", path, "error", err)
			return err
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	var reports output.Writer
	if name, _ := cmd.Flags().GetString("report"); name != "" {
		format, err := output.ParseFormat(name)
		if err != nil {
			return err
		}
		dateTimeStrings, _ := cmd.Flags().GetBool("datetime-strings")
		reports, err = output.NewWriter(out, format, output.WithDateTimeStrings(dateTimeStrings))
		if err != nil {
			return err
		}
	}

	var opts repairOptions
	opts.XML, _ = cmd.Flags().GetBool("xml")
	opts.Text, _ = cmd.Flags().GetBool("text")

	// Reports are memoized per source; the content cache follows the same
	// switch.
	memo := calccache.New[repairReport](true)
	if cache != nil {
		memo.Adopt(cache)
	}
	if noMemo, _ := cmd.Flags().GetBool("no-memo"); noMemo {
		memo.SetEnabled(false)
	}

	r := repair.New(cfg.Repair)
	load := func(src string) (string, error) {
		return readSource(cmd.InOrStdin(), src)
	}

	var failed, total int
	process := func(src string, load func(string) (string, error)) error {
		total++
		report, _ := memo.Get(src, func() (repairReport, error) {
			return repairSource(r, cfg, src, load), nil
		})
		if report.Err != nil {
			failed++
			logger.ErrorContext(ctx, "repair failed", "source", src, "error", report.Err)
		}
		if reports != nil {
			return reports.Write(report.Map(opts))
		}
		if report.Err != nil {
			return nil
		}
		body, err := report.Body(opts)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, body)
		return err
	}

	for _, src := range sources {
		if err := process(src, load); err != nil {
			return err
		}
	}
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := process(u, func(url string) (string, error) {
			return cache.LoadContent(ctx, url)
		}); err != nil {
			return err
		}
	}

	if reports != nil {
		if err := reports.Close(); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d input(s) could not be repaired", failed, total)
	}
	logger.Debug("repair complete", "inputs", total)
	return nil
}

// readSource reads a file, or stdin for "-".
func readSource(stdin io.Reader, src string) (string, error) {
	if src == stdinSource {
		data, err := io.ReadAll(stdin)
		return string(data), err
	}
	data, err := os.ReadFile(src)
	return string(data), err
}

// repairReport is the outcome of repairing one input.
type repairReport struct {
	Source     string
	Result     *repair.Result
	Err        error
	RepairedAt time.Time
}

// repairSource loads src and runs it through r.
func repairSource(r *repair.Repairer, cfg *config.Config, src string, load func(string) (string, error)) repairReport {
	report := repairReport{Source: src, RepairedAt: time.Now()}

	markup, err := load(src)
	if err != nil {
		report.Err = fmt.Errorf("loading %s: %w", src, err)
		return report
	}
	if err := checkSize(len(markup), cfg.MaxInputSize); err != nil {
		report.Err = err
		return report
	}

	report.Result, report.Err = r.ExtractContent(markup, cfg.Pattern, cfg.Features)
	return report
}

// errInputTooLarge is returned for inputs above the configured limit.
var errInputTooLarge = errors.New("input too large")

func checkSize(n int, limit uint64) error {
	if limit > 0 && uint64(n) > limit {
		return fmt.Errorf("%w: %s exceeds %s", errInputTooLarge,
			humanize.Bytes(uint64(n)), humanize.Bytes(limit))
	}
	return nil
}

// Body returns the text emitted for a successful repair.
func (rr repairReport) Body(opts repairOptions) (string, error) {
	switch {
	case opts.Text:
		return rr.Result.Text(), nil
	case opts.XML:
		return rr.Result.XML()
	default:
		return rr.Result.Markup, nil
	}
}

// Map renders the report for the output writers.
func (rr repairReport) Map(opts repairOptions) map[string]any {
	m := map[string]any{
		"source":      rr.Source,
		"repaired_at": rr.RepairedAt,
	}
	if rr.Err != nil {
		m["error"] = rr.Err.Error()
		var rerr *repair.Error
		if errors.As(rr.Err, &rerr) {
			m["diagnostic"] = diagnosticMap(rerr)
		}
		return m
	}

	m["markup"] = rr.Result.Markup
	m["stats"] = rr.Result.Stats
	if opts.Text {
		m["text"] = rr.Result.Text()
	}
	if opts.XML {
		if doc, err := rr.Result.XML(); err == nil {
			m["xml"] = doc
		}
	}
	return m
}

// diagnosticMap describes a fatal gate failure.
func diagnosticMap(e *repair.Error) map[string]any {
	m := map[string]any{
		"message":  e.Diagnostic.Message,
		"attempts": e.Attempts,
	}
	if e.Diagnostic.Line > 0 {
		m["line"] = e.Diagnostic.Line
	}
	if len(e.Diagnostic.Signature) > 0 {
		m["signature"] = fmt.Sprintf("% X", e.Diagnostic.Signature)
	}
	if e.Artifact != "" {
		m["artifact"] = e.Artifact
	}
	return m
}

// compilePattern compiles a request-supplied extraction pattern.
func compilePattern(expr string) (*regexp.Regexp, error) {
	if expr == "" {
		return nil, nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("pattern: %w", err)
	}
	if re.NumSubexp() < 1 {
		return nil, repair.ErrInvalidPattern
	}
	return re, nil
}
