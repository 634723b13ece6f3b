// Package repair turns broken, scraped HTML fragments into markup that a
// strict XML parser accepts.
//
// A document goes through content extraction, entity translation, a fixed
// list of rewrite passes, site specific patches and finally a strict parse.
// Every pass is re-applied until it stops matching or hits its cap, and the
// parser's encoding diagnostics drive the removal of invalid byte runs.
// Documents that still fail are saved to an artifact directory and reported
// as *Error.
package repair

import (
	"regexp"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/jmylchreest/tagmend/internal/logger"
)

// Repairer runs the repair pipeline. It is immutable after New and safe for
// concurrent use.
type Repairer struct {
	config Config
}

// Result contains the output of a successful repair.
type Result struct {
	// Document is the parsed tree. Its root is the <html> envelope element.
	Document *etree.Document `json:"-"`

	// Markup is the repaired fragment, without the envelope.
	Markup string `json:"markup"`

	// Stats contains metrics about what was done.
	Stats *Stats `json:"stats"`
}

// Text returns the character data of the document with whitespace runs
// collapsed to single spaces.
func (r *Result) Text() string {
	if r.Document == nil || r.Document.Root() == nil {
		return ""
	}
	var sb strings.Builder
	collectText(r.Document.Root(), &sb)
	return strings.Join(strings.Fields(sb.String()), " ")
}

func collectText(el *etree.Element, sb *strings.Builder) {
	for _, tok := range el.Child {
		switch t := tok.(type) {
		case *etree.CharData:
			sb.WriteString(t.Data)
		case *etree.Element:
			sb.WriteByte(' ')
			collectText(t, sb)
			sb.WriteByte(' ')
		}
	}
}

// XML serializes the parsed document.
func (r *Result) XML() (string, error) {
	return r.Document.WriteToString()
}

// New creates a Repairer with the given configuration.
// If config is nil, DefaultConfig() is used.
func New(config *Config) *Repairer {
	if config == nil {
		config = DefaultConfig()
	}
	return &Repairer{config: config.withDefaults()}
}

// Name returns the repairer name for logging.
func (r *Repairer) Name() string {
	return "tagmend"
}

// Clean repairs a whole document with every feature enabled and returns
// the repaired markup.
func (r *Repairer) Clean(html string) (string, error) {
	result, err := r.ExtractContent(html, nil, AllFeatures())
	if err != nil {
		return "", err
	}
	return result.Markup, nil
}

var spaceRun = regexp.MustCompile(` +`)

// ExtractContent repairs the part of markup selected by pattern. Matches of
// pattern are replaced by its first capture group; a nil pattern keeps the
// whole input. Only passes whose feature is in features run.
func (r *Repairer) ExtractContent(markup string, pattern *regexp.Regexp, features Features) (*Result, error) {
	startTime := time.Now()
	stats := NewStats()
	stats.InputBytes = len(markup)
	stats.Features = features.String()

	extractStart := time.Now()
	buf, err := extract(markup, pattern)
	if err != nil {
		return nil, err
	}
	stats.ExtractDuration = time.Since(extractStart)

	repairStart := time.Now()
	if features.Has(FeatureTranslateEntities) {
		buf, stats.EntitiesTranslated = translateEntities(buf)
	}
	buf = runPasses(r.config.Passes, buf, features, r.config.PassLimit, stats)
	if features.Has(FeatureSpecialCases) {
		buf, stats.PatchesApplied = applyPatches(r.config.Patches, buf)
	}
	stats.RepairDuration = time.Since(repairStart)

	g := gate{
		retryLimit:  r.config.UTF8RetryLimit,
		artifactDir: r.config.ArtifactDir,
		removeUTF8:  features.Has(FeatureRemoveInvalidUTF8),
	}
	doc, buf, err := g.parse(buf, stats)
	stats.TotalDuration = time.Since(startTime)
	if err != nil {
		return nil, err
	}
	stats.OutputBytes = len(buf)

	logger.Debug("repair complete",
		"input_bytes", stats.InputBytes,
		"output_bytes", stats.OutputBytes,
		"fixes", stats.TotalFixes(),
		"parse_attempts", stats.ParseAttempts,
		"duration", stats.TotalDuration)

	return &Result{Document: doc, Markup: buf, Stats: stats}, nil
}

// ExtractContent repairs markup with the default configuration and every
// feature enabled.
func ExtractContent(markup string, pattern *regexp.Regexp) (*Result, error) {
	return New(nil).ExtractContent(markup, pattern, AllFeatures())
}

// extract applies the extraction pattern, collapses runs of spaces and
// trims the result.
func extract(markup string, pattern *regexp.Regexp) (string, error) {
	if pattern != nil {
		if pattern.NumSubexp() < 1 {
			return "", ErrInvalidPattern
		}
		markup = pattern.ReplaceAllString(markup, "${1}")
	}
	return strings.Trim(spaceRun.ReplaceAllString(markup, " "), " \t\n\r\x00\x0b"), nil
}
