package repair

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Stats captures what the repair pipeline did to one document.
type Stats struct {
	// Size metrics
	InputBytes  int `json:"input_bytes" yaml:"input_bytes"`
	OutputBytes int `json:"output_bytes" yaml:"output_bytes"`

	// Features is the selection the document was repaired with.
	Features string `json:"features" yaml:"features"`

	EntitiesTranslated int `json:"entities_translated" yaml:"entities_translated"`
	PatchesApplied     int `json:"patches_applied" yaml:"patches_applied"`

	// Passes records every pass in run order, disabled ones included.
	Passes []*PassStats `json:"passes" yaml:"passes"`

	// Parser gate
	ParseAttempts    int `json:"parse_attempts" yaml:"parse_attempts"`
	InvalidUTF8Fixes int `json:"invalid_utf8_fixes" yaml:"invalid_utf8_fixes"`

	// Timing
	ExtractDuration time.Duration `json:"extract_duration_ns" yaml:"extract_duration_ns"`
	RepairDuration  time.Duration `json:"repair_duration_ns" yaml:"repair_duration_ns"`
	ParseDuration   time.Duration `json:"parse_duration_ns" yaml:"parse_duration_ns"`
	TotalDuration   time.Duration `json:"total_duration_ns" yaml:"total_duration_ns"`
}

// PassStats captures the work done by a single pass.
type PassStats struct {
	Name     string        `json:"name" yaml:"name"`
	Feature  string        `json:"feature" yaml:"feature"`
	Enabled  bool          `json:"enabled" yaml:"enabled"`
	Fixes    int           `json:"fixes" yaml:"fixes"`
	Capped   bool          `json:"capped,omitempty" yaml:"capped,omitempty"`
	Duration time.Duration `json:"duration_ns" yaml:"duration_ns"`
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	return &Stats{
		Passes: make([]*PassStats, 0, 12),
	}
}

// AddPass appends a pass record and returns it for updating.
func (s *Stats) AddPass(name string, feature Feature, enabled bool) *PassStats {
	ps := &PassStats{
		Name:    name,
		Feature: feature.String(),
		Enabled: enabled,
	}
	s.Passes = append(s.Passes, ps)
	return ps
}

// GetPass returns the first pass record with the given name, or nil.
func (s *Stats) GetPass(name string) *PassStats {
	for _, ps := range s.Passes {
		if ps.Name == name {
			return ps
		}
	}
	return nil
}

// TotalFixes returns the number of rewrites applied by all passes.
func (s *Stats) TotalFixes() int {
	total := 0
	for _, ps := range s.Passes {
		total += ps.Fixes
	}
	return total
}

// CappedPasses returns the names of passes that hit the iteration limit.
func (s *Stats) CappedPasses() []string {
	var names []string
	for _, ps := range s.Passes {
		if ps.Capped {
			names = append(names, ps.Name)
		}
	}
	return names
}

// String returns a human-readable summary of the stats.
func (s *Stats) String() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Size: %s -> %s\n",
		humanize.Bytes(uint64(s.InputBytes)), humanize.Bytes(uint64(s.OutputBytes))))

	sb.WriteString(fmt.Sprintf("Fixes: %s across passes, %d entities, %d patches\n",
		humanize.Comma(int64(s.TotalFixes())), s.EntitiesTranslated, s.PatchesApplied))

	applied := make([]string, 0, len(s.Passes))
	for _, ps := range s.Passes {
		if ps.Fixes > 0 {
			applied = append(applied, fmt.Sprintf("%s=%d", ps.Name, ps.Fixes))
		}
	}
	if len(applied) > 0 {
		sb.WriteString("By pass: ")
		sb.WriteString(strings.Join(applied, ", "))
		sb.WriteString("\n")
	}

	if capped := s.CappedPasses(); len(capped) > 0 {
		sb.WriteString(fmt.Sprintf("Capped: %s\n", strings.Join(capped, ", ")))
	}

	if s.InvalidUTF8Fixes > 0 {
		sb.WriteString(fmt.Sprintf("Invalid UTF-8 removals: %d\n", s.InvalidUTF8Fixes))
	}

	sb.WriteString(fmt.Sprintf("Timing: extract=%v, repair=%v, parse=%v (%d attempts), total=%v\n",
		s.ExtractDuration.Round(time.Microsecond),
		s.RepairDuration.Round(time.Microsecond),
		s.ParseDuration.Round(time.Microsecond),
		s.ParseAttempts,
		s.TotalDuration.Round(time.Microsecond)))

	return sb.String()
}
