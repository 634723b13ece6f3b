package repair

import (
	"fmt"
	"regexp"
	"strings"
)

// Patch is a site specific rewrite applied after the generic passes.
type Patch struct {
	Name    string
	Pattern *regexp.Regexp
	Replace string

	// Unless skips the patch when the buffer already contains it, which
	// keeps patches that insert text from applying twice.
	Unless string
}

// Apply runs the patch once and reports whether it changed the buffer.
func (p Patch) Apply(buf string) (string, bool) {
	if p.Pattern == nil {
		return buf, false
	}
	if p.Unless != "" && strings.Contains(buf, p.Unless) {
		return buf, false
	}
	out := p.Pattern.ReplaceAllString(buf, p.Replace)
	return out, out != buf
}

// CompilePatch builds a Patch from its textual form.
func CompilePatch(name, pattern, replace, unless string) (Patch, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Patch{}, fmt.Errorf("patch %q: %w", name, err)
	}
	return Patch{Name: name, Pattern: re, Replace: replace, Unless: unless}, nil
}

// PatchSpec is the textual form of a Patch as found in configuration files.
type PatchSpec struct {
	Name    string `mapstructure:"name" yaml:"name" validate:"required"`
	Pattern string `mapstructure:"pattern" yaml:"pattern" validate:"required"`
	Replace string `mapstructure:"replace" yaml:"replace"`
	Unless  string `mapstructure:"unless" yaml:"unless"`
}

// CompilePatches compiles every spec, stopping at the first bad pattern.
func CompilePatches(specs []PatchSpec) ([]Patch, error) {
	patches := make([]Patch, 0, len(specs))
	for _, s := range specs {
		p, err := CompilePatch(s.Name, s.Pattern, s.Replace, s.Unless)
		if err != nil {
			return nil, err
		}
		patches = append(patches, p)
	}
	return patches, nil
}

// golemUnclosedParagraph closes a paragraph from a golem.de article that
// the site ships without its </p>.
var golemUnclosedParagraph = regexp.MustCompile(`(?s)(<p>Sony hat auf der US-Fotomesse Photo Marketing Association \(PMA\) 2010 zahlreiche Konzeptkameras vorgestellt - die .{0,2}berraschung schlechthin ist eine (?:<a href="https://www\.golem\.de/specials/hybridkamera/" target="_blank">)?Kompaktkamera mit Wechselobjektiven(?:</a>)? .{0,2}hnlich wie die <a href="https://www\.golem\.de/1002/72853\.html" target="_blank">Olympus E-Pen</a>\.)`)

// DefaultPatches returns the built-in site specific patches.
func DefaultPatches() []Patch {
	return []Patch{
		{
			Name:    "golem.de unclosed paragraph",
			Pattern: golemUnclosedParagraph,
			Replace: "${1}</p>",
			Unless:  "Olympus E-Pen</a>.</p>",
		},
	}
}

func applyPatches(patches []Patch, buf string) (string, int) {
	applied := 0
	for _, p := range patches {
		var changed bool
		if buf, changed = p.Apply(buf); changed {
			applied++
		}
	}
	return buf, applied
}
