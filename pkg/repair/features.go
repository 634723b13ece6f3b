package repair

import (
	"fmt"
	"sort"
	"strings"
)

// Feature names one independently toggleable repair step.
type Feature uint16

const (
	FeatureRemoveScripts Feature = 1 << iota
	FeatureRemoveStyle
	FeatureTranslateEntities
	FeatureRepairSelfClosing
	FeatureRepairAmpersands
	FeatureRemoveInvalidTags
	FeatureRemoveIllegalTagChars
	FeatureLowercaseTags
	FeatureRemoveInvalidUTF8
	FeatureFixAttributes
	FeatureSpecialCases
)

var featureNames = map[Feature]string{
	FeatureRemoveScripts:         "remove-scripts",
	FeatureRemoveStyle:           "remove-style",
	FeatureTranslateEntities:     "translate-entities",
	FeatureRepairSelfClosing:     "repair-self-closing",
	FeatureRepairAmpersands:      "repair-ampersands",
	FeatureRemoveInvalidTags:     "remove-invalid-tags",
	FeatureRemoveIllegalTagChars: "remove-illegal-tag-chars",
	FeatureLowercaseTags:         "lowercase-tags",
	FeatureRemoveInvalidUTF8:     "remove-invalid-utf8",
	FeatureFixAttributes:         "fix-attributes",
	FeatureSpecialCases:          "special-cases",
}

// String returns the configuration name of the feature.
func (f Feature) String() string {
	if name, ok := featureNames[f]; ok {
		return name
	}
	return fmt.Sprintf("feature(%d)", uint16(f))
}

// Features is an immutable set of selected features.
// The zero value selects nothing.
type Features struct {
	bits uint16
}

// AllFeatures selects every repair step. It is the default selection.
func AllFeatures() Features {
	var fs Features
	for f := range featureNames {
		fs.bits |= uint16(f)
	}
	return fs
}

// NewFeatures returns a set containing exactly the given features.
func NewFeatures(features ...Feature) Features {
	var fs Features
	for _, f := range features {
		fs.bits |= uint16(f)
	}
	return fs
}

// Has reports whether f is a member of the set.
func (fs Features) Has(f Feature) bool {
	return f != 0 && fs.bits&uint16(f) == uint16(f)
}

// With returns a copy of the set with the given features added.
func (fs Features) With(features ...Feature) Features {
	for _, f := range features {
		fs.bits |= uint16(f)
	}
	return fs
}

// Without returns a copy of the set with the given features removed.
func (fs Features) Without(features ...Feature) Features {
	for _, f := range features {
		fs.bits &^= uint16(f)
	}
	return fs
}

// Names returns the sorted configuration names of the selected features.
func (fs Features) Names() []string {
	names := make([]string, 0, len(featureNames))
	for f, name := range featureNames {
		if fs.Has(f) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// String returns a comma separated list of feature names.
func (fs Features) String() string {
	return strings.Join(fs.Names(), ",")
}

// ParseFeature looks up a feature by its configuration name.
func ParseFeature(name string) (Feature, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for f, n := range featureNames {
		if n == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFeature, name)
}

// ParseFeatures builds a set from configuration names. The special name
// "all" selects every feature.
func ParseFeatures(names []string) (Features, error) {
	var fs Features
	for _, name := range names {
		if strings.EqualFold(strings.TrimSpace(name), "all") {
			fs.bits |= AllFeatures().bits
			continue
		}
		f, err := ParseFeature(name)
		if err != nil {
			return Features{}, err
		}
		fs = fs.With(f)
	}
	return fs, nil
}
