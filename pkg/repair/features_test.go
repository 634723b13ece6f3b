package repair

import (
	"errors"
	"testing"
)

func TestAllFeatures(t *testing.T) {
	all := AllFeatures()
	for f := range featureNames {
		if !all.Has(f) {
			t.Errorf("expected AllFeatures to include %s", f)
		}
	}
	if all.Has(0) {
		t.Error("expected the zero feature never to be a member")
	}
}

func TestFeatures_Membership(t *testing.T) {
	tests := []struct {
		name  string
		set   Features
		check Feature
		want  bool
	}{
		{"zero value selects nothing", Features{}, FeatureRemoveScripts, false},
		{"single member", NewFeatures(FeatureRemoveStyle), FeatureRemoveStyle, true},
		{"other bit not implied", NewFeatures(FeatureRemoveStyle), FeatureRemoveScripts, false},
		{"with adds", NewFeatures().With(FeatureLowercaseTags), FeatureLowercaseTags, true},
		{"without removes", AllFeatures().Without(FeatureRepairAmpersands), FeatureRepairAmpersands, false},
		{"without keeps others", AllFeatures().Without(FeatureRepairAmpersands), FeatureFixAttributes, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.set.Has(tt.check); got != tt.want {
				t.Errorf("expected Has(%s) = %v, got %v", tt.check, tt.want, got)
			}
		})
	}
}

func TestFeatures_WithDoesNotMutate(t *testing.T) {
	base := NewFeatures(FeatureRemoveScripts)
	_ = base.With(FeatureRemoveStyle)
	if base.Has(FeatureRemoveStyle) {
		t.Error("expected With to return a copy")
	}
}

func TestFeatures_Names(t *testing.T) {
	fs := NewFeatures(FeatureRemoveStyle, FeatureFixAttributes)
	names := fs.Names()
	if len(names) != 2 || names[0] != "fix-attributes" || names[1] != "remove-style" {
		t.Errorf("expected sorted names [fix-attributes remove-style], got %v", names)
	}
	if fs.String() != "fix-attributes,remove-style" {
		t.Errorf("unexpected String(): %q", fs.String())
	}
}

func TestParseFeatures(t *testing.T) {
	t.Run("names", func(t *testing.T) {
		fs, err := ParseFeatures([]string{"remove-scripts", " Lowercase-Tags "})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !fs.Has(FeatureRemoveScripts) || !fs.Has(FeatureLowercaseTags) {
			t.Errorf("expected both features selected, got %s", fs)
		}
		if fs.Has(FeatureRemoveStyle) {
			t.Error("expected remove-style not selected")
		}
	})

	t.Run("all", func(t *testing.T) {
		fs, err := ParseFeatures([]string{"all"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if fs != AllFeatures() {
			t.Errorf("expected all features, got %s", fs)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := ParseFeatures([]string{"remove-scripts", "make-coffee"})
		if !errors.Is(err, ErrUnknownFeature) {
			t.Errorf("expected ErrUnknownFeature, got %v", err)
		}
	})
}

func TestFeature_String(t *testing.T) {
	if FeatureSpecialCases.String() != "special-cases" {
		t.Errorf("expected special-cases, got %q", FeatureSpecialCases.String())
	}
	if Feature(1<<15).String() != "feature(32768)" {
		t.Errorf("unexpected name for unknown feature: %q", Feature(1<<15).String())
	}
}
