package commands

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jmylchreest/tagmend/pkg/repair"
)

func staticLoader(content string, err error) func(string) (string, error) {
	return func(string) (string, error) {
		return content, err
	}
}

func TestRepairSource(t *testing.T) {
	cfg := testConfig(t)
	r := repair.New(cfg.Repair)

	t.Run("success", func(t *testing.T) {
		report := repairSource(r, cfg, "page.html", staticLoader("<p>Tom & Jerry</p>", nil))
		if report.Err != nil {
			t.Fatalf("unexpected error: %v", report.Err)
		}
		if report.Result.Markup != "<p>Tom &amp; Jerry</p>" {
			t.Errorf("expected repaired markup, got %q", report.Result.Markup)
		}
		if report.Source != "page.html" {
			t.Errorf("expected source page.html, got %q", report.Source)
		}
	})

	t.Run("load error", func(t *testing.T) {
		loadErr := errors.New("boom")
		report := repairSource(r, cfg, "x", staticLoader("", loadErr))
		if !errors.Is(report.Err, loadErr) {
			t.Errorf("expected load error, got %v", report.Err)
		}
	})

	t.Run("too large", func(t *testing.T) {
		report := repairSource(r, cfg, "x", staticLoader(strings.Repeat("a", 1001), nil))
		if !errors.Is(report.Err, errInputTooLarge) {
			t.Errorf("expected errInputTooLarge, got %v", report.Err)
		}
	})

	t.Run("gate failure", func(t *testing.T) {
		report := repairSource(r, cfg, "x", staticLoader("<div>open", nil))
		if !errors.Is(report.Err, repair.ErrMarkupRepairFailed) {
			t.Fatalf("expected ErrMarkupRepairFailed, got %v", report.Err)
		}
		m := report.Map(repairOptions{})
		if _, ok := m["diagnostic"]; !ok {
			t.Error("expected diagnostic in report")
		}
		if _, ok := m["markup"]; ok {
			t.Error("did not expect markup in failed report")
		}
	})
}

func TestCheckSize(t *testing.T) {
	tests := []struct {
		name    string
		n       int
		limit   uint64
		wantErr bool
	}{
		{"under limit", 10, 100, false},
		{"at limit", 100, 100, false},
		{"over limit", 101, 100, true},
		{"no limit", 1 << 20, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkSize(tt.n, tt.limit)
			if (err != nil) != tt.wantErr {
				t.Errorf("expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestReportBodyAndMap(t *testing.T) {
	cfg := testConfig(t)
	r := repair.New(cfg.Repair)
	report := repairSource(r, cfg, "a", staticLoader("<p>one <b>two</b></p>", nil))
	if report.Err != nil {
		t.Fatalf("unexpected error: %v", report.Err)
	}

	tests := []struct {
		name string
		opts repairOptions
		want string
	}{
		{"markup", repairOptions{}, "<p>one <b>two</b></p>"},
		{"text", repairOptions{Text: true}, "one two"},
		{"xml", repairOptions{XML: true}, `<html><p>one <b>two</b></p></html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := report.Body(tt.opts)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.opts.XML {
				if !strings.HasPrefix(got, "<?xml") || !strings.HasSuffix(got, tt.want) {
					t.Errorf("expected document ending in %q, got %q", tt.want, got)
				}
				return
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}

	m := report.Map(repairOptions{Text: true, XML: true})
	for _, key := range []string{"source", "repaired_at", "markup", "stats", "text", "xml"} {
		if _, ok := m[key]; !ok {
			t.Errorf("expected key %q in report", key)
		}
	}
}

func TestCompilePattern(t *testing.T) {
	if re, err := compilePattern(""); re != nil || err != nil {
		t.Errorf("expected nil pattern and error, got %v, %v", re, err)
	}
	if _, err := compilePattern("(unclosed"); err == nil {
		t.Error("expected error for invalid expression")
	}
	if _, err := compilePattern("no-group"); !errors.Is(err, repair.ErrInvalidPattern) {
		t.Errorf("expected ErrInvalidPattern, got %v", err)
	}
	if re, err := compilePattern("<b>(.*)</b>"); err != nil || re == nil {
		t.Errorf("expected compiled pattern, got %v, %v", re, err)
	}
}

func TestReadSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "page.html")
	if err := os.WriteFile(path, []byte("<p>file</p>"), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := readSource(nil, path)
	if err != nil || got != "<p>file</p>" {
		t.Errorf("expected file content, got %q, %v", got, err)
	}

	got, err = readSource(strings.NewReader("<p>stdin</p>"), stdinSource)
	if err != nil || got != "<p>stdin</p>" {
		t.Errorf("expected stdin content, got %q, %v", got, err)
	}

	if _, err := readSource(nil, filepath.Join(dir, "missing.html")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestRepairCommand(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.html")
	if err := os.WriteFile(good, []byte("<P>Fish & Chips</P>"), 0o600); err != nil {
		t.Fatal(err)
	}
	missing := filepath.Join(dir, "missing.html")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"repair", "--quiet", good, missing, "--report", "jsonl"})
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "1 of 2") {
		t.Fatalf("expected partial failure error, got %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) < 2 {
		t.Fatalf("expected two report lines, got %q", out.String())
	}
	if !strings.Contains(out.String(), `"markup":"<p>Fish &amp; Chips</p>"`) {
		t.Errorf("expected repaired markup in reports, got %q", out.String())
	}
	if !strings.Contains(out.String(), "missing.html") {
		t.Errorf("expected failed source in reports, got %q", out.String())
	}
}
