package repair

import (
	"strings"
	"testing"
)

func passByName(t *testing.T, name string) Pass {
	t.Helper()
	for _, p := range DefaultPasses() {
		if p.Name == name {
			return p
		}
	}
	t.Fatalf("no pass named %q", name)
	return Pass{}
}

func runNamed(t *testing.T, name, input string) (string, *PassStats) {
	t.Helper()
	ps := &PassStats{Name: name}
	return runPass(passByName(t, name), input, DefaultPassLimit, ps), ps
}

func TestDefaultPasses_Order(t *testing.T) {
	want := []string{
		"remove scripts",
		"remove style",
		"repair self-closing tags",
		"repair ampersands (double quotes)",
		"repair ampersands (single quotes)",
		"repair ampersands (text)",
		"remove invalid tags",
		"remove illegal tag characters",
		"fix attributes",
		"lowercase tags",
		"remove invalid byte sequences",
	}
	passes := DefaultPasses()
	if len(passes) != len(want) {
		t.Fatalf("expected %d passes, got %d", len(want), len(passes))
	}
	for i, p := range passes {
		if p.Name != want[i] {
			t.Errorf("pass %d: expected %q, got %q", i, want[i], p.Name)
		}
	}
}

func TestPasses(t *testing.T) {
	tests := []struct {
		pass  string
		input string
		want  string
	}{
		// Scripts and styles
		{"remove scripts", `<p>a</p><script type="text/javascript">if (a < b) {}</script><p>b</p>`, `<p>a</p> <p>b</p>`},
		{"remove scripts", "<script>\nvar x;\n</script>x<script>y</script>", " x "},
		{"remove scripts", `<SCRIPT>kept</SCRIPT>`, `<SCRIPT>kept</SCRIPT>`},
		{"remove style", `<style>p { color: red }</style><p>x</p>`, ` <p>x</p>`},

		// Void elements
		{"repair self-closing tags", `a<br>b`, `a<br/>b`},
		{"repair self-closing tags", `a<BR>b`, `a<BR/>b`},
		{"repair self-closing tags", `<br >`, `<br />`},
		{"repair self-closing tags", `<nbr>`, `<nbr/>`},
		{"repair self-closing tags", `<img src="a.png">`, `<img src="a.png"/>`},
		{"repair self-closing tags", `<img src="a.png" />`, `<img src="a.png" />`},
		{"repair self-closing tags", `<br/>`, `<br/>`},
		{"repair self-closing tags", `<brand>x</brand>`, `<brand>x</brand>`},

		// Ampersands
		{"repair ampersands (double quotes)", `<a href="p?a=1&b=2">x</a>`, `<a href="p?a=1&amp;b=2">x</a>`},
		{"repair ampersands (double quotes)", `<a href="p?a=1&b=2&c=3">x</a>`, `<a href="p?a=1&amp;b=2&amp;c=3">x</a>`},
		{"repair ampersands (double quotes)", `<a href="p?a=1&amp;b=2">x</a>`, `<a href="p?a=1&amp;b=2">x</a>`},
		{"repair ampersands (double quotes)", `<img src="i.php?x&y">`, `<img src="i.php?x&amp;y">`},
		{"repair ampersands (single quotes)", `<a href='p?a=1&b=2'>x</a>`, `<a href='p?a=1&amp;b=2'>x</a>`},
		{"repair ampersands (text)", `<p>Tom & Jerry</p>`, `<p>Tom &amp; Jerry</p>`},
		{"repair ampersands (text)", `<p>A & B & C</p>`, `<p>A &amp; B &amp; C</p>`},
		{"repair ampersands (text)", `Tom & Jerry`, `Tom &amp; Jerry`},
		{"repair ampersands (text)", `<p>&amp; &lt;3 &eacute;</p>`, `<p>&amp; &lt;3 &eacute;</p>`},
		{"repair ampersands (text)", `<p>don&#39;t &#x27;x&#X27;</p>`, `<p>don&#39;t &#x27;x&#X27;</p>`},
		{"repair ampersands (text)", `<p>Tom &#38; Jerry</p>`, `<p>Tom &#38; Jerry</p>`},
		{"repair ampersands (text)", `<p>#1 &# 2 &#3 4 &#xZ</p>`, `<p>#1 &amp;# 2 &amp;#3 4 &amp;#xZ</p>`},
		{"repair ampersands (double quotes)", `<a href="x?a=1&#38;b=2">x</a>`, `<a href="x?a=1&#38;b=2">x</a>`},
		{"repair ampersands (double quotes)", `<a href="x?a=1&#x26;b=2&c=3">x</a>`, `<a href="x?a=1&#x26;b=2&amp;c=3">x</a>`},
		{"repair ampersands (single quotes)", `<a href='x?a=1&#38;b=2'>x</a>`, `<a href='x?a=1&#38;b=2'>x</a>`},

		// Invalid tags
		{"remove invalid tags", `<p><em>x</em></p>`, `<p>x</p>`},
		{"remove invalid tags", `<HTML><p>x</p></HTML>`, `<p>x</p>`},
		{"remove invalid tags", `a<e>b<->c`, `abc`},
		{"remove invalid tags", `see <http://example.com/x> or <#anchor>`, `see  or `},
		{"remove invalid tags", `<emph>x</emph>`, `<emph>x</emph>`},

		// Tag structure
		{"remove illegal tag characters", `<a href="x"§>y</a>`, `<a href="x" >y</a>`},
		{"remove illegal tag characters", `<p;>y</p>`, `<p >y</p>`},
		{"remove illegal tag characters", `<a href="x">y</a>`, `<a href="x">y</a>`},
		{"remove illegal tag characters", `<a href="§">y</a>`, `<a href="§">y</a>`},
		{"remove illegal tag characters", `<a title="x" alt="!">y</a>`, `<a title="x" alt="!">y</a>`},
		{"fix attributes", `<input type="checkbox" checked name="c">`, `<input type="checkbox" name="c">`},
		{"fix attributes", `<td nowrap>x</td>`, `<td>x</td>`},
		{"fix attributes", `<td class="a">x</td>`, `<td class="a">x</td>`},

		// Case
		{"lowercase tags", `<P CLASS="X">a</P>`, `<p CLASS="X">a</p>`},
		{"lowercase tags", `<DIV><Img src="A"/></DIV>`, `<div><img src="A"/></div>`},
		{"lowercase tags", `<p>a</p>`, `<p>a</p>`},

		// Bytes
		{"remove invalid byte sequences", "A\x96 Grenze", "A enze"},
	}

	for _, tt := range tests {
		t.Run(tt.pass+"/"+tt.input, func(t *testing.T) {
			got, _ := runNamed(t, tt.pass, tt.input)
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestPasses_Idempotent(t *testing.T) {
	inputs := []string{
		`<p>Hello <BR> World & Co.</p>`,
		`<A HREF="x?a&b">T & J</A><img src='y?c&d'><td nowrap>`,
		`<p><em>x</em><script>1</script></p>`,
	}
	for _, input := range inputs {
		once := input
		for _, p := range DefaultPasses() {
			once = runPass(p, once, DefaultPassLimit, &PassStats{})
		}
		twice := once
		total := 0
		for _, p := range DefaultPasses() {
			ps := &PassStats{}
			twice = runPass(p, twice, DefaultPassLimit, ps)
			total += ps.Fixes
		}
		if once != twice {
			t.Errorf("expected fixed point, got %q then %q", once, twice)
		}
		if total != 0 {
			t.Errorf("expected no fixes on second run of %q, got %d", input, total)
		}
	}
}

func TestRunPass_Cap(t *testing.T) {
	input := `<a href="x?` + strings.Repeat("a=1&", 50) + `">y</a>`
	ps := &PassStats{}
	out := runPass(passByName(t, "repair ampersands (double quotes)"), input, 5, ps)

	if !ps.Capped {
		t.Error("expected pass to be capped")
	}
	if ps.Fixes != 5 {
		t.Errorf("expected 5 fixes, got %d", ps.Fixes)
	}
	if got := strings.Count(out, "&amp;"); got != 5 {
		t.Errorf("expected 5 repaired ampersands, got %d", got)
	}
}

func TestRunPass_NoProgress(t *testing.T) {
	stuck := Pass{
		Name:    "stuck",
		Detect:  func(string) bool { return true },
		Rewrite: func(s string) string { return s },
	}
	ps := &PassStats{}
	out := runPass(stuck, "abc", DefaultPassLimit, ps)
	if out != "abc" {
		t.Errorf("expected unchanged buffer, got %q", out)
	}
	if ps.Fixes != 0 || ps.Capped {
		t.Errorf("expected no fixes and no cap, got %+v", ps)
	}
}

func TestRunPasses_DisabledRecorded(t *testing.T) {
	stats := NewStats()
	features := AllFeatures().Without(FeatureRemoveScripts)
	out := runPasses(DefaultPasses(), `<script>x</script>`, features, DefaultPassLimit, stats)

	if out != `<script>x</script>` {
		t.Errorf("expected script kept, got %q", out)
	}
	ps := stats.GetPass("remove scripts")
	if ps == nil {
		t.Fatal("expected disabled pass to be recorded")
	}
	if ps.Enabled || ps.Fixes != 0 {
		t.Errorf("expected disabled pass with no fixes, got %+v", ps)
	}
	if len(stats.Passes) != len(DefaultPasses()) {
		t.Errorf("expected %d pass records, got %d", len(DefaultPasses()), len(stats.Passes))
	}
}

func TestLowerTagName(t *testing.T) {
	tests := map[string]string{
		`<DIV>`:            `<div>`,
		`</DIV>`:           `</div>`,
		`<Br/>`:            `<br/>`,
		`<A HREF="X">`:     `<a HREF="X">`,
		`<my-Tag_1 a="B">`: `<my-tag_1 a="B">`,
	}
	for in, want := range tests {
		if got := lowerTagName(in); got != want {
			t.Errorf("lowerTagName(%q): expected %q, got %q", in, want, got)
		}
	}
}
