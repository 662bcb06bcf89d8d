package markdown

import (
	"strings"
	"testing"
)

func TestToHTMLOrdersBlocksAndEmphasis(t *testing.T) {
	out := ToHTML("# Title\n**bold** and *em*")

	h1 := strings.Index(out, "<h1>Title</h1>")
	strong := strings.Index(out, "<strong>bold</strong>")
	em := strings.Index(out, "<em>em</em>")
	if h1 < 0 || strong < 0 || em < 0 {
		t.Fatalf("missing expected tags in %q", out)
	}
	if !(h1 < strong && strong < em) {
		t.Fatalf("unexpected order in %q", out)
	}
	if strings.ContainsAny(out, "*#") {
		t.Fatalf("unconverted markers left in %q", out)
	}
}

func TestToHTMLCases(t *testing.T) {
	cases := []struct {
		name   string
		source string
		want   []string
	}{
		{name: "heading levels", source: "## Two\n\n### Three", want: []string{"<h2>Two</h2>", "<h3>Three</h3>"}},
		{name: "inline code", source: "run `make test`", want: []string{"<code>make test</code>"}},
		{name: "hard wraps", source: "line one\nline two", want: []string{"line one<br>"}},
		{name: "lists", source: "- a\n- b", want: []string{"<ul>", "<li>a</li>"}},
		{name: "links", source: "[docs](https://example.com)", want: []string{`<a href="https://example.com">docs</a>`}},
		{name: "fenced code", source: "```\nx := 1\n```", want: []string{"<pre><code>x := 1\n</code></pre>"}},
		{name: "blockquote", source: "> quoted", want: []string{"<blockquote>"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := ToHTML(tc.source)
			for _, want := range tc.want {
				if !strings.Contains(out, want) {
					t.Fatalf("ToHTML(%q) = %q, missing %q", tc.source, out, want)
				}
			}
		})
	}
}

func TestToHTMLDropsRawHTML(t *testing.T) {
	out := ToHTML("<script>alert(1)</script>")
	if strings.Contains(out, "<script>") {
		t.Fatalf("raw html passed through: %q", out)
	}
}

func TestToHTMLEmpty(t *testing.T) {
	if ToHTML("") != "" {
		t.Fatal("expected empty output")
	}
}
