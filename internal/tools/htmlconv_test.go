package tools

import (
	"strings"
	"testing"
)

func TestConvertIfHTML(t *testing.T) {
	input := `<!DOCTYPE html><html><head><script>var x = 1;</script></head>` +
		`<body><h1>Title</h1><p>Some <b>bold</b> text.</p></body></html>`

	out, converted := ConvertIfHTML(input)
	if !converted {
		t.Fatal("HTML input not detected")
	}
	if strings.Contains(out, "var x = 1") {
		t.Errorf("script content leaked into markdown: %q", out)
	}
	if !strings.Contains(out, "Title") || !strings.Contains(out, "bold") {
		t.Errorf("content missing from markdown: %q", out)
	}
}

func TestConvertIfHTMLExtractsMainContent(t *testing.T) {
	input := `<!DOCTYPE html><html><body>` +
		`<nav><a href="/">Home</a><a href="/about">About</a></nav>` +
		`<aside>Trending sidebar links</aside>` +
		`<main><h1>Article Title</h1><p>The actual article text.</p></main>` +
		`<footer>Copyright notice</footer>` +
		`</body></html>`

	out, converted := ConvertIfHTML(input)
	if !converted {
		t.Fatal("HTML input not detected")
	}
	if !strings.Contains(out, "Article Title") || !strings.Contains(out, "actual article text") {
		t.Errorf("main content missing from markdown: %q", out)
	}
	for _, noise := range []string{"Trending sidebar", "Copyright notice", "About"} {
		if strings.Contains(out, noise) {
			t.Errorf("non-content %q leaked into markdown: %q", noise, out)
		}
	}
}

func TestConvertIfHTMLFallsBackWithoutSemanticTags(t *testing.T) {
	input := `<!DOCTYPE html><html><body>` +
		`<div id="page-content"><p>Body of the page.</p></div>` +
		`<div class="sidebar"><p>Related posts</p></div>` +
		`</body></html>`

	out, converted := ConvertIfHTML(input)
	if !converted {
		t.Fatal("HTML input not detected")
	}
	if !strings.Contains(out, "Body of the page") {
		t.Errorf("identified content missing from markdown: %q", out)
	}
	if strings.Contains(out, "Related posts") {
		t.Errorf("sidebar leaked into markdown: %q", out)
	}
}

func TestConvertIfHTMLPassesThroughPlainText(t *testing.T) {
	input := "just some plain text with a < sign"
	out, converted := ConvertIfHTML(input)
	if converted {
		t.Error("plain text misdetected as HTML")
	}
	if out != input {
		t.Errorf("plain text mutated: %q", out)
	}
}
