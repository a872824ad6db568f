package parse

import (
	"strings"
	"testing"
)

func TestSanitizeHTML_RemovesDangerousTagsAndAttrs(t *testing.T) {
	in := `<div onclick="alert(1)"><script>alert(1)</script><a href="javascript:alert(1)" style="color:red">x</a><iframe src="https://evil"></iframe></div>`
	out := SanitizeHTML(in)

	for _, bad := range []string{"<script", "onclick=", "style=", "<iframe", "javascript:"} {
		if strings.Contains(strings.ToLower(out), bad) {
			t.Fatalf("expected %q to be removed, got: %s", bad, out)
		}
	}
	if !strings.Contains(out, "x") {
		t.Fatalf("link text should survive: %s", out)
	}
}

func TestSanitizeHTML_DropsMediaElements(t *testing.T) {
	in := `<p>Intro</p><img src="https://example.com/big.png" alt="pic"><video src="https://example.com/v.mp4"></video><figure><figcaption>A caption</figcaption></figure>`
	out := SanitizeHTML(in)

	for _, bad := range []string{"<img", "<video", "big.png"} {
		if strings.Contains(strings.ToLower(out), bad) {
			t.Fatalf("expected %q to be dropped, got: %s", bad, out)
		}
	}
	if !strings.Contains(out, "Intro") || !strings.Contains(out, "A caption") {
		t.Fatalf("text content should survive: %s", out)
	}
}

func TestSanitizeHTML_PreservesSafeMarkup(t *testing.T) {
	in := `<p>Hello <a href="https://example.com" title="Example">world</a></p>`
	out := SanitizeHTML(in)
	if !strings.Contains(out, `href="https://example.com"`) || !strings.Contains(out, `>world</a>`) {
		t.Fatalf("safe link should be preserved, got: %s", out)
	}
	if !strings.Contains(out, `title="Example"`) {
		t.Fatalf("title attribute should be preserved, got: %s", out)
	}
}
