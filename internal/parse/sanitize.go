package parse

import (
	"strings"

	"golang.org/x/net/html"
)

// droppedTags is everything a summary cannot use: active content, because
// feed bodies are untrusted, and media elements, because the output ends up
// as a short text excerpt where an image reference is just noise.
var droppedTags = map[string]struct{}{
	"audio":    {},
	"base":     {},
	"canvas":   {},
	"embed":    {},
	"form":     {},
	"iframe":   {},
	"img":      {},
	"input":    {},
	"link":     {},
	"meta":     {},
	"noscript": {},
	"object":   {},
	"picture":  {},
	"script":   {},
	"source":   {},
	"style":    {},
	"svg":      {},
	"textarea": {},
	"track":    {},
	"video":    {},
}

// keptAttrs is the handful of attributes the markdown conversion actually
// reads. Everything else, event handlers included, is discarded wholesale.
var keptAttrs = map[string]struct{}{
	"href":  {},
	"title": {},
	"alt":   {},
}

// SanitizeHTML cleans feed-provided HTML for summarization: dropped tags
// disappear with their subtrees, unknown attributes are stripped, and link
// targets with scriptable schemes are removed.
func SanitizeHTML(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	doc, err := html.Parse(strings.NewReader("<body>" + raw + "</body>"))
	if err != nil {
		return raw
	}

	body := findBodyNode(doc)
	if body == nil {
		return raw
	}

	var b strings.Builder
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		cleaned := cleanNode(c)
		if cleaned == nil {
			continue
		}
		_ = html.Render(&b, cleaned)
	}
	return strings.TrimSpace(b.String())
}

func findBodyNode(n *html.Node) *html.Node {
	if n == nil {
		return nil
	}
	if n.Type == html.ElementNode && strings.EqualFold(n.Data, "body") {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBodyNode(c); b != nil {
			return b
		}
	}
	return nil
}

func cleanNode(n *html.Node) *html.Node {
	if n == nil {
		return nil
	}
	switch n.Type {
	case html.TextNode:
		return &html.Node{Type: html.TextNode, Data: n.Data}
	case html.CommentNode:
		return nil
	case html.ElementNode:
		tag := strings.ToLower(strings.TrimSpace(n.Data))
		if _, dropped := droppedTags[tag]; dropped {
			return nil
		}
		clone := &html.Node{Type: html.ElementNode, Data: n.Data, Namespace: n.Namespace}
		for _, a := range n.Attr {
			k := strings.ToLower(strings.TrimSpace(a.Key))
			if _, keep := keptAttrs[k]; !keep {
				continue
			}
			if k == "href" && !isSafeURL(a.Val) {
				continue
			}
			clone.Attr = append(clone.Attr, a)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if child := cleanNode(c); child != nil {
				clone.AppendChild(child)
			}
		}
		return clone
	default:
		clone := &html.Node{Type: n.Type, Data: n.Data, Namespace: n.Namespace}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if child := cleanNode(c); child != nil {
				clone.AppendChild(child)
			}
		}
		return clone
	}
}

func isSafeURL(v string) bool {
	u := strings.TrimSpace(strings.ToLower(v))
	switch {
	case strings.HasPrefix(u, "javascript:"),
		strings.HasPrefix(u, "vbscript:"),
		strings.HasPrefix(u, "data:"):
		return false
	}
	return true
}
