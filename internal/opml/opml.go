// Package opml imports and exports subscription lists. Real-world OPML is
// messy (wrong case attributes, loose entities, odd charsets), so the
// decoder is deliberately forgiving.
package opml

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/feedtray/feedtray/internal/model"
)

// Subscription is one imported outline. Tag carries the enclosing group
// name, if any.
type Subscription struct {
	Title   string
	FeedURL string
	SiteURL string
	Tag     string
}

type opmlDoc struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr,omitempty"`
	Head    opmlHead `xml:"head"`
	Body    opmlBody `xml:"body"`
}

type opmlHead struct {
	Title string `xml:"title,omitempty"`
}

type opmlBody struct {
	Outlines []opmlOutline `xml:"outline"`
}

type opmlOutline struct {
	Text         string        `xml:"text,attr,omitempty"`
	Title        string        `xml:"title,attr,omitempty"`
	Type         string        `xml:"type,attr,omitempty"`
	XMLURL       string        `xml:"xmlUrl,attr,omitempty"`
	XMLURLLower  string        `xml:"xmlurl,attr,omitempty"`
	HTMLURL      string        `xml:"htmlUrl,attr,omitempty"`
	HTMLURLLower string        `xml:"htmlurl,attr,omitempty"`
	Outlines     []opmlOutline `xml:"outline,omitempty"`
}

// Read parses an OPML document from a local path or an http(s) URL.
// Duplicate feed URLs keep their first occurrence.
func Read(path string) ([]Subscription, error) {
	r, err := open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var doc opmlDoc
	decoder := xml.NewDecoder(r)
	decoder.Strict = false
	decoder.Entity = xml.HTMLEntity
	decoder.CharsetReader = charset.NewReaderLabel
	if err := decoder.Decode(&doc); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var subs []Subscription
	var walk func(outlines []opmlOutline, group string)
	walk = func(outlines []opmlOutline, group string) {
		for _, o := range outlines {
			feedURL := o.feedURL()
			if feedURL != "" {
				if _, dup := seen[feedURL]; !dup {
					seen[feedURL] = struct{}{}
					subs = append(subs, Subscription{
						Title:   o.label(),
						FeedURL: feedURL,
						SiteURL: o.siteURL(),
						Tag:     group,
					})
				}
			}
			if len(o.Outlines) > 0 {
				// a feed-less outline with children is a folder
				next := group
				if feedURL == "" {
					next = o.label()
				}
				walk(o.Outlines, next)
			}
		}
	}
	walk(doc.Body.Outlines, "")

	return subs, nil
}

func open(path string) (io.ReadCloser, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		resp, err := http.Get(path)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("fetch %s: %s", path, resp.Status)
		}
		return resp.Body, nil
	}
	return os.Open(path)
}

// Write renders sources as OPML 2.0, nesting tagged sources under one
// folder outline per tag. Input order is preserved within each folder.
func Write(w io.Writer, sources []model.Source) error {
	var top []opmlOutline
	folders := make(map[string]int)

	for _, src := range sources {
		outline := opmlOutline{
			Text:    fallback(strings.TrimSpace(src.Title), src.FeedURL),
			Title:   fallback(strings.TrimSpace(src.Title), src.FeedURL),
			Type:    "rss",
			XMLURL:  src.FeedURL,
			HTMLURL: src.SiteURL,
		}
		if src.Tag == nil || strings.TrimSpace(*src.Tag) == "" {
			top = append(top, outline)
			continue
		}
		tag := strings.TrimSpace(*src.Tag)
		idx, ok := folders[tag]
		if !ok {
			top = append(top, opmlOutline{Text: tag, Title: tag})
			idx = len(top) - 1
			folders[tag] = idx
		}
		top[idx].Outlines = append(top[idx].Outlines, outline)
	}

	doc := opmlDoc{
		Version: "2.0",
		Head:    opmlHead{Title: "feedtray subscriptions"},
		Body:    opmlBody{Outlines: top},
	}

	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Flush()
}

func (o opmlOutline) feedURL() string {
	if v := strings.TrimSpace(o.XMLURL); v != "" {
		return v
	}
	return strings.TrimSpace(o.XMLURLLower)
}

func (o opmlOutline) siteURL() string {
	if v := strings.TrimSpace(o.HTMLURL); v != "" {
		return v
	}
	return strings.TrimSpace(o.HTMLURLLower)
}

func (o opmlOutline) label() string {
	if v := strings.TrimSpace(o.Title); v != "" {
		return v
	}
	return strings.TrimSpace(o.Text)
}

func fallback(v, fb string) string {
	if strings.TrimSpace(v) == "" {
		return fb
	}
	return v
}
