// Package parse turns raw feed payloads into normalized articles. Format
// detection looks at the payload itself rather than trusting Content-Type,
// and individual broken items are dropped instead of failing the document.
package parse

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"
	feedjson "github.com/mmcdole/gofeed/json"

	"github.com/feedtray/feedtray/internal/model"
)

type Format string

const (
	FormatRSS     Format = "rss"
	FormatAtom    Format = "atom"
	FormatJSON    Format = "json"
	FormatUnknown Format = "unknown"
)

type ErrorKind string

const (
	KindUnrecognizedFormat ErrorKind = "unrecognized format"
	KindMalformed          ErrorKind = "malformed"
)

// Error is a whole-document parse failure. Per-item problems never surface
// here; bad items are silently dropped.
type Error struct {
	Kind   ErrorKind
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Kind) + " feed"
	}
	return fmt.Sprintf("%s feed: %s", e.Kind, e.Detail)
}

const untitledPlaceholder = "(untitled)"

// DetectFormat sniffs the payload format from up to the first 1024 bytes.
// The window is deliberately larger than typical sniffers use: big feeds
// can push their <rss>/<feed> declaration past a short prefix with comments
// and processing instructions.
func DetectFormat(data []byte) Format {
	prefix := data
	if len(prefix) > 1024 {
		prefix = prefix[:1024]
	}
	head := strings.ToLower(string(prefix))
	if strings.HasPrefix(strings.TrimSpace(head), "{") {
		return FormatJSON
	}
	if strings.Contains(head, "<rss") {
		return FormatRSS
	}
	if strings.Contains(head, "<feed") {
		return FormatAtom
	}
	return FormatUnknown
}

type Parser struct {
	renderer *Renderer
}

func NewParser() *Parser {
	return &Parser{renderer: NewRenderer()}
}

// Parse converts a feed payload into candidate articles for one source.
// Each surviving item gets a freshly computed dedupe key and first-seen
// time; storage reconciles those against existing rows on merge.
func (p *Parser) Parse(data []byte, sourceID string) ([]model.Article, error) {
	switch DetectFormat(data) {
	case FormatJSON:
		return p.parseJSONFeed(data, sourceID)
	case FormatRSS, FormatAtom:
		return p.parseXMLFeed(data, sourceID)
	default:
		return nil, &Error{Kind: KindUnrecognizedFormat}
	}
}

// parseXMLFeed handles RSS and Atom. gofeed's atom translator already
// implements the alternate-link selection rule (rel="alternate" first, then
// the first link present), so both formats normalize the same way here:
// items without a resolvable link are dropped, empty titles get a
// placeholder, and a missing guid defaults to the link.
func (p *Parser) parseXMLFeed(data []byte, sourceID string) ([]model.Article, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, &Error{Kind: KindMalformed, Detail: err.Error()}
	}

	articles := make([]model.Article, 0, len(feed.Items))
	for _, item := range feed.Items {
		link := strings.TrimSpace(item.Link)
		if link == "" {
			continue
		}

		title := strings.TrimSpace(item.Title)
		if title == "" {
			title = untitledPlaceholder
		}
		guid := strings.TrimSpace(item.GUID)
		if guid == "" {
			guid = link
		}

		published := item.PublishedParsed
		if published == nil {
			published = item.UpdatedParsed
		}

		summary := strings.TrimSpace(item.Description)
		if summary == "" {
			summary = strings.TrimSpace(item.Content)
		}

		articles = append(articles, model.NewArticle(
			sourceID, guid, link, title, published, p.summarize(summary)))
	}
	return articles, nil
}

// parseJSONFeed handles JSON Feed via gofeed's json subpackage, which keeps
// external_url visible (the generic translator collapses it away). Items
// lacking both url and external_url are dropped.
func (p *Parser) parseJSONFeed(data []byte, sourceID string) ([]model.Article, error) {
	jp := &feedjson.Parser{}
	feed, err := jp.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, &Error{Kind: KindMalformed, Detail: err.Error()}
	}

	articles := make([]model.Article, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		link := strings.TrimSpace(item.URL)
		if link == "" {
			link = strings.TrimSpace(item.ExternalURL)
		}
		if link == "" {
			continue
		}

		title := strings.TrimSpace(item.Title)
		if title == "" {
			title = untitledPlaceholder
		}

		var published *time.Time
		if ds := strings.TrimSpace(item.DatePublished); ds != "" {
			if t, err := dateparse.ParseAny(ds); err == nil {
				utc := t.UTC()
				published = &utc
			}
		}

		summary := strings.TrimSpace(item.Summary)
		if summary == "" {
			summary = strings.TrimSpace(item.ContentText)
		}

		articles = append(articles, model.NewArticle(
			sourceID, strings.TrimSpace(item.ID), link, title, published, p.summarize(summary)))
	}
	return articles, nil
}

// FeedTitle extracts the feed-level title, used to auto-title sources whose
// title the user left blank. Returns "" when the payload has none.
func (p *Parser) FeedTitle(data []byte) string {
	switch DetectFormat(data) {
	case FormatJSON:
		jp := &feedjson.Parser{}
		feed, err := jp.Parse(bytes.NewReader(data))
		if err != nil {
			return ""
		}
		return strings.TrimSpace(feed.Title)
	case FormatRSS, FormatAtom:
		feed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
		if err != nil {
			return ""
		}
		return strings.TrimSpace(feed.Title)
	default:
		return ""
	}
}

func (p *Parser) summarize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	raw = SanitizeHTML(raw)
	md := p.renderer.HTMLToMarkdown(raw)
	return compactText(md, 280)
}
