package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

type OutputFormat string

const (
	OutputTable OutputFormat = "table"
	OutputJSON  OutputFormat = "json"
	OutputWide  OutputFormat = "wide"
)

// Source is a subscribed feed endpoint with its own refresh cadence and
// error history.
type Source struct {
	ID                     string     `json:"id"`
	Title                  string     `json:"title"`
	SiteURL                string     `json:"site_url,omitempty"`
	FeedURL                string     `json:"feed_url"`
	Enabled                bool       `json:"enabled"`
	RefreshIntervalMinutes int        `json:"refresh_interval_minutes"`
	DisplayOrder           int        `json:"display_order"`
	LastFetchedAt          *time.Time `json:"last_fetched_at,omitempty"`
	ETag                   string     `json:"etag,omitempty"`
	LastModified           string     `json:"last_modified,omitempty"`
	LastError              string     `json:"last_error,omitempty"`
	ConsecutiveFailures    int        `json:"consecutive_failures"`
	Tag                    *string    `json:"tag,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UnreadCount            int        `json:"unread_count"`
	TotalCount             int        `json:"total_count"`
}

// Article is one normalized entry produced by parsing a source's feed payload.
type Article struct {
	ID          string     `json:"id"`
	SourceID    string     `json:"source_id"`
	SourceTitle string     `json:"source_title,omitempty"`
	GUID        string     `json:"guid,omitempty"`
	Link        string     `json:"link"`
	Title       string     `json:"title"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Summary     string     `json:"summary,omitempty"`
	IsRead      bool       `json:"is_read"`
	FirstSeenAt time.Time  `json:"first_seen_at"`
	DedupeKey   string     `json:"-"`
}

// NewArticle builds an article with a fresh id, first-seen timestamp
// and dedupe key. The key is computed once here and never recomputed
// after the article has been persisted.
func NewArticle(sourceID, guid, link, title string, publishedAt *time.Time, summary string) Article {
	return Article{
		ID:          uuid.NewString(),
		SourceID:    sourceID,
		GUID:        guid,
		Link:        link,
		Title:       title,
		PublishedAt: publishedAt,
		Summary:     summary,
		FirstSeenAt: time.Now().UTC(),
		DedupeKey:   DedupeKey(guid, link, title, publishedAt, sourceID),
	}
}

// DedupeKey derives the identity string used to recognize the same article
// across repeated fetches. Priority: guid, then link, then a SHA-256 hash of
// title, published date and source id. The hash fallback means even articles
// from malformed feeds lacking both identifiers still dedupe on
// title+time+source.
func DedupeKey(guid, link, title string, publishedAt *time.Time, sourceID string) string {
	if guid != "" {
		return guid
	}
	if link != "" {
		return link
	}
	stamp := ""
	if publishedAt != nil {
		stamp = publishedAt.UTC().Format(time.RFC3339)
	}
	sum := sha256.Sum256([]byte(title + "-" + stamp + "-" + sourceID))
	return hex.EncodeToString(sum[:])
}

// DisplayDate is the effective sort timestamp: published date when the feed
// supplied one, else the first-seen date.
func (a Article) DisplayDate() time.Time {
	if a.PublishedAt != nil {
		return *a.PublishedAt
	}
	return a.FirstSeenAt
}

// NewSource builds an enabled source with a fresh id.
func NewSource(title, feedURL, siteURL string) Source {
	return Source{
		ID:        uuid.NewString(),
		Title:     title,
		SiteURL:   siteURL,
		FeedURL:   feedURL,
		Enabled:   true,
		CreatedAt: time.Now().UTC(),
	}
}

// MarkSuccess records a successful fetch at now. Both validators are
// overwritten with whatever the server sent, even when that is empty; the
// error fields are cleared in the same transition.
func (s *Source) MarkSuccess(etag, lastModified string, now time.Time) {
	t := now.UTC()
	s.LastFetchedAt = &t
	s.ETag = etag
	s.LastModified = lastModified
	s.LastError = ""
	s.ConsecutiveFailures = 0
}

// MarkFailure records a failed fetch at now. Validators are left untouched:
// stale cache hints are still useful on the next attempt.
func (s *Source) MarkFailure(message string, now time.Time) {
	t := now.UTC()
	s.LastFetchedAt = &t
	s.LastError = message
	s.ConsecutiveFailures++
}

// BackoffMultiplier is the exponential factor applied to a source's refresh
// interval after consecutive failures, capped at 8x.
func BackoffMultiplier(consecutiveFailures int) int {
	if consecutiveFailures <= 0 {
		return 1
	}
	if consecutiveFailures >= 3 {
		return 8
	}
	return 1 << consecutiveFailures
}

// NextRefreshAt returns the advisory next-refresh time, or nil when the
// source has never been fetched. The effective interval is the source's own
// override when positive, else the global interval, stretched by the backoff
// multiplier.
func (s *Source) NextRefreshAt(globalIntervalMinutes int) *time.Time {
	if s.LastFetchedAt == nil {
		return nil
	}
	interval := s.RefreshIntervalMinutes
	if interval <= 0 {
		interval = globalIntervalMinutes
	}
	next := s.LastFetchedAt.Add(time.Duration(interval*BackoffMultiplier(s.ConsecutiveFailures)) * time.Minute)
	return &next
}

// RefreshResult is the outcome of refreshing one source.
type RefreshResult struct {
	SourceID    string `json:"source_id"`
	SourceTitle string `json:"source_title"`
	FeedURL     string `json:"feed_url"`
	NewArticles int    `json:"new_articles"`
	NotModified bool   `json:"not_modified"`
	Error       string `json:"error,omitempty"`
}

// RefreshReport aggregates one refresh pass.
type RefreshReport struct {
	StartedAt time.Time       `json:"started_at"`
	EndedAt   time.Time       `json:"ended_at"`
	Results   []RefreshResult `json:"results"`
}

// ArticleListOptions filters and limits article listings. UnreadFirst
// sorts unread rows ahead of read ones before the date ordering applies.
type ArticleListOptions struct {
	SourceID    string
	Limit       int
	UnreadOnly  bool
	UnreadFirst bool
}

// TagGroup is one group in the tag-grouped source listing. A nil Tag is the
// uncategorized group.
type TagGroup struct {
	Tag     *string  `json:"tag"`
	Sources []Source `json:"sources"`
}
