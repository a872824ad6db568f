package store

import (
	"database/sql"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

const sourceBaseColumns = `id, title, site_url, feed_url, enabled, refresh_interval_minutes,
	display_order, last_fetched_at, etag, last_modified, last_error, consecutive_failures, tag, created_at`

func scanSourceRow(scanner rowScanner) (Source, error) {
	var s Source
	var siteURL, lastFetched, etag, lastMod, lastErr, tag sql.NullString
	var createdAt string
	if err := scanner.Scan(
		&s.ID,
		&s.Title,
		&siteURL,
		&s.FeedURL,
		&s.Enabled,
		&s.RefreshIntervalMinutes,
		&s.DisplayOrder,
		&lastFetched,
		&etag,
		&lastMod,
		&lastErr,
		&s.ConsecutiveFailures,
		&tag,
		&createdAt,
	); err != nil {
		return Source{}, err
	}
	s.SiteURL = siteURL.String
	s.ETag = etag.String
	s.LastModified = lastMod.String
	s.LastError = lastErr.String
	if tag.Valid {
		v := tag.String
		s.Tag = &v
	}
	if t, err := parseDBTime(createdAt); err == nil {
		s.CreatedAt = t
	}
	if lastFetched.Valid {
		if t, err := parseDBTime(lastFetched.String); err == nil {
			s.LastFetchedAt = &t
		}
	}
	return s, nil
}

func scanSourceWithCountsRow(scanner rowScanner) (Source, error) {
	var s Source
	var siteURL, lastFetched, etag, lastMod, lastErr, tag sql.NullString
	var createdAt string
	if err := scanner.Scan(
		&s.ID,
		&s.Title,
		&siteURL,
		&s.FeedURL,
		&s.Enabled,
		&s.RefreshIntervalMinutes,
		&s.DisplayOrder,
		&lastFetched,
		&etag,
		&lastMod,
		&lastErr,
		&s.ConsecutiveFailures,
		&tag,
		&createdAt,
		&s.UnreadCount,
		&s.TotalCount,
	); err != nil {
		return Source{}, err
	}
	s.SiteURL = siteURL.String
	s.ETag = etag.String
	s.LastModified = lastMod.String
	s.LastError = lastErr.String
	if tag.Valid {
		v := tag.String
		s.Tag = &v
	}
	if t, err := parseDBTime(createdAt); err == nil {
		s.CreatedAt = t
	}
	if lastFetched.Valid {
		if t, err := parseDBTime(lastFetched.String); err == nil {
			s.LastFetchedAt = &t
		}
	}
	return s, nil
}

const articleSelectColumns = `
	a.id, a.source_id, COALESCE(NULLIF(s.title, ''), s.feed_url), a.guid,
	a.link, a.title, a.published_at, a.summary, a.is_read, a.first_seen_at, a.dedupe_key
`

func scanArticle(scanner rowScanner) (Article, error) {
	var a Article
	var sourceTitle, guid, summary, publishedAt sql.NullString
	var firstSeenAt string
	if err := scanner.Scan(
		&a.ID,
		&a.SourceID,
		&sourceTitle,
		&guid,
		&a.Link,
		&a.Title,
		&publishedAt,
		&summary,
		&a.IsRead,
		&firstSeenAt,
		&a.DedupeKey,
	); err != nil {
		return Article{}, err
	}
	a.SourceTitle = sourceTitle.String
	a.GUID = guid.String
	a.Summary = summary.String
	if publishedAt.Valid {
		if t, err := parseDBTime(publishedAt.String); err == nil {
			a.PublishedAt = &t
		}
	}
	if t, err := parseDBTime(firstSeenAt); err == nil {
		a.FirstSeenAt = t
	}
	return a, nil
}
