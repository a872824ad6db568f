package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

func (s *Store) AddSource(ctx context.Context, src Source) error {
	if strings.TrimSpace(src.ID) == "" {
		return fmt.Errorf("%w: source id must not be empty", ErrInvalidInput)
	}
	if strings.TrimSpace(src.FeedURL) == "" {
		return fmt.Errorf("%w: feed url must not be empty", ErrInvalidInput)
	}

	createdAt := src.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	var tag any
	if src.Tag != nil {
		tag = *src.Tag
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sources (
			id, title, site_url, feed_url, enabled, refresh_interval_minutes,
			display_order, last_fetched_at, etag, last_modified, last_error,
			consecutive_failures, tag, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		src.ID,
		src.Title,
		nullableString(src.SiteURL),
		src.FeedURL,
		src.Enabled,
		src.RefreshIntervalMinutes,
		src.DisplayOrder,
		timeToDBString(src.LastFetchedAt),
		nullableString(src.ETag),
		nullableString(src.LastModified),
		nullableString(src.LastError),
		src.ConsecutiveFailures,
		tag,
		createdAt.Format(time.RFC3339Nano),
	)
	return err
}

// UpdateSource rewrites every mutable field of the source row. Both the
// refresh pipeline (validators, error streak) and user edits (title, url,
// enabled, interval, tag) go through here.
func (s *Store) UpdateSource(ctx context.Context, src Source) error {
	var tag any
	if src.Tag != nil {
		tag = *src.Tag
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE sources
		SET
			title = ?,
			site_url = ?,
			feed_url = ?,
			enabled = ?,
			refresh_interval_minutes = ?,
			display_order = ?,
			last_fetched_at = ?,
			etag = ?,
			last_modified = ?,
			last_error = ?,
			consecutive_failures = ?,
			tag = ?
		WHERE id = ?
	`,
		src.Title,
		nullableString(src.SiteURL),
		src.FeedURL,
		src.Enabled,
		src.RefreshIntervalMinutes,
		src.DisplayOrder,
		timeToDBString(src.LastFetchedAt),
		nullableString(src.ETag),
		nullableString(src.LastModified),
		nullableString(truncate(src.LastError, 500)),
		src.ConsecutiveFailures,
		tag,
		src.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("source %s: %w", src.ID, ErrNotFound)
	}
	return nil
}

// DeleteSource removes the source; its articles go with it via cascade.
func (s *Store) DeleteSource(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("source %s: %w", id, ErrNotFound)
	}
	return nil
}

// UpdateSourcesOrder rewrites display order from list position, atomically.
func (s *Store) UpdateSourcesOrder(ctx context.Context, ids []string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `UPDATE sources SET display_order = ? WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, id := range ids {
		res, err2 := stmt.ExecContext(ctx, i, id)
		if err2 != nil {
			err = err2
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			err = fmt.Errorf("source %s: %w", id, ErrNotFound)
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) SourceByID(ctx context.Context, id string) (Source, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sourceBaseColumns+` FROM sources WHERE id = ?`, id)
	src, err := scanSourceRow(row)
	if err != nil {
		return Source{}, wrapNotFound("source", err)
	}
	return src, nil
}

func (s *Store) SourceByFeedURL(ctx context.Context, feedURL string) (Source, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sourceBaseColumns+` FROM sources WHERE feed_url = ? ORDER BY created_at LIMIT 1`, feedURL)
	src, err := scanSourceRow(row)
	if err != nil {
		return Source{}, wrapNotFound("source", err)
	}
	return src, nil
}

func (s *Store) AllSources(ctx context.Context) ([]Source, error) {
	return s.querySources(ctx, `SELECT `+sourceBaseColumns+` FROM sources ORDER BY display_order, created_at`)
}

func (s *Store) EnabledSources(ctx context.Context) ([]Source, error) {
	return s.querySources(ctx, `SELECT `+sourceBaseColumns+` FROM sources WHERE enabled = 1 ORDER BY display_order, created_at`)
}

func (s *Store) AllSourcesSortedByName(ctx context.Context) ([]Source, error) {
	return s.querySources(ctx, `SELECT `+sourceBaseColumns+` FROM sources ORDER BY title COLLATE NOCASE, created_at`)
}

func (s *Store) querySources(ctx context.Context, query string, args ...any) ([]Source, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sources := make([]Source, 0)
	for rows.Next() {
		src, err := scanSourceRow(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// AllSourcesWithCounts lists every source with unread/total article counts,
// ordered for display.
func (s *Store) AllSourcesWithCounts(ctx context.Context) ([]Source, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			s.id, s.title, s.site_url, s.feed_url, s.enabled, s.refresh_interval_minutes,
			s.display_order, s.last_fetched_at, s.etag, s.last_modified, s.last_error,
			s.consecutive_failures, s.tag, s.created_at,
			COALESCE(SUM(CASE WHEN a.id IS NOT NULL AND a.is_read = 0 THEN 1 ELSE 0 END), 0) AS unread_count,
			COUNT(a.id) AS total_count
		FROM sources s
		LEFT JOIN articles a ON a.source_id = s.id
		GROUP BY s.id
		ORDER BY s.display_order, s.created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sources := make([]Source, 0)
	for rows.Next() {
		src, err := scanSourceWithCountsRow(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// AllTags lists distinct non-null tags, case-insensitively sorted.
func (s *Store) AllTags(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT tag FROM sources
		WHERE tag IS NOT NULL
		ORDER BY tag COLLATE NOCASE
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tags := make([]string, 0)
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// SourcesGroupedByTag groups sources by tag for display: tagged groups first
// in case-insensitive tag order, the uncategorized (NULL tag) group last.
// Empty groups are omitted. Within a group sources keep display order.
func (s *Store) SourcesGroupedByTag(ctx context.Context) ([]TagGroup, error) {
	tags, err := s.AllTags(ctx)
	if err != nil {
		return nil, err
	}

	groups := make([]TagGroup, 0, len(tags)+1)
	for _, tag := range tags {
		sources, err := s.querySources(ctx,
			`SELECT `+sourceBaseColumns+` FROM sources WHERE tag = ? ORDER BY display_order, created_at`, tag)
		if err != nil {
			return nil, err
		}
		if len(sources) == 0 {
			continue
		}
		t := tag
		groups = append(groups, TagGroup{Tag: &t, Sources: sources})
	}

	uncategorized, err := s.querySources(ctx,
		`SELECT `+sourceBaseColumns+` FROM sources WHERE tag IS NULL ORDER BY display_order, created_at`)
	if err != nil {
		return nil, err
	}
	if len(uncategorized) > 0 {
		groups = append(groups, TagGroup{Tag: nil, Sources: uncategorized})
	}
	return groups, nil
}

// sourceIDsForTag resolves the set of source ids in a tag group; a nil tag
// selects the uncategorized group.
func (s *Store) sourceIDsForTag(ctx context.Context, tag *string) ([]string, error) {
	var rows *sql.Rows
	var err error
	if tag != nil {
		rows, err = s.db.QueryContext(ctx, `SELECT id FROM sources WHERE tag = ?`, *tag)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT id FROM sources WHERE tag IS NULL`)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
