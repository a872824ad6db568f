package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SaveArticles runs the dedup-aware merge for one source inside a single
// write transaction. For each candidate it looks up the existing row by
// (source_id, dedupe_key): when found, the row keeps its id, read flag and
// first-seen time while title, link, summary, guid and published date are
// refreshed; when missing, the candidate is inserted as new. Returns the
// number of new articles and the new articles themselves.
func (s *Store) SaveArticles(ctx context.Context, articles []Article, sourceID string) (newCount int, newArticles []Article, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	lookup, err := tx.PrepareContext(ctx,
		`SELECT id, is_read, first_seen_at FROM articles WHERE source_id = ? AND dedupe_key = ?`)
	if err != nil {
		return 0, nil, err
	}
	defer lookup.Close()

	update, err := tx.PrepareContext(ctx, `
		UPDATE articles
		SET guid = ?, link = ?, title = ?, published_at = ?, summary = ?
		WHERE id = ?
	`)
	if err != nil {
		return 0, nil, err
	}
	defer update.Close()

	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO articles (
			id, source_id, guid, link, title, published_at, summary,
			is_read, first_seen_at, dedupe_key
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, nil, err
	}
	defer insert.Close()

	newArticles = make([]Article, 0)
	for _, a := range articles {
		var existingID string
		var existingRead bool
		var existingFirstSeen string
		err = lookup.QueryRowContext(ctx, sourceID, a.DedupeKey).Scan(&existingID, &existingRead, &existingFirstSeen)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			err = nil
			if _, err = insert.ExecContext(ctx,
				a.ID,
				sourceID,
				nullableString(a.GUID),
				a.Link,
				a.Title,
				timeToDBString(a.PublishedAt),
				nullableString(a.Summary),
				a.IsRead,
				a.FirstSeenAt.UTC().Format(time.RFC3339Nano),
				a.DedupeKey,
			); err != nil {
				return 0, nil, err
			}
			a.SourceID = sourceID
			newArticles = append(newArticles, a)
			newCount++
		case err != nil:
			return 0, nil, err
		default:
			// existing row: id, is_read and first_seen_at stay untouched
			if _, err = update.ExecContext(ctx,
				nullableString(a.GUID),
				a.Link,
				a.Title,
				timeToDBString(a.PublishedAt),
				nullableString(a.Summary),
				existingID,
			); err != nil {
				return 0, nil, err
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, nil, err
	}
	return newCount, newArticles, nil
}

// Articles lists articles newest-first by display date: rows with a published
// date come before dateless rows, then published date descending, then
// first-seen descending. UnreadFirst puts unread rows ahead of all of that.
func (s *Store) Articles(ctx context.Context, opts ArticleListOptions) ([]Article, error) {
	where := make([]string, 0, 2)
	args := make([]any, 0, 3)
	if opts.SourceID != "" {
		where = append(where, "a.source_id = ?")
		args = append(args, opts.SourceID)
	}
	if opts.UnreadOnly {
		where = append(where, "a.is_read = 0")
	}

	query := `SELECT ` + articleSelectColumns + `
		FROM articles a
		JOIN sources s ON s.id = a.source_id`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	order := `CASE WHEN a.published_at IS NULL THEN 1 ELSE 0 END, a.published_at DESC, a.first_seen_at DESC`
	if opts.UnreadFirst {
		order = `a.is_read ASC, ` + order
	}
	query += ` ORDER BY ` + order
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	articles := make([]Article, 0)
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

func (s *Store) ArticleByID(ctx context.Context, id string) (Article, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+articleSelectColumns+`
		FROM articles a
		JOIN sources s ON s.id = a.source_id
		WHERE a.id = ?
	`, id)
	a, err := scanArticle(row)
	if err != nil {
		return Article{}, wrapNotFound("article", err)
	}
	return a, nil
}

func (s *Store) MarkRead(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE articles SET is_read = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("article %s: %w", id, ErrNotFound)
	}
	return nil
}

// MarkAllRead marks every article read, or only one source's when sourceID
// is non-empty.
func (s *Store) MarkAllRead(ctx context.Context, sourceID string) error {
	if sourceID != "" {
		_, err := s.db.ExecContext(ctx, `UPDATE articles SET is_read = 1 WHERE source_id = ?`, sourceID)
		return err
	}
	_, err := s.db.ExecContext(ctx, `UPDATE articles SET is_read = 1`)
	return err
}

// MarkAllReadForTag marks all articles of a tag group read; nil tag selects
// the uncategorized group.
func (s *Store) MarkAllReadForTag(ctx context.Context, tag *string) error {
	ids, err := s.sourceIDsForTag(ctx, tag)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	placeholders := make([]string, 0, len(ids))
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		placeholders = append(placeholders, "?")
		args = append(args, id)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE articles SET is_read = 1 WHERE source_id IN (`+strings.Join(placeholders, ",")+`)`,
		args...)
	return err
}

// UnreadCount counts unread articles, optionally for one source.
func (s *Store) UnreadCount(ctx context.Context, sourceID string) (int, error) {
	var count int
	var err error
	if sourceID != "" {
		err = s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM articles WHERE is_read = 0 AND source_id = ?`, sourceID).Scan(&count)
	} else {
		err = s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM articles WHERE is_read = 0`).Scan(&count)
	}
	return count, err
}

// UnreadCountForTag counts unread articles in a tag group; nil tag selects
// the uncategorized group.
func (s *Store) UnreadCountForTag(ctx context.Context, tag *string) (int, error) {
	ids, err := s.sourceIDsForTag(ctx, tag)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := make([]string, 0, len(ids))
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		placeholders = append(placeholders, "?")
		args = append(args, id)
	}
	var count int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM articles WHERE is_read = 0 AND source_id IN (`+strings.Join(placeholders, ",")+`)`,
		args...).Scan(&count)
	return count, err
}
