// Package manager coordinates refresh passes: fetch, parse, persist, and
// the resulting notifications and change events. It owns the "is a refresh
// running" state so concurrent triggers collapse into one pass.
package manager

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/feedtray/feedtray/internal/fetch"
	"github.com/feedtray/feedtray/internal/parse"
)

var ErrRefreshInProgress = errors.New("refresh already in progress")

// Batch is what a refresh pass hands to the Notifier: every article first
// seen during the pass, newest first, plus the distinct titles of the
// sources that contributed them.
type Batch struct {
	Articles     []Article
	SourceTitles []string
}

// Notifier receives one Batch per refresh pass that produced new articles.
type Notifier interface {
	Notify(ctx context.Context, batch Batch)
}

// Listener is invoked after anything that can change unread state.
type Listener func()

type Manager struct {
	store    *Store
	client   *fetch.Client
	parser   *parse.Parser
	cfg      Config
	notifier Notifier

	mu         sync.Mutex
	refreshing bool
	inFlight   map[string]struct{}
	listeners  []Listener
}

func New(st *Store, client *fetch.Client, parser *parse.Parser, cfg Config, notifier Notifier) *Manager {
	return &Manager{
		store:    st,
		client:   client,
		parser:   parser,
		cfg:      cfg,
		notifier: notifier,
		inFlight: make(map[string]struct{}),
	}
}

// OnChange registers a listener. Listeners fire once per refresh pass and
// once per mark-read action routed through the manager.
func (m *Manager) OnChange(fn Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *Manager) Refreshing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshing
}

// RefreshAll runs one full pass over the enabled sources. A second call
// while a pass is running returns ErrRefreshInProgress instead of queueing.
// State is persisted for every source, success or failure; one broken
// source never stops the rest.
func (m *Manager) RefreshAll(ctx context.Context) (RefreshReport, error) {
	m.mu.Lock()
	if m.refreshing {
		m.mu.Unlock()
		return RefreshReport{}, ErrRefreshInProgress
	}
	m.refreshing = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.refreshing = false
		m.mu.Unlock()
		m.fireChange()
	}()

	report := RefreshReport{StartedAt: time.Now()}

	sources, err := m.store.EnabledSources(ctx)
	if err != nil {
		report.EndedAt = time.Now()
		return report, err
	}
	if len(sources) == 0 {
		report.EndedAt = time.Now()
		return report, nil
	}

	var fresh []Article
	for _, outcome := range m.client.FetchAll(ctx, sources) {
		result, newArticles := m.applyOutcome(ctx, outcome)
		report.Results = append(report.Results, result)
		fresh = append(fresh, newArticles...)
	}

	m.notify(ctx, fresh)
	report.EndedAt = time.Now()
	return report, nil
}

// RefreshSource refreshes one source, bypassing its enabled flag: an
// explicit request wins over the schedule. Concurrent refreshes of the
// same source collapse.
func (m *Manager) RefreshSource(ctx context.Context, id string) (RefreshResult, error) {
	m.mu.Lock()
	if _, busy := m.inFlight[id]; busy || m.refreshing {
		m.mu.Unlock()
		return RefreshResult{}, ErrRefreshInProgress
	}
	m.inFlight[id] = struct{}{}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.inFlight, id)
		m.mu.Unlock()
		m.fireChange()
	}()

	src, err := m.store.SourceByID(ctx, id)
	if err != nil {
		return RefreshResult{}, err
	}

	result, err := m.client.Fetch(ctx, src.FeedURL, src.ETag, src.LastModified)
	res, fresh := m.applyOutcome(ctx, fetch.Outcome{Source: src, Result: result, Err: err})
	m.notify(ctx, fresh)
	return res, nil
}

// applyOutcome runs the post-fetch half of the pipeline for one source and
// persists the source's updated state regardless of how the fetch went.
func (m *Manager) applyOutcome(ctx context.Context, o fetch.Outcome) (RefreshResult, []Article) {
	src := o.Source
	now := time.Now().UTC()

	result := RefreshResult{
		SourceID:    src.ID,
		SourceTitle: src.Title,
		FeedURL:     src.FeedURL,
	}
	if result.SourceTitle == "" {
		result.SourceTitle = src.FeedURL
	}

	var fresh []Article
	switch {
	case o.Err != nil:
		src.MarkFailure(o.Err.Error(), now)
		result.Error = o.Err.Error()

	case o.Result.Status == fetch.StatusNotModified:
		// keep the validators that earned the 304
		src.MarkSuccess(src.ETag, src.LastModified, now)
		result.NotModified = true

	default:
		articles, err := m.parser.Parse(o.Result.Body, src.ID)
		if err != nil {
			src.MarkFailure(err.Error(), now)
			result.Error = err.Error()
			break
		}

		newCount, newArticles, err := m.store.SaveArticles(ctx, articles, src.ID)
		if err != nil {
			src.MarkFailure(err.Error(), now)
			result.Error = err.Error()
			break
		}

		src.MarkSuccess(o.Result.ETag, o.Result.LastModified, now)
		if strings.TrimSpace(src.Title) == "" {
			if title := m.parser.FeedTitle(o.Result.Body); title != "" {
				src.Title = title
				result.SourceTitle = title
			}
		}
		// the parser only knows the source id; the batch needs the name
		for i := range newArticles {
			newArticles[i].SourceTitle = result.SourceTitle
		}
		result.NewArticles = newCount
		fresh = newArticles
	}

	if err := m.store.UpdateSource(ctx, src); err != nil && result.Error == "" {
		result.Error = err.Error()
	}
	return result, fresh
}

// notify delivers one batch for the pass. Nothing is sent when the pass
// produced no new articles or notifications are disabled.
func (m *Manager) notify(ctx context.Context, fresh []Article) {
	if len(fresh) == 0 || !m.cfg.EnableNotifications || m.notifier == nil {
		return
	}

	sort.SliceStable(fresh, func(i, j int) bool {
		return fresh[i].DisplayDate().After(fresh[j].DisplayDate())
	})

	seen := make(map[string]struct{})
	titles := make([]string, 0)
	for _, a := range fresh {
		if _, ok := seen[a.SourceTitle]; ok {
			continue
		}
		seen[a.SourceTitle] = struct{}{}
		titles = append(titles, a.SourceTitle)
	}

	m.notifier.Notify(ctx, Batch{Articles: fresh, SourceTitles: titles})
}

func (m *Manager) fireChange() {
	m.mu.Lock()
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// MarkRead, MarkAllRead, and MarkAllReadForTag mirror the store operations
// but fire change listeners, so UIs routed through the manager stay
// consistent without polling.
func (m *Manager) MarkRead(ctx context.Context, articleID string) error {
	if err := m.store.MarkRead(ctx, articleID); err != nil {
		return err
	}
	m.fireChange()
	return nil
}

func (m *Manager) MarkAllRead(ctx context.Context, sourceID string) error {
	if err := m.store.MarkAllRead(ctx, sourceID); err != nil {
		return err
	}
	m.fireChange()
	return nil
}

func (m *Manager) MarkAllReadForTag(ctx context.Context, tag *string) error {
	if err := m.store.MarkAllReadForTag(ctx, tag); err != nil {
		return err
	}
	m.fireChange()
	return nil
}

// Run drives periodic refreshes until ctx is cancelled. The first pass
// starts immediately; afterwards the global interval applies. A pass
// already in progress simply skips the tick.
func (m *Manager) Run(ctx context.Context) error {
	interval := m.cfg.RefreshInterval
	if interval <= 0 {
		interval = 30 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := m.RefreshAll(ctx); err != nil && !errors.Is(err, ErrRefreshInProgress) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
