package manager

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/feedtray/feedtray/internal/config"
	"github.com/feedtray/feedtray/internal/fetch"
	"github.com/feedtray/feedtray/internal/model"
	"github.com/feedtray/feedtray/internal/parse"
	"github.com/feedtray/feedtray/internal/store"
)

type testNotifier struct {
	mu      sync.Mutex
	batches []Batch
}

func (n *testNotifier) Notify(ctx context.Context, batch Batch) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.batches = append(n.batches, batch)
}

func (n *testNotifier) all() []Batch {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Batch(nil), n.batches...)
}

func newTestManager(t *testing.T, mutate func(*config.Config)) (*Manager, *store.Store, *testNotifier) {
	t.Helper()
	cfg := config.Config{
		DBPath:              filepath.Join(t.TempDir(), "feedtray.db"),
		RefreshInterval:     30 * time.Minute,
		FetchConcurrency:    4,
		HTTPTimeout:         5 * time.Second,
		MaxResponseBytes:    1 << 20,
		EnableNotifications: true,
		UserAgent:           "feedtray-test/1.0",
	}
	if mutate != nil {
		mutate(&cfg)
	}

	db, err := store.OpenDB(cfg.DBPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	st := store.NewStore(db)
	notifier := &testNotifier{}
	m := New(st, fetch.NewClient(cfg), parse.NewParser(), cfg, notifier)
	return m, st, notifier
}

func rssBody(feedTitle string, items ...string) string {
	body := `<?xml version="1.0"?><rss version="2.0"><channel><title>` + feedTitle + `</title>`
	for _, item := range items {
		body += item
	}
	return body + `</channel></rss>`
}

func rssItem(guid, title, pubDate string) string {
	item := fmt.Sprintf(`<item><guid>%s</guid><title>%s</title><link>https://example.com/%s</link>`, guid, title, guid)
	if pubDate != "" {
		item += "<pubDate>" + pubDate + "</pubDate>"
	}
	return item + "</item>"
}

func addSource(t *testing.T, st *store.Store, title, feedURL string) model.Source {
	t.Helper()
	src := model.NewSource(title, feedURL, "")
	if err := st.AddSource(context.Background(), src); err != nil {
		t.Fatalf("add source: %v", err)
	}
	return src
}

func TestRefreshAll_FailureIsolation(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rssBody("Feed A", rssItem("a1", "One", ""))))
	})
	mux.HandleFunc("/bad", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rssBody("Feed B", rssItem("b1", "Two", ""), rssItem("b2", "Three", ""))))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	m, st, _ := newTestManager(t, nil)
	ctx := context.Background()

	a := addSource(t, st, "A", srv.URL+"/a")
	bad := addSource(t, st, "Bad", srv.URL+"/bad")
	b := addSource(t, st, "B", srv.URL+"/b")

	report, err := m.RefreshAll(ctx)
	if err != nil {
		t.Fatalf("refresh all: %v", err)
	}
	if len(report.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(report.Results))
	}

	byID := map[string]model.RefreshResult{}
	for _, r := range report.Results {
		byID[r.SourceID] = r
	}
	if byID[a.ID].NewArticles != 1 || byID[a.ID].Error != "" {
		t.Errorf("source A result: %+v", byID[a.ID])
	}
	if byID[b.ID].NewArticles != 2 {
		t.Errorf("source B result: %+v", byID[b.ID])
	}
	if byID[bad.ID].Error != "http 500" {
		t.Errorf("bad source error = %q", byID[bad.ID].Error)
	}

	stored, err := st.SourceByID(ctx, bad.ID)
	if err != nil {
		t.Fatalf("load bad source: %v", err)
	}
	if stored.ConsecutiveFailures != 1 || stored.LastError != "http 500" {
		t.Errorf("bad source state: failures=%d lastError=%q", stored.ConsecutiveFailures, stored.LastError)
	}

	healthy, err := st.SourceByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("load source A: %v", err)
	}
	if healthy.ConsecutiveFailures != 0 || healthy.LastError != "" || healthy.LastFetchedAt == nil {
		t.Errorf("healthy source state: %+v", healthy)
	}

	articles, err := st.Articles(ctx, model.ArticleListOptions{})
	if err != nil {
		t.Fatalf("list articles: %v", err)
	}
	if len(articles) != 3 {
		t.Errorf("expected 3 articles total, got %d", len(articles))
	}
}

func TestRefreshAll_Reentrancy(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rssBody("Slow")))
	}))
	defer srv.Close()

	m, st, _ := newTestManager(t, nil)
	addSource(t, st, "Slow", srv.URL)

	done := make(chan error, 1)
	go func() {
		_, err := m.RefreshAll(context.Background())
		done <- err
	}()

	<-started
	if !m.Refreshing() {
		t.Error("expected refreshing flag while a pass is running")
	}
	if _, err := m.RefreshAll(context.Background()); !errors.Is(err, ErrRefreshInProgress) {
		t.Errorf("second pass: expected ErrRefreshInProgress, got %v", err)
	}
	if _, err := m.RefreshSource(context.Background(), "whatever"); !errors.Is(err, ErrRefreshInProgress) {
		t.Errorf("single refresh during a pass: expected ErrRefreshInProgress, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if m.Refreshing() {
		t.Error("refreshing flag should clear after the pass")
	}
}

func TestRefreshAll_Notifications(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rssBody("Older Feed",
			rssItem("o1", "Old", "Mon, 02 Jan 2023 10:00:00 GMT"))))
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rssBody("Newer Feed",
			rssItem("n1", "New", "Tue, 03 Jan 2023 10:00:00 GMT"))))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	m, st, notifier := newTestManager(t, nil)
	ctx := context.Background()

	addSource(t, st, "Older Feed", srv.URL+"/old")
	addSource(t, st, "Newer Feed", srv.URL+"/new")

	if _, err := m.RefreshAll(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	batches := notifier.all()
	if len(batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(batches))
	}
	batch := batches[0]
	if len(batch.Articles) != 2 {
		t.Fatalf("batch articles = %d", len(batch.Articles))
	}
	if batch.Articles[0].Title != "New" {
		t.Errorf("batch should be newest first, got %q", batch.Articles[0].Title)
	}
	want := []string{"Newer Feed", "Older Feed"}
	if len(batch.SourceTitles) != 2 || batch.SourceTitles[0] != want[0] || batch.SourceTitles[1] != want[1] {
		t.Errorf("source titles = %v, want %v", batch.SourceTitles, want)
	}

	// second pass finds nothing new, so no batch
	if _, err := m.RefreshAll(ctx); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	if got := len(notifier.all()); got != 1 {
		t.Errorf("expected no new batch on an unchanged pass, got %d total", got)
	}
}

func TestRefreshAll_NotificationsDisabled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rssBody("Feed", rssItem("x1", "X", ""))))
	}))
	defer srv.Close()

	m, st, notifier := newTestManager(t, func(cfg *config.Config) { cfg.EnableNotifications = false })
	addSource(t, st, "Feed", srv.URL)

	if _, err := m.RefreshAll(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(notifier.all()) != 0 {
		t.Error("expected no notifications when disabled")
	}
}

func TestRefresh_PreservesValidatorsOn304(t *testing.T) {
	const etag = `"stable"`
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rssBody("Feed", rssItem("a", "A", ""))))
	}))
	defer srv.Close()

	m, st, _ := newTestManager(t, nil)
	ctx := context.Background()
	src := addSource(t, st, "Feed", srv.URL)

	if _, err := m.RefreshAll(ctx); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	report, err := m.RefreshAll(ctx)
	if err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	if len(report.Results) != 1 || !report.Results[0].NotModified {
		t.Fatalf("expected not-modified result, got %+v", report.Results)
	}

	stored, err := st.SourceByID(ctx, src.ID)
	if err != nil {
		t.Fatalf("load source: %v", err)
	}
	if stored.ETag != etag {
		t.Errorf("etag lost across 304: %q", stored.ETag)
	}
	if stored.ConsecutiveFailures != 0 || stored.LastError != "" {
		t.Errorf("304 should count as success: %+v", stored)
	}
	if atomic.LoadInt32(&requests) != 2 {
		t.Errorf("expected 2 requests, got %d", requests)
	}
}

func TestRefreshSource_AutoTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rssBody("Discovered Title", rssItem("a", "A", ""))))
	}))
	defer srv.Close()

	m, st, _ := newTestManager(t, nil)
	ctx := context.Background()
	src := addSource(t, st, "", srv.URL)

	result, err := m.RefreshSource(ctx, src.ID)
	if err != nil {
		t.Fatalf("refresh source: %v", err)
	}
	if result.SourceTitle != "Discovered Title" {
		t.Errorf("result title = %q", result.SourceTitle)
	}

	stored, err := st.SourceByID(ctx, src.ID)
	if err != nil {
		t.Fatalf("load source: %v", err)
	}
	if stored.Title != "Discovered Title" {
		t.Errorf("stored title = %q", stored.Title)
	}
}

func TestChangeListeners(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rssBody("Feed", rssItem("a", "A", ""))))
	}))
	defer srv.Close()

	m, st, _ := newTestManager(t, nil)
	ctx := context.Background()
	addSource(t, st, "Feed", srv.URL)

	var fired int32
	m.OnChange(func() { atomic.AddInt32(&fired, 1) })

	if _, err := m.RefreshAll(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := atomic.LoadInt32(&fired); got != 1 {
		t.Fatalf("expected 1 change event after a pass, got %d", got)
	}

	articles, err := st.Articles(ctx, model.ArticleListOptions{})
	if err != nil || len(articles) == 0 {
		t.Fatalf("list articles: %v (%d)", err, len(articles))
	}
	if err := m.MarkRead(ctx, articles[0].ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if got := atomic.LoadInt32(&fired); got != 2 {
		t.Fatalf("expected a change event per mark-read, got %d", got)
	}

	if err := m.MarkAllRead(ctx, ""); err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	if got := atomic.LoadInt32(&fired); got != 3 {
		t.Fatalf("expected a change event for mark-all-read, got %d", got)
	}
}
