package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/feedtray/feedtray/internal/config"
	"github.com/feedtray/feedtray/internal/model"
)

func newTestClient(t *testing.T, mutate func(*config.Config)) *Client {
	t.Helper()
	cfg := config.Config{
		HTTPTimeout:      5 * time.Second,
		FetchConcurrency: 4,
		MaxResponseBytes: 1 << 20,
		UserAgent:        "feedtray-test/1.0",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewClient(cfg)
}

func TestClient_ConditionalFetch(t *testing.T) {
	const etag = `"v1"`
	const lastMod = "Wed, 01 Mar 2023 12:00:00 GMT"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == etag && r.Header.Get("If-Modified-Since") == lastMod {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
		w.Header().Set("Last-Modified", lastMod)
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(`<rss version="2.0"><channel><title>t</title></channel></rss>`))
	}))
	defer srv.Close()

	c := newTestClient(t, nil)
	ctx := context.Background()

	first, err := c.Fetch(ctx, srv.URL, "", "")
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if first.Status != StatusOK {
		t.Fatalf("first status = %v", first.Status)
	}
	if first.ETag != etag || first.LastModified != lastMod {
		t.Fatalf("validators = %q / %q", first.ETag, first.LastModified)
	}
	if !strings.Contains(string(first.Body), "<rss") {
		t.Fatalf("body = %q", first.Body)
	}

	second, err := c.Fetch(ctx, srv.URL, first.ETag, first.LastModified)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if second.Status != StatusNotModified {
		t.Fatalf("second status = %v, want not modified", second.Status)
	}
	if len(second.Body) != 0 {
		t.Fatalf("304 should carry no body, got %d bytes", len(second.Body))
	}
}

func TestClient_HTTPStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, nil)
	_, err := c.Fetch(context.Background(), srv.URL, "", "")

	var ferr *Error
	if !errors.As(err, &ferr) {
		t.Fatalf("expected *Error, got %T (%v)", err, err)
	}
	if ferr.Kind != KindHTTPStatus || ferr.StatusCode != 500 {
		t.Fatalf("kind = %q, code = %d", ferr.Kind, ferr.StatusCode)
	}
	if ferr.Error() != "http 500" {
		t.Fatalf("message = %q", ferr.Error())
	}
}

func TestClient_ContentTypePolicy(t *testing.T) {
	cases := []struct {
		contentType string
		wantErr     bool
	}{
		{"application/rss+xml", false},
		{"application/feed+json; charset=utf-8", false},
		{"text/html", false},
		{"", false},
		{"image/png", true},
		{"audio/mpeg", true},
	}
	c := newTestClient(t, nil)
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tc.contentType != "" {
				w.Header().Set("Content-Type", tc.contentType)
			} else {
				// suppress Go's automatic sniffing header
				w.Header()["Content-Type"] = nil
			}
			_, _ = w.Write([]byte("payload"))
		}))

		_, err := c.Fetch(context.Background(), srv.URL, "", "")
		srv.Close()

		if tc.wantErr {
			var ferr *Error
			if !errors.As(err, &ferr) || ferr.Kind != KindUnsupportedContentType {
				t.Errorf("%q: expected unsupported content type, got %v", tc.contentType, err)
			}
		} else if err != nil {
			t.Errorf("%q: unexpected error %v", tc.contentType, err)
		}
	}
}

func TestClient_ResponseTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write(make([]byte, 2048))
	}))
	defer srv.Close()

	c := newTestClient(t, func(cfg *config.Config) { cfg.MaxResponseBytes = 1024 })
	_, err := c.Fetch(context.Background(), srv.URL, "", "")

	var ferr *Error
	if !errors.As(err, &ferr) || ferr.Kind != KindTooLarge {
		t.Fatalf("expected too-large error, got %v", err)
	}
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	c := newTestClient(t, func(cfg *config.Config) { cfg.HTTPTimeout = 50 * time.Millisecond })
	_, err := c.Fetch(context.Background(), srv.URL, "", "")

	var ferr *Error
	if !errors.As(err, &ferr) || ferr.Kind != KindTimeout {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestClient_FetchAllBoundedConcurrency(t *testing.T) {
	const limit = 5
	var inFlight, maxInFlight int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			prev := atomic.LoadInt32(&maxInFlight)
			if cur <= prev || atomic.CompareAndSwapInt32(&maxInFlight, prev, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte("<rss/>"))
	}))
	defer srv.Close()

	sources := make([]model.Source, 0, 21)
	for i := 0; i < 20; i++ {
		s := model.NewSource(fmt.Sprintf("s%d", i), fmt.Sprintf("%s/%d", srv.URL, i), "")
		sources = append(sources, s)
	}
	disabled := model.NewSource("off", srv.URL+"/off", "")
	disabled.Enabled = false
	sources = append(sources, disabled)

	c := newTestClient(t, func(cfg *config.Config) { cfg.FetchConcurrency = limit })
	outcomes := c.FetchAll(context.Background(), sources)

	if len(outcomes) != 20 {
		t.Fatalf("expected 20 outcomes (disabled source skipped), got %d", len(outcomes))
	}
	for i, o := range outcomes {
		if o.Source.ID != sources[i].ID {
			t.Fatalf("outcome %d out of order: %s vs %s", i, o.Source.ID, sources[i].ID)
		}
		if o.Err != nil {
			t.Fatalf("outcome %d: %v", i, o.Err)
		}
	}
	if got := atomic.LoadInt32(&maxInFlight); got > limit {
		t.Fatalf("observed %d concurrent requests, cap is %d", got, limit)
	}
}

func TestClient_FetchAllIsolatesFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/bad") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte("<rss/>"))
	}))
	defer srv.Close()

	sources := []model.Source{
		model.NewSource("good", srv.URL+"/good", ""),
		model.NewSource("bad", srv.URL+"/bad", ""),
		model.NewSource("also good", srv.URL+"/fine", ""),
	}

	outcomes := newTestClient(t, nil).FetchAll(context.Background(), sources)
	if len(outcomes) != 3 {
		t.Fatalf("got %d outcomes", len(outcomes))
	}
	if outcomes[0].Err != nil || outcomes[2].Err != nil {
		t.Fatalf("healthy sources errored: %v / %v", outcomes[0].Err, outcomes[2].Err)
	}
	var ferr *Error
	if !errors.As(outcomes[1].Err, &ferr) || ferr.StatusCode != 404 {
		t.Fatalf("expected http 404 for the bad source, got %v", outcomes[1].Err)
	}
}
