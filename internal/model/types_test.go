package model

import (
	"strings"
	"testing"
	"time"
)

func TestDedupeKeyPriority(t *testing.T) {
	pub := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	if got := DedupeKey("guid-1", "https://example.com/a", "Title", &pub, "s1"); got != "guid-1" {
		t.Fatalf("guid should win: got %q", got)
	}
	if got := DedupeKey("", "https://example.com/a", "Title", &pub, "s1"); got != "https://example.com/a" {
		t.Fatalf("link should win when guid empty: got %q", got)
	}

	hashed := DedupeKey("", "", "Title", &pub, "s1")
	if len(hashed) != 64 {
		t.Fatalf("expected 64-char hex hash, got %d chars: %q", len(hashed), hashed)
	}
	if hashed != strings.ToLower(hashed) {
		t.Fatalf("hash must be lowercase hex: %q", hashed)
	}
	if strings.Trim(hashed, "0123456789abcdef") != "" {
		t.Fatalf("hash must be hex: %q", hashed)
	}
	if again := DedupeKey("", "", "Title", &pub, "s1"); again != hashed {
		t.Fatalf("hash fallback must be deterministic: %q vs %q", again, hashed)
	}
	if other := DedupeKey("", "", "Title", &pub, "s2"); other == hashed {
		t.Fatalf("hash must vary with source id")
	}
	if noDate := DedupeKey("", "", "Title", nil, "s1"); noDate == hashed || len(noDate) != 64 {
		t.Fatalf("nil published date must still hash distinctly: %q", noDate)
	}
}

func TestArticleDisplayDateFallback(t *testing.T) {
	published := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	firstSeen := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	a := Article{PublishedAt: &published, FirstSeenAt: firstSeen}
	if !a.DisplayDate().Equal(published) {
		t.Fatalf("display date should be published date, got %v", a.DisplayDate())
	}

	a.PublishedAt = nil
	if !a.DisplayDate().Equal(firstSeen) {
		t.Fatalf("display date should fall back to first seen, got %v", a.DisplayDate())
	}
}

func TestBackoffMultiplierMonotonicAndCapped(t *testing.T) {
	cases := map[int]int{0: 1, 1: 2, 2: 4, 3: 8, 10: 8}
	for failures, want := range cases {
		if got := BackoffMultiplier(failures); got != want {
			t.Fatalf("multiplier(%d) = %d, want %d", failures, got, want)
		}
	}
}

func TestNextRefreshAt(t *testing.T) {
	var s Source
	if next := s.NextRefreshAt(30); next != nil {
		t.Fatalf("never-fetched source must have nil next refresh, got %v", next)
	}

	fetched := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s.LastFetchedAt = &fetched

	for failures, mult := range map[int]int{0: 1, 1: 2, 2: 4, 3: 8, 10: 8} {
		s.ConsecutiveFailures = failures
		next := s.NextRefreshAt(30)
		if next == nil {
			t.Fatalf("expected next refresh date")
		}
		want := fetched.Add(time.Duration(30*mult) * time.Minute)
		if !next.Equal(want) {
			t.Fatalf("failures=%d: next=%v want %v", failures, next, want)
		}
	}

	// per-source override beats the global interval
	s.ConsecutiveFailures = 0
	s.RefreshIntervalMinutes = 5
	if next := s.NextRefreshAt(30); !next.Equal(fetched.Add(5 * time.Minute)) {
		t.Fatalf("override interval ignored: %v", next)
	}
}

func TestMarkSuccessClearsErrorAtomically(t *testing.T) {
	s := Source{ConsecutiveFailures: 5, LastError: "x", ETag: `"old"`, LastModified: "yesterday"}

	s.MarkSuccess(`"new"`, "", time.Now())
	if s.ConsecutiveFailures != 0 || s.LastError != "" {
		t.Fatalf("success must clear failures and error together: %+v", s)
	}
	if s.ETag != `"new"` || s.LastModified != "" {
		t.Fatalf("validators must be overwritten, even to empty: %+v", s)
	}
	if s.LastFetchedAt == nil {
		t.Fatalf("success must touch last fetched time")
	}
}

func TestMarkFailureKeepsValidators(t *testing.T) {
	s := Source{ETag: `"v1"`, LastModified: "Mon, 01 Jan 2024 00:00:00 GMT"}

	s.MarkFailure("http 500", time.Now())
	s.MarkFailure("timeout", time.Now())
	if s.ConsecutiveFailures != 2 {
		t.Fatalf("failures should increment, got %d", s.ConsecutiveFailures)
	}
	if s.LastError != "timeout" {
		t.Fatalf("last error should be overwritten, not appended: %q", s.LastError)
	}
	if s.ETag != `"v1"` || s.LastModified == "" {
		t.Fatalf("failure must not touch validators: %+v", s)
	}
}

func TestNewArticleComputesKeyOnce(t *testing.T) {
	a := NewArticle("s1", "", "https://example.com/post", "Post", nil, "")
	if a.DedupeKey != "https://example.com/post" {
		t.Fatalf("unexpected dedupe key %q", a.DedupeKey)
	}
	if a.ID == "" || a.FirstSeenAt.IsZero() {
		t.Fatalf("article must get id and first-seen time: %+v", a)
	}
	if a.IsRead {
		t.Fatalf("new articles start unread")
	}
}
