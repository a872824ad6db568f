// Package fetch is the HTTP side of refreshing: conditional requests,
// response size limits, and a process-wide cap on concurrent downloads.
// It returns raw payloads; parsing and persistence happen elsewhere.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

type Status int

const (
	StatusOK Status = iota
	StatusNotModified
)

type ErrorKind string

const (
	KindTimeout                ErrorKind = "timeout"
	KindNetwork                ErrorKind = "network"
	KindTooLarge               ErrorKind = "response too large"
	KindUnsupportedContentType ErrorKind = "unsupported content type"
	KindHTTPStatus             ErrorKind = "http status"
)

// Error classifies a fetch failure so callers can record a short,
// stable description against the source instead of a raw transport error.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindHTTPStatus:
		return fmt.Sprintf("http %d", e.StatusCode)
	case KindUnsupportedContentType, KindTooLarge, KindTimeout:
		return string(e.Kind)
	default:
		if e.Cause != nil {
			return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
		}
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// Result is a successful exchange: either a fresh body or a 304.
// Validators come from the response headers and may each be empty.
type Result struct {
	Status       Status
	StatusCode   int
	Body         []byte
	ETag         string
	LastModified string
}

// Outcome pairs one source with its fetch result or error.
type Outcome struct {
	Source Source
	Result Result
	Err    error
}

type Client struct {
	http      *http.Client
	userAgent string
	maxBytes  int64
	sem       chan struct{}
}

func NewClient(cfg Config) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     30 * time.Second,
	}

	concurrency := cfg.FetchConcurrency
	if concurrency < 1 {
		concurrency = 5
	}

	return &Client{
		http: &http.Client{
			Timeout:   cfg.HTTPTimeout,
			Transport: transport,
		},
		userAgent: cfg.UserAgent,
		maxBytes:  cfg.MaxResponseBytes,
		sem:       make(chan struct{}, concurrency),
	}
}

// Fetch downloads one feed. The semaphore is held for the whole exchange,
// so the concurrency cap applies no matter how callers fan out.
func (c *Client) Fetch(ctx context.Context, feedURL, etag, lastModified string) (Result, error) {
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return Result{}, classify(ctx.Err())
	}
	defer func() { <-c.sem }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return Result{}, &Error{Kind: KindNetwork, Cause: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/xml, application/atom+xml, application/rss+xml, application/feed+json, text/xml, text/html, */*;q=0.8")
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastModified != "" {
		req.Header.Set("If-Modified-Since", lastModified)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, classify(err)
	}
	defer resp.Body.Close()

	result := Result{
		StatusCode:   resp.StatusCode,
		ETag:         strings.TrimSpace(resp.Header.Get("ETag")),
		LastModified: strings.TrimSpace(resp.Header.Get("Last-Modified")),
	}

	if resp.StatusCode == http.StatusNotModified {
		result.Status = StatusNotModified
		return result, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, &Error{Kind: KindHTTPStatus, StatusCode: resp.StatusCode}
	}
	if !allowedContentType(resp.Header.Get("Content-Type")) {
		return Result{}, &Error{Kind: KindUnsupportedContentType}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return Result{}, classify(err)
	}
	if int64(len(body)) > c.maxBytes {
		return Result{}, &Error{Kind: KindTooLarge}
	}

	result.Status = StatusOK
	result.Body = body
	return result, nil
}

// FetchAll fans out one fetch per enabled source and collects the outcomes
// in input order. The shared semaphore bounds actual network concurrency.
// Individual failures land in their Outcome; they never abort the batch.
func (c *Client) FetchAll(ctx context.Context, sources []Source) []Outcome {
	enabled := make([]Source, 0, len(sources))
	for _, src := range sources {
		if src.Enabled {
			enabled = append(enabled, src)
		}
	}

	outcomes := make([]Outcome, len(enabled))
	var wg sync.WaitGroup
	for i, src := range enabled {
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()
			result, err := c.Fetch(ctx, src.FeedURL, src.ETag, src.LastModified)
			outcomes[i] = Outcome{Source: src, Result: result, Err: err}
		}(i, src)
	}
	wg.Wait()
	return outcomes
}

// Servers are sloppy about feed MIME types, so an absent header and any
// text/* type pass through; only a declared non-text, non-feed type is
// rejected.
func allowedContentType(header string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return true
	}
	if strings.HasPrefix(mediaType, "text/") {
		return true
	}
	switch mediaType {
	case "application/rss+xml", "application/atom+xml", "application/xml",
		"application/feed+json", "application/json", "application/octet-stream":
		return true
	}
	return false
}

func classify(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Cause: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &Error{Kind: KindTimeout, Cause: err}
	}
	return &Error{Kind: KindNetwork, Cause: err}
}
