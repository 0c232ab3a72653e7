package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	"CCNLMonitor/internal/domain"
	"CCNLMonitor/internal/ports"
)

const (
	defaultMaxFailures = 5
	defaultLookback    = 7 * 24 * time.Hour
	defaultTimeout     = 30 * time.Second
	userAgent          = "CCNLMonitor/1.0"
)

// Options configures an Ingestor.
type Options struct {
	Sources     []domain.FeedSource
	Keywords    []string
	Lookback    time.Duration
	MaxFailures int
	Timeout     time.Duration
	Client      *http.Client
	Seen        ports.SeenStore
	Logger      *slog.Logger
	Now         func() time.Time
}

// Ingestor fetches every active feed concurrently and filters the result.
type Ingestor struct {
	mu          sync.RWMutex
	sources     []*domain.FeedSource
	keywords    []string
	lookback    time.Duration
	maxFailures int
	timeout     time.Duration
	client      *http.Client
	seen        ports.SeenStore
	logger      *slog.Logger
	now         func() time.Time
}

// NewIngestor builds an ingestor; every source starts active.
func NewIngestor(opts Options) *Ingestor {
	in := &Ingestor{
		lookback:    opts.Lookback,
		maxFailures: opts.MaxFailures,
		timeout:     opts.Timeout,
		client:      opts.Client,
		seen:        opts.Seen,
		logger:      opts.Logger,
		now:         opts.Now,
	}
	if in.lookback <= 0 {
		in.lookback = defaultLookback
	}
	if in.maxFailures <= 0 {
		in.maxFailures = defaultMaxFailures
	}
	if in.timeout <= 0 {
		in.timeout = defaultTimeout
	}
	if in.client == nil {
		in.client = &http.Client{}
	}
	if in.now == nil {
		in.now = time.Now
	}
	for _, kw := range opts.Keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			in.keywords = append(in.keywords, kw)
		}
	}
	for _, src := range opts.Sources {
		src := src
		src.Active = true
		src.ConsecutiveFailures = 0
		in.sources = append(in.sources, &src)
	}
	return in
}

type fetchOutcome struct {
	items []domain.FeedItem
	err   error
}

// FetchAll fetches every active source in parallel and returns filtered,
// deduplicated items. Individual source failures never fail the call.
func (in *Ingestor) FetchAll(ctx context.Context) []domain.FeedItem {
	active := in.activeSources()
	outcomes := make([]fetchOutcome, len(active))

	var wg sync.WaitGroup
	for i, src := range active {
		wg.Add(1)
		go func(i int, src *domain.FeedSource) {
			defer wg.Done()
			items, err := in.fetchSource(ctx, src)
			outcomes[i] = fetchOutcome{items: items, err: err}
		}(i, src)
	}
	wg.Wait()

	cutoff := in.now().Add(-in.lookback)
	seenGUID := make(map[string]struct{})
	var result []domain.FeedItem
	for i, out := range outcomes {
		if out.err != nil {
			in.warn("source fetch failed", "source", active[i].ID, "error", out.err)
			continue
		}
		for _, item := range out.items {
			if item.PublishedAt.Before(cutoff) {
				continue
			}
			if !in.matchesKeywords(item) {
				continue
			}
			if _, dup := seenGUID[item.GUID]; dup {
				continue
			}
			seenGUID[item.GUID] = struct{}{}
			if in.alreadyProcessed(ctx, item.GUID) {
				continue
			}
			result = append(result, item)
		}
	}

	in.debug("fetch cycle done", "sources", len(active), "items", len(result))
	return result
}

// MarkProcessed records a GUID in the cross-cycle seen store, if configured.
func (in *Ingestor) MarkProcessed(ctx context.Context, guid string) {
	if in.seen == nil || guid == "" {
		return
	}
	if err := in.seen.MarkSeen(ctx, guid); err != nil {
		in.warn("mark seen failed", "guid", guid, "error", err)
	}
}

// Sources returns a snapshot of every configured source.
func (in *Ingestor) Sources() []domain.FeedSource {
	in.mu.RLock()
	defer in.mu.RUnlock()

	out := make([]domain.FeedSource, 0, len(in.sources))
	for _, src := range in.sources {
		out = append(out, *src)
	}
	return out
}

// ActiveSourceCount returns how many sources are still fetched.
func (in *Ingestor) ActiveSourceCount() int {
	return len(in.activeSources())
}

// Healthy reports whether at least one source is still active.
func (in *Ingestor) Healthy(context.Context) bool {
	return in.ActiveSourceCount() > 0
}

func (in *Ingestor) activeSources() []*domain.FeedSource {
	in.mu.RLock()
	defer in.mu.RUnlock()

	active := make([]*domain.FeedSource, 0, len(in.sources))
	for _, src := range in.sources {
		if src.Active {
			active = append(active, src)
		}
	}
	return active
}

func (in *Ingestor) fetchSource(ctx context.Context, src *domain.FeedSource) ([]domain.FeedItem, error) {
	in.mu.RLock()
	etag, lastModified, url := src.ETag, src.LastModified, src.URL
	in.mu.RUnlock()

	fetchCtx, cancel := context.WithTimeout(ctx, in.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, url, nil)
	if err != nil {
		in.recordFailure(src, &domain.FetchError{URL: url, Err: err})
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastModified != "" {
		req.Header.Set("If-Modified-Since", lastModified)
	}

	resp, err := in.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			// Cancelled by the caller: counters stay untouched.
			return nil, ctx.Err()
		}
		ferr := &domain.FetchError{URL: url, Err: err, Timeout: errors.Is(err, context.DeadlineExceeded) || isTimeout(err)}
		in.recordFailure(src, ferr)
		return nil, ferr
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		in.recordSuccess(src, etag, lastModified)
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		ferr := &domain.FetchError{URL: url, StatusCode: resp.StatusCode}
		in.recordFailure(src, ferr)
		return nil, ferr
	}

	parsed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		perr := &domain.ParseError{Source: url, Err: err}
		in.recordFailure(src, perr)
		return nil, perr
	}

	newETag := resp.Header.Get("ETag")
	if newETag == "" {
		newETag = etag
	}
	newLastModified := resp.Header.Get("Last-Modified")
	if newLastModified == "" {
		newLastModified = lastModified
	}
	in.recordSuccess(src, newETag, newLastModified)

	return toItems(parsed, src.ID, in.now()), nil
}

func (in *Ingestor) recordSuccess(src *domain.FeedSource, etag, lastModified string) {
	in.mu.Lock()
	defer in.mu.Unlock()

	src.ConsecutiveFailures = 0
	src.LastError = ""
	src.ETag = etag
	src.LastModified = lastModified
	src.LastFetchedAt = in.now()
}

func (in *Ingestor) recordFailure(src *domain.FeedSource, err error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	src.ConsecutiveFailures++
	src.LastError = err.Error()
	if src.ConsecutiveFailures >= in.maxFailures && src.Active {
		src.Active = false
		if in.logger != nil {
			in.logger.Warn("source deactivated", "source", src.ID, "failures", src.ConsecutiveFailures)
		}
	}
}

func (in *Ingestor) matchesKeywords(item domain.FeedItem) bool {
	if len(in.keywords) == 0 {
		return true
	}
	text := strings.ToLower(item.Text())
	for _, kw := range in.keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func (in *Ingestor) alreadyProcessed(ctx context.Context, guid string) bool {
	if in.seen == nil {
		return false
	}
	seen, err := in.seen.Seen(ctx, guid)
	if err != nil {
		in.warn("seen lookup failed", "guid", guid, "error", err)
		return false
	}
	return seen
}

func (in *Ingestor) debug(msg string, args ...any) {
	if in.logger != nil {
		in.logger.Debug(msg, args...)
	}
}

func (in *Ingestor) warn(msg string, args ...any) {
	if in.logger != nil {
		in.logger.Warn(msg, args...)
	}
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
