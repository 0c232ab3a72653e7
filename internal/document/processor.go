package document

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"CCNLMonitor/internal/domain"
	"CCNLMonitor/internal/ports"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultMaxBytes = 20 << 20
	userAgent       = "CCNLMonitor/1.0"
)

// Deps wires the processor collaborators. Archive and Logger are optional.
type Deps struct {
	Client   *http.Client
	Registry *Registry
	Archive  ports.DocumentArchive
	Logger   *slog.Logger
	Timeout  time.Duration
	MaxBytes int64
	Now      func() time.Time
}

// Processor retrieves supporting documents, extracts figures and validates them.
type Processor struct {
	client   *http.Client
	registry *Registry
	archive  ports.DocumentArchive
	logger   *slog.Logger
	timeout  time.Duration
	maxBytes int64
	now      func() time.Time
}

// NewProcessor builds a processor with sane defaults for missing deps.
func NewProcessor(deps Deps) *Processor {
	p := &Processor{
		client:   deps.Client,
		registry: deps.Registry,
		archive:  deps.Archive,
		logger:   deps.Logger,
		timeout:  deps.Timeout,
		maxBytes: deps.MaxBytes,
		now:      deps.Now,
	}
	if p.client == nil {
		p.client = &http.Client{}
	}
	if p.registry == nil {
		p.registry = NewRegistry()
	}
	if p.timeout <= 0 {
		p.timeout = defaultTimeout
	}
	if p.maxBytes <= 0 {
		p.maxBytes = defaultMaxBytes
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// DownloadAndParse fetches a document and dispatches it to the parser
// registered for its content type. Failures are returned as *domain.FetchError
// or *domain.ParseError with an empty result; callers fall back to summary
// extraction.
func (p *Processor) DownloadAndParse(ctx context.Context, url string) (domain.ParsedDocument, error) {
	doc := domain.ParsedDocument{URL: url}
	if url == "" {
		return doc, &domain.FetchError{URL: url, Err: errors.New("empty document url")}
	}

	body, contentType, err := p.fetch(ctx, url)
	if err != nil {
		return doc, err
	}
	doc.ContentType = contentType
	doc.FetchedAt = p.now()

	p.store(ctx, url, contentType, body)

	parser, err := p.registry.Resolve(contentType)
	if err != nil {
		return doc, &domain.ParseError{Source: url, Err: err}
	}
	doc.Parser = parser.Name()

	data, err := parser.Parse(ctx, body)
	if err != nil {
		return doc, &domain.ParseError{Source: url, Err: err}
	}
	doc.Data = data

	p.debug("document parsed", "url", url, "parser", parser.Name(), "levels", len(data.SalaryTables))
	return doc, nil
}

// Healthy reports whether at least one parser is registered.
func (p *Processor) Healthy(context.Context) bool {
	return p.registry.Len() > 0
}

func (p *Processor) fetch(ctx context.Context, url string) ([]byte, string, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", &domain.FetchError{URL: url, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		return nil, "", &domain.FetchError{URL: url, Err: err, Timeout: isTimeout(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", &domain.FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBytes+1))
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		return nil, "", &domain.FetchError{URL: url, Err: fmt.Errorf("read body: %w", err), Timeout: isTimeout(err)}
	}
	if int64(len(body)) > p.maxBytes {
		return nil, "", &domain.FetchError{URL: url, Err: fmt.Errorf("document exceeds %d bytes", p.maxBytes)}
	}

	contentType := normalizeContentType(resp.Header.Get("Content-Type"))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = normalizeContentType(mimetype.Detect(body).String())
	}
	return body, contentType, nil
}

func (p *Processor) store(ctx context.Context, url, contentType string, body []byte) {
	if p.archive == nil {
		return
	}
	hash := sha256.Sum256([]byte(url))
	key := hex.EncodeToString(hash[:])
	if err := p.archive.Store(ctx, key, contentType, bytes.NewReader(body)); err != nil {
		p.warn("archive document failed", "url", url, "error", err)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

func (p *Processor) debug(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}

func (p *Processor) warn(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}
