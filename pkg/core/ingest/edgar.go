package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"edgar_facts/pkg/core/filing"
	"edgar_facts/pkg/models"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultHost serves the public archive.
	DefaultHost = "https://www.sec.gov"

	// DefaultUserAgent is sent when none is configured. The archive rejects
	// requests without a contact address.
	DefaultUserAgent = "edgar-facts/1.0 (contact@example.com)"

	// DefaultRatePerSecond is the archive's published fair-access limit.
	DefaultRatePerSecond = 10

	companyTickersPath = "/files/company_tickers.json"
)

// =============================================================================
// EDGAR HTTP LOADER
// =============================================================================

// HTTPOptions configures an HTTPLoader.
type HTTPOptions struct {
	Host          string
	UserAgent     string
	RatePerSecond float64
	Timeout       time.Duration
	CacheDir      string // optional raw submission cache
	Logger        *zap.Logger
}

// HTTPLoader fetches submissions from the archive over HTTP. All requests share
// one rate limiter.
type HTTPLoader struct {
	host       string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *SubmissionCache
	logger     *zap.Logger
}

// NewHTTPLoader creates a loader. Zero options fall back to the defaults above.
func NewHTTPLoader(opts HTTPOptions) *HTTPLoader {
	if opts.Host == "" {
		opts.Host = DefaultHost
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = DefaultRatePerSecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	l := &HTTPLoader{
		host:       strings.TrimRight(opts.Host, "/"),
		userAgent:  opts.UserAgent,
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(opts.RatePerSecond), max(1, int(opts.RatePerSecond))),
		logger:     opts.Logger.With(zap.String("component", "http_loader")),
	}
	if opts.CacheDir != "" {
		l.cache = NewSubmissionCache(opts.CacheDir)
	}
	return l
}

type statusError struct {
	code int
	url  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("GET %s returned status %d", e.url, e.code)
}

// Fetch downloads a path relative to the host.
func (l *HTTPLoader) Fetch(ctx context.Context, path string) ([]byte, error) {
	u := l.host + "/" + strings.TrimPrefix(path, "/")
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "ingest: rate limiter")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: create request")
	}
	// the archive requires a User-Agent with a contact address
	req.Header.Set("User-Agent", l.userAgent)
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: GET %s", u)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{code: resp.StatusCode, url: u}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read %s", u)
	}
	return body, nil
}

// Load fetches <host>/Archives/<id>.
func (l *HTTPLoader) Load(ctx context.Context, id models.FilingID) (*filing.FileContent, error) {
	if l.cache != nil {
		if data, ok := l.cache.Get(id); ok {
			l.logger.Debug("cache hit", zap.String("filing", string(id)))
			return filing.NewFileContent(string(id), data), nil
		}
	}

	data, err := l.Fetch(ctx, "/Archives/"+strings.TrimPrefix(string(id), "/"))
	if err != nil {
		return nil, classify(id, err)
	}
	l.logger.Debug("fetched filing", zap.String("filing", string(id)), zap.Int("bytes", len(data)))

	if l.cache != nil {
		if err := l.cache.Set(id, data); err != nil {
			l.logger.Warn("cache write failed", zap.String("filing", string(id)), zap.Error(err))
		}
	}
	return filing.NewFileContent(string(id), data), nil
}

// classify maps transport failures onto the loader error kinds.
func classify(id models.FilingID, err error) error {
	var se *statusError
	if errors.As(err, &se) {
		switch {
		case se.code == http.StatusNotFound || se.code == http.StatusGone:
			return permanent(id, eris.Wrap(ErrNotFound, se.Error()))
		case se.code == http.StatusUnauthorized || se.code == http.StatusForbidden:
			return permanent(id, eris.Wrap(ErrUnavailable, se.Error()))
		case se.code == http.StatusTooManyRequests || se.code >= 500:
			return retryable(id, err)
		default:
			return permanent(id, err)
		}
	}
	return retryable(id, err)
}

// DirectoryEntry is one row of an archive directory listing.
type DirectoryEntry struct {
	Name         string
	Href         string
	Size         int64
	LastModified string
	IsDir        bool
}

// ListDirectory parses an archive directory page such as
// /Archives/edgar/data/320193/000119312513168288/.
func (l *HTTPLoader) ListDirectory(ctx context.Context, dir string) ([]DirectoryEntry, error) {
	body, err := l.Fetch(ctx, "/Archives/"+strings.Trim(dir, "/")+"/")
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: list %s", dir)
	}
	return parseDirectoryListing(body)
}

func parseDirectoryListing(page []byte) ([]DirectoryEntry, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, eris.Wrap(err, "ingest: parse directory listing")
	}

	var entries []DirectoryEntry
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		link := row.Find("td a").First()
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		name := strings.TrimSpace(link.Text())
		if name == "" || strings.EqualFold(name, "Parent Directory") {
			return
		}
		cells := row.Find("td")
		entry := DirectoryEntry{
			Name:  name,
			Href:  href,
			IsDir: strings.HasSuffix(href, "/") || strings.Contains(strings.ToLower(cells.Last().Text()), "folder"),
		}
		cells.Each(func(i int, cell *goquery.Selection) {
			text := strings.TrimSpace(cell.Text())
			if i == 0 || text == "" {
				return
			}
			if n, err := strconv.ParseInt(text, 10, 64); err == nil && entry.Size == 0 {
				entry.Size = n
				return
			}
			if strings.ContainsAny(text, "-:") {
				entry.LastModified = text
			}
		})
		entries = append(entries, entry)
	})
	return entries, nil
}

// FetchIndex downloads and parses a form index, e.g. the path returned by
// Quarter.IndexPath or DailyIndexPath.
func (l *HTTPLoader) FetchIndex(ctx context.Context, indexPath string) ([]IndexEntry, error) {
	body, err := l.Fetch(ctx, "/Archives/"+strings.TrimPrefix(indexPath, "/"))
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: fetch index %s", indexPath)
	}
	return ParseFormIndex(bytes.NewReader(body))
}
