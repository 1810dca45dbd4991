package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// TickerResolver maps ticker symbols to zero-padded CIKs using the archive's
// company_tickers.json. The map is loaded once, from the local cache file
// ("TICKER|CIK" lines) when present, otherwise from the archive.
type TickerResolver struct {
	fetch     func(ctx context.Context) ([]byte, error)
	cachePath string
	logger    *zap.Logger

	mu      sync.Mutex
	tickers map[string]string
}

// NewTickerResolver resolves through l. cachePath may be empty.
func NewTickerResolver(l *HTTPLoader, cachePath string, logger *zap.Logger) *TickerResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TickerResolver{
		fetch: func(ctx context.Context) ([]byte, error) {
			return l.Fetch(ctx, companyTickersPath)
		},
		cachePath: cachePath,
		logger:    logger.With(zap.String("component", "ticker_resolver")),
	}
}

// Lookup returns the CIK for ticker.
func (r *TickerResolver) Lookup(ctx context.Context, ticker string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(ticker))

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tickers == nil {
		if err := r.load(ctx); err != nil {
			return "", err
		}
	}
	if cik, ok := r.tickers[normalized]; ok {
		return cik, nil
	}
	return "", eris.Wrapf(ErrNotFound, "ticker %s", ticker)
}

// LookupAll resolves several tickers, failing on the first unknown one.
func (r *TickerResolver) LookupAll(ctx context.Context, tickers []string) ([]string, error) {
	ciks := make([]string, 0, len(tickers))
	for _, t := range tickers {
		cik, err := r.Lookup(ctx, t)
		if err != nil {
			return nil, err
		}
		ciks = append(ciks, cik)
	}
	return ciks, nil
}

func (r *TickerResolver) load(ctx context.Context) error {
	if r.cachePath != "" {
		if m, err := readTickerCache(r.cachePath); err == nil && len(m) > 0 {
			r.logger.Debug("ticker cache loaded", zap.String("path", r.cachePath), zap.Int("tickers", len(m)))
			r.tickers = m
			return nil
		}
	}

	r.logger.Info("loading ticker->CIK map from archive")
	body, err := r.fetch(ctx)
	if err != nil {
		return eris.Wrap(err, "ingest: fetch company tickers")
	}
	m, err := parseCompanyTickers(body)
	if err != nil {
		return err
	}
	r.tickers = m

	if r.cachePath != "" {
		if err := writeTickerCache(r.cachePath, m); err != nil {
			r.logger.Warn("ticker cache write failed", zap.Error(err))
		}
	}
	return nil
}

// parseCompanyTickers reads {"0": {"cik_str": 320193, "ticker": "AAPL", "title": "Apple Inc."}, ...}.
func parseCompanyTickers(body []byte) (map[string]string, error) {
	type tickerEntry struct {
		CIK    int    `json:"cik_str"`
		Ticker string `json:"ticker"`
		Title  string `json:"title"`
	}
	var raw map[string]tickerEntry
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, eris.Wrap(err, "ingest: parse company tickers")
	}
	m := make(map[string]string, len(raw))
	for _, e := range raw {
		m[strings.ToUpper(e.Ticker)] = fmt.Sprintf("%010d", e.CIK)
	}
	return m, nil
}

func readTickerCache(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m := make(map[string]string)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		ticker, cik, ok := strings.Cut(strings.TrimSpace(sc.Text()), "|")
		if !ok || ticker == "" || cik == "" {
			continue
		}
		m[strings.ToUpper(ticker)] = cik
	}
	return m, sc.Err()
}

func writeTickerCache(path string, m map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('|')
		b.WriteString(m[k])
		b.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(b.String()), 0644)
}
