package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"edgar_facts/pkg/models"
)

const directoryPage = `<html><body>
<table summary="heding">
<tr><th>Name</th><th>Size</th><th>Last Modified</th></tr>
<tr><td><a href="/Archives/edgar/data/320193/">Parent Directory</a></td><td></td><td></td></tr>
<tr><td><a href="/Archives/edgar/data/320193/000119312513168288/0001193125-13-168288.txt">0001193125-13-168288.txt</a></td><td>4521337</td><td>2013-04-24 16:31:11</td></tr>
<tr><td><a href="/Archives/edgar/data/320193/000119312513168288/Financial_Report.xlsx">Financial_Report.xlsx</a></td><td>88210</td><td>2013-04-24 16:31:11</td></tr>
<tr><td><a href="/Archives/edgar/data/320193/000119312513168288/R/">R</a></td><td></td><td>folder</td></tr>
</table></body></html>`

const dailyIndex = `Description:           Daily Index of EDGAR Dissemination Feed by Form Type
Last Data Received:    April 24, 2013
Comments:              webmaster@sec.gov
Anonymous FTP:         ftp://ftp.sec.gov/edgar/

Form Type   Company Name                                                  CIK         Date Filed  File Name
---------------------------------------------------------------------------------------------------------------------------------------------
10-K/A      SOME CORP                                                     1000045     20130424    edgar/data/1000045/0001000045-13-000010.txt
10-Q        APPLE INC                                                     320193      20130424    edgar/data/320193/0001193125-13-168288.txt
SC 13G      BLACK ROCK INC 2                                              1364742     20130424    edgar/data/1364742/0001086364-13-002011.txt
`

func newTestServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if !strings.Contains(r.Header.Get("User-Agent"), "@") {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		switch r.URL.Path {
		case "/Archives/edgar/data/320193/0001193125-13-168288.txt":
			w.Write([]byte("<SEC-HEADER>\nCENTRAL INDEX KEY: 0000320193\n</SEC-HEADER>\n"))
		case "/Archives/edgar/data/1/gone.txt":
			w.WriteHeader(http.StatusGone)
		case "/Archives/edgar/data/1/busy.txt":
			w.WriteHeader(http.StatusTooManyRequests)
		case "/Archives/edgar/data/1/broken.txt":
			w.WriteHeader(http.StatusInternalServerError)
		case "/Archives/edgar/data/1/bad-request.txt":
			w.WriteHeader(http.StatusBadRequest)
		case "/Archives/edgar/data/320193/000119312513168288/":
			w.Write([]byte(directoryPage))
		case "/Archives/edgar/daily-index/2013/QTR2/form.20130424.idx":
			w.Write([]byte(dailyIndex))
		case "/files/company_tickers.json":
			w.Write([]byte(`{"0":{"cik_str":320193,"ticker":"AAPL","title":"Apple Inc."},"1":{"cik_str":789019,"ticker":"MSFT","title":"MICROSOFT CORP"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newTestLoader(srv *httptest.Server, cacheDir string) *HTTPLoader {
	return NewHTTPLoader(HTTPOptions{
		Host:          srv.URL,
		UserAgent:     "edgar-facts-test test@example.com",
		RatePerSecond: 1000,
		Timeout:       5 * time.Second,
		CacheDir:      cacheDir,
	})
}

func TestHTTPLoaderLoad(t *testing.T) {
	var hits int32
	srv := newTestServer(t, &hits)
	defer srv.Close()

	cacheDir := t.TempDir()
	l := newTestLoader(srv, cacheDir)
	ctx := context.Background()
	id := "edgar/data/320193/0001193125-13-168288.txt"

	c, err := l.Load(ctx, "edgar/data/320193/0001193125-13-168288.txt")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Len() == 0 {
		t.Fatal("empty content")
	}
	if _, err := os.Stat(filepath.Join(cacheDir, filepath.FromSlash(id))); err != nil {
		t.Errorf("submission not cached: %v", err)
	}

	before := atomic.LoadInt32(&hits)
	if _, err := l.Load(ctx, "edgar/data/320193/0001193125-13-168288.txt"); err != nil {
		t.Fatalf("cached Load: %v", err)
	}
	if atomic.LoadInt32(&hits) != before {
		t.Error("cached load should not hit the server")
	}
}

func TestHTTPLoaderErrorClassification(t *testing.T) {
	var hits int32
	srv := newTestServer(t, &hits)
	defer srv.Close()
	l := newTestLoader(srv, "")
	ctx := context.Background()

	tests := []struct {
		id          string
		notFound    bool
		unavailable bool
		retryable   bool
	}{
		{"edgar/data/1/missing.txt", true, false, false},
		{"edgar/data/1/gone.txt", true, false, false},
		{"edgar/data/1/busy.txt", false, false, true},
		{"edgar/data/1/broken.txt", false, false, true},
		{"edgar/data/1/bad-request.txt", false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			_, err := l.Load(ctx, models.FilingID(tt.id))
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, ErrNotFound); got != tt.notFound {
				t.Errorf("ErrNotFound = %v, want %v (%v)", got, tt.notFound, err)
			}
			if got := errors.Is(err, ErrUnavailable); got != tt.unavailable {
				t.Errorf("ErrUnavailable = %v, want %v", got, tt.unavailable)
			}
			if got := IsRetryable(err); got != tt.retryable {
				t.Errorf("retryable = %v, want %v", got, tt.retryable)
			}
		})
	}

	anonymous := NewHTTPLoader(HTTPOptions{Host: srv.URL, UserAgent: "anonymous", RatePerSecond: 1000})
	if _, err := anonymous.Load(ctx, "edgar/data/320193/0001193125-13-168288.txt"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("forbidden: got %v, want ErrUnavailable", err)
	}
}

func TestListDirectory(t *testing.T) {
	var hits int32
	srv := newTestServer(t, &hits)
	defer srv.Close()

	entries, err := newTestLoader(srv, "").ListDirectory(context.Background(), "edgar/data/320193/000119312513168288")
	if err != nil {
		t.Fatalf("ListDirectory: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3: %+v", len(entries), entries)
	}
	if entries[0].Name != "0001193125-13-168288.txt" || entries[0].Size != 4521337 || entries[0].LastModified != "2013-04-24 16:31:11" {
		t.Errorf("entry 0 = %+v", entries[0])
	}
	if entries[0].IsDir {
		t.Error("submission file reported as directory")
	}
	if !entries[2].IsDir {
		t.Errorf("entry 2 should be a directory: %+v", entries[2])
	}
}

func TestFetchIndex(t *testing.T) {
	var hits int32
	srv := newTestServer(t, &hits)
	defer srv.Close()

	day := time.Date(2013, 4, 24, 0, 0, 0, 0, time.UTC)
	entries, err := newTestLoader(srv, "").FetchIndex(context.Background(), DailyIndexPath(day))
	if err != nil {
		t.Fatalf("FetchIndex: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries", len(entries))
	}

	if _, err := newTestLoader(srv, "").FetchIndex(context.Background(), "edgar/daily-index/1999/QTR1/form.19990101.idx"); err == nil {
		t.Error("missing index should fail")
	}
}
