package main

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"edgar_facts/pkg/config"
	"edgar_facts/pkg/core/ingest"
	"edgar_facts/pkg/core/store"
	"edgar_facts/pkg/models"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// source bundles the loader used by the batch with the ways filings can be
// enumerated from it.
type source struct {
	loader ingest.Loader
	http   *ingest.HTTPLoader // nil unless the source or an index needs the archive host
	list   func(ctx context.Context) ([]models.FilingID, error)
}

func openSource(ctx context.Context, cfg config.Config, logger *zap.Logger) (*source, error) {
	httpLoader := ingest.NewHTTPLoader(ingest.HTTPOptions{
		Host:          cfg.Source.Host,
		UserAgent:     cfg.Source.UserAgent,
		RatePerSecond: cfg.Source.RatePerSecond,
		CacheDir:      cfg.Source.CacheDir,
		Logger:        logger,
	})

	switch cfg.Source.Kind {
	case "dir":
		dl := ingest.NewDirLoader(cfg.Source.Dir)
		return &source{
			loader: dl,
			http:   httpLoader,
			list:   func(context.Context) ([]models.FilingID, error) { return dl.List() },
		}, nil
	case "http":
		return &source{
			loader: httpLoader,
			http:   httpLoader,
			list: func(context.Context) ([]models.FilingID, error) {
				return nil, eris.New("collect: the http source cannot be listed, give ids or an index")
			},
		}, nil
	case "s3":
		s3l, err := ingest.NewS3Loader(ctx, ingest.S3Options{
			Bucket:   cfg.Source.Bucket,
			Prefix:   cfg.Source.Prefix,
			Region:   cfg.Source.Region,
			Endpoint: cfg.Source.Endpoint,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		return &source{
			loader: s3l,
			http:   httpLoader,
			list:   func(ctx context.Context) ([]models.FilingID, error) { return s3l.List(ctx, "") },
		}, nil
	}
	return nil, eris.Errorf("collect: unknown source %q", cfg.Source.Kind)
}

func openSink(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Sink, error) {
	switch cfg.Sink.Kind {
	case "postgres":
		return store.NewPostgresSink(ctx, cfg.Sink.DatabaseURL, logger)
	case "mongo":
		return store.NewMongoSink(ctx, cfg.Sink.MongoURI, cfg.Sink.MongoDatabase, logger)
	case "file":
		return store.NewFileSink(cfg.Sink.Dir, logger)
	case "memory":
		return store.NewMemorySink(), nil
	}
	return nil, eris.Errorf("collect: unknown sink %q", cfg.Sink.Kind)
}

func resolveTickers(ctx context.Context, cfg config.Config, logger *zap.Logger) ([]string, error) {
	if len(cfg.Filter.Tickers) == 0 {
		return nil, nil
	}
	httpLoader := ingest.NewHTTPLoader(ingest.HTTPOptions{
		Host:          cfg.Source.Host,
		UserAgent:     cfg.Source.UserAgent,
		RatePerSecond: cfg.Source.RatePerSecond,
		Logger:        logger,
	})
	cachePath := ""
	if cfg.Source.CacheDir != "" {
		cachePath = filepath.Join(cfg.Source.CacheDir, "tickers.txt")
	}
	ciks, err := ingest.NewTickerResolver(httpLoader, cachePath, logger).LookupAll(ctx, cfg.Filter.Tickers)
	if err != nil {
		return nil, eris.Wrap(err, "collect: resolve tickers")
	}
	return ciks, nil
}

// enumerate produces the ordered filing list. Sources are tried in this
// order: positional ids, --ids-file, --index-file, --quarters, then a listing
// of the content source.
func enumerate(ctx context.Context, cfg config.Config, src *source, spec models.FilterSpec, args []string) ([]models.FilingID, error) {
	switch {
	case len(args) > 0:
		ids := make([]models.FilingID, len(args))
		for i, a := range args {
			ids[i] = models.FilingID(a)
		}
		return ids, nil

	case opts.idsFile != "":
		return readIDs(opts.idsFile)

	case opts.indexFile != "":
		f, err := os.Open(opts.indexFile)
		if err != nil {
			return nil, eris.Wrapf(err, "collect: open index %s", opts.indexFile)
		}
		defer f.Close()
		entries, err := ingest.ParseFormIndex(f)
		if err != nil {
			return nil, err
		}
		return ingest.IDs(ingest.FilterIndex(entries, spec.FormTypes, spec.CIKs)), nil

	case opts.quarters:
		return fromQuarters(ctx, src.http, spec)
	}
	return src.list(ctx)
}

func fromQuarters(ctx context.Context, l *ingest.HTTPLoader, spec models.FilterSpec) ([]models.FilingID, error) {
	if spec.Begin.IsZero() {
		return nil, eris.New("collect: --quarters needs --begin-date")
	}
	end := spec.End
	if end.IsZero() {
		end = time.Now()
	}
	var ids []models.FilingID
	for _, q := range ingest.QuartersBetween(spec.Begin, end) {
		entries, err := l.FetchIndex(ctx, q.IndexPath())
		if err != nil {
			return nil, err
		}
		ids = append(ids, ingest.IDs(ingest.FilterIndex(entries, spec.FormTypes, spec.CIKs))...)
	}
	return ids, nil
}

// readIDs reads one filing id per line. Blank lines and # comments are skipped.
func readIDs(path string) ([]models.FilingID, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "collect: open %s", path)
	}
	defer f.Close()

	var ids []models.FilingID
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, models.FilingID(line))
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrapf(err, "collect: read %s", path)
	}
	return ids, nil
}
