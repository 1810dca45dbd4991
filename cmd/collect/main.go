// Command collect runs a batch of EDGAR submissions through extraction and
// persists one record per filing identity.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"edgar_facts/pkg/config"
	"edgar_facts/pkg/core/batch"
	"edgar_facts/pkg/core/report"

	"github.com/fatih/color"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ==========================================
// Flags
// ==========================================

type options struct {
	configPath string
	envFile    string

	source   string
	dir      string
	host     string
	bucket   string
	prefix   string
	cacheDir string

	indexFile string
	idsFile   string
	quarters  bool

	forms     []string
	ciks      []string
	tickers   []string
	begin     string
	end       string
	dateField string

	max         int
	resumeAt    string
	resume      bool
	concurrency int
	retries     int
	checkpoint  string

	sink     string
	sinkDir  string
	report   string
	logLevel string
	logFmt   string
}

var (
	opts options

	colorRed    = color.New(color.FgRed, color.Bold)
	colorGreen  = color.New(color.FgGreen, color.Bold)
	colorYellow = color.New(color.FgYellow)
	colorCyan   = color.New(color.FgCyan)
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		colorRed.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "collect [filing-id...]",
	Short: "Extract financial facts from EDGAR submissions",
	Long: `Runs EDGAR full-submission files through header parsing, filtering and
XBRL or spreadsheet extraction, and upserts one record per
(CIK, form type, period of report).

Filings come from the positional ids, --ids-file, --index-file, the quarterly
form indexes between --begin-date and --end-date (--quarters), or a listing of
the source when nothing else is given.

Examples:
  collect --source dir --dir /data/edgar --form 10-K --form 10-Q --max 500
  collect --source http --quarters --begin-date 2013-01-01 --end-date 2013-06-30 --ticker AAPL
  collect --config collect.yaml --resume --checkpoint run/checkpoint.json`,
	SilenceUsage: true,
	RunE:         runCollect,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&opts.configPath, "config", "", "config file (.yaml, .yml, .hjson, .json)")
	f.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the config")
	f.StringVar(&opts.source, "source", "", "content source: dir, http or s3")
	f.StringVar(&opts.dir, "dir", "", "archive root for the dir source")
	f.StringVar(&opts.host, "host", "", "archive host for the http source")
	f.StringVar(&opts.bucket, "bucket", "", "bucket for the s3 source")
	f.StringVar(&opts.prefix, "prefix", "", "key prefix for the s3 source")
	f.StringVar(&opts.cacheDir, "cache-dir", "", "local cache for downloaded submissions")
	f.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")
	f.StringVar(&opts.logFmt, "log-format", "", "console or json")

	r := rootCmd.Flags()
	r.StringVar(&opts.indexFile, "index-file", "", "local form index (form.idx) to enumerate filings from")
	r.StringVar(&opts.idsFile, "ids-file", "", "file with one filing id per line")
	r.BoolVar(&opts.quarters, "quarters", false, "enumerate from the quarterly form indexes of the date range")
	r.StringSliceVar(&opts.forms, "form", nil, "form types to keep (repeatable)")
	r.StringSliceVar(&opts.ciks, "cik", nil, "CIKs to keep (repeatable)")
	r.StringSliceVar(&opts.tickers, "ticker", nil, "tickers resolved to CIKs (repeatable)")
	r.StringVar(&opts.begin, "begin-date", "", "first date, YYYY-MM-DD")
	r.StringVar(&opts.end, "end-date", "", "last date, YYYY-MM-DD")
	r.StringVar(&opts.dateField, "date-field", "", "date the range applies to: filing or period")
	r.IntVar(&opts.max, "max", -1, "stop after this many persisted filings (0 = unlimited)")
	r.StringVar(&opts.resumeAt, "resume-at", "", "skip every filing up to and including this id")
	r.BoolVar(&opts.resume, "resume", false, "resume after the checkpoint's filing")
	r.IntVar(&opts.concurrency, "concurrency", 0, "worker count")
	r.IntVar(&opts.retries, "retries", -1, "extra attempts for transient load failures")
	r.StringVar(&opts.checkpoint, "checkpoint", "", "checkpoint file written during the run")
	r.StringVar(&opts.sink, "sink", "", "record sink: postgres, mongo, file or memory")
	r.StringVar(&opts.sinkDir, "sink-dir", "", "directory for the file sink")
	r.StringVar(&opts.report, "report", "", "write a run report (.md or .html)")

	rootCmd.AddCommand(lsCmd)
}

// ==========================================
// collect
// ==========================================

func runCollect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := openSource(ctx, cfg, logger)
	if err != nil {
		return err
	}

	ciks, err := resolveTickers(ctx, cfg, logger)
	if err != nil {
		return err
	}
	spec, err := cfg.Spec(ciks...)
	if err != nil {
		return err
	}

	// failing to enumerate aborts before any filing is touched
	ids, err := enumerate(ctx, cfg, src, spec, args)
	if err != nil {
		return eris.Wrap(err, "collect: cannot enumerate filings")
	}
	if len(ids) == 0 {
		colorYellow.Println("No filings to process.")
		return nil
	}

	if opts.resume {
		cp, err := batch.LoadCheckpoint(cfg.Batch.CheckpointPath)
		if err != nil {
			return eris.Wrap(err, "collect: --resume needs a readable checkpoint")
		}
		spec.ResumeAt = cp.FilingID
		logger.Info("resuming from checkpoint",
			zap.String("run_id", cp.RunID),
			zap.String("filing", string(cp.FilingID)),
			zap.Int("position", cp.Position))
	}

	sink, err := openSink(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer sink.Close()

	ctrl := batch.NewController(src.loader, sink, logger, batch.Options{
		Retries:        cfg.Batch.Retries,
		Backoff:        cfg.Batch.Backoff,
		CheckpointPath: cfg.Batch.CheckpointPath,
	})

	colorCyan.Printf("Processing %d filings with %d workers\n", len(ids), cfg.Batch.Concurrency)
	sum, runErr := ctrl.Run(ctx, ids, spec, cfg.Batch.Concurrency)

	printSummary(sum)
	if cfg.Report.Path != "" {
		if err := report.Write(cfg.Report.Path, sum); err != nil {
			logger.Warn("report not written", zap.Error(err))
		} else {
			colorCyan.Printf("Report written to %s\n", cfg.Report.Path)
		}
	}
	return runErr
}

// loadConfig layers flags that were set explicitly over the loaded config.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(opts.configPath, opts.envFile)
	if err != nil {
		return cfg, err
	}
	applyFlags(&cfg, cmd)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	if opts.resume && cfg.Batch.CheckpointPath == "" {
		return cfg, eris.New("collect: --resume requires --checkpoint")
	}
	return cfg, nil
}

func applyFlags(cfg *config.Config, cmd *cobra.Command) {
	changed := func(name string) bool {
		fl := cmd.Flags().Lookup(name)
		if fl == nil {
			fl = cmd.InheritedFlags().Lookup(name)
		}
		return fl != nil && fl.Changed
	}
	str := func(name string, dst *string, v string) {
		if changed(name) {
			*dst = v
		}
	}

	str("log-level", &cfg.Log.Level, opts.logLevel)
	str("log-format", &cfg.Log.Format, opts.logFmt)
	str("source", &cfg.Source.Kind, opts.source)
	str("dir", &cfg.Source.Dir, opts.dir)
	str("host", &cfg.Source.Host, opts.host)
	str("bucket", &cfg.Source.Bucket, opts.bucket)
	str("prefix", &cfg.Source.Prefix, opts.prefix)
	str("cache-dir", &cfg.Source.CacheDir, opts.cacheDir)
	str("begin-date", &cfg.Filter.Begin, opts.begin)
	str("end-date", &cfg.Filter.End, opts.end)
	str("date-field", &cfg.Filter.DateField, opts.dateField)
	str("resume-at", &cfg.Batch.ResumeAt, opts.resumeAt)
	str("checkpoint", &cfg.Batch.CheckpointPath, opts.checkpoint)
	str("sink", &cfg.Sink.Kind, opts.sink)
	str("sink-dir", &cfg.Sink.Dir, opts.sinkDir)
	str("report", &cfg.Report.Path, opts.report)

	if changed("form") {
		cfg.Filter.Forms = opts.forms
	}
	if changed("cik") {
		cfg.Filter.CIKs = opts.ciks
	}
	if changed("ticker") {
		cfg.Filter.Tickers = opts.tickers
	}
	if changed("max") {
		cfg.Batch.Max = opts.max
	}
	if changed("concurrency") {
		cfg.Batch.Concurrency = opts.concurrency
	}
	if changed("retries") {
		cfg.Batch.Retries = opts.retries
	}
}

// ==========================================
// Output
// ==========================================

func printSummary(sum batch.Summary) {
	fmt.Println()
	colorCyan.Printf("Run %s finished in %s\n", sum.RunID, sum.Duration().Round(time.Millisecond))
	fmt.Printf("  processed  %d of %d", sum.Processed, sum.Input)
	if sum.Resumed > 0 {
		fmt.Printf(" (%d skipped by resume)", sum.Resumed)
	}
	fmt.Println()
	colorGreen.Printf("  persisted  %d", sum.Persisted)
	if sum.Replaced > 0 {
		fmt.Printf(" (%d replaced)", sum.Replaced)
	}
	fmt.Println()
	fmt.Printf("  rejected   %d\n", sum.Rejected)
	colorYellow.Printf("  skipped    %d\n", sum.Skipped)
	for _, reason := range sum.SortedReasons() {
		fmt.Printf("    %-34s %d\n", reason, sum.Reasons[reason])
	}
	q := sum.Quality
	if q.MissingLabels+q.MissingContexts+q.XBRLFallbacks > 0 {
		colorYellow.Printf("  quality    %d missing labels, %d missing contexts, %d spreadsheet fallbacks\n",
			q.MissingLabels, q.MissingContexts, q.XBRLFallbacks)
	}
	if sum.Aborted != "" {
		colorRed.Printf("  aborted    %s\n", sum.Aborted)
	}
}
