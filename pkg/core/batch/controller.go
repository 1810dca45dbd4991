// Package batch drives filings through load, scan, filter, extraction and
// persistence with a bounded worker pool.
package batch

import (
	"context"
	"errors"
	"sync"
	"time"

	"edgar_facts/pkg/core/filing"
	"edgar_facts/pkg/core/filter"
	"edgar_facts/pkg/core/ingest"
	"edgar_facts/pkg/core/store"
	"edgar_facts/pkg/core/xbrl"
	"edgar_facts/pkg/core/xls"
	"edgar_facts/pkg/models"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options tunes a Controller.
type Options struct {
	Retries        int           // extra attempts for retryable load failures
	Backoff        time.Duration // linear: attempt n waits n*Backoff
	CheckpointPath string        // empty disables checkpointing
}

// Controller owns the loader and the sink for a run.
type Controller struct {
	loader ingest.Loader
	sink   store.Sink
	logger *zap.Logger
	opts   Options
	locks  *identityLocks
}

// NewController wires a controller. A nil logger discards output.
func NewController(loader ingest.Loader, sink store.Sink, logger *zap.Logger, opts Options) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	return &Controller{
		loader: loader,
		sink:   sink,
		logger: logger.With(zap.String("component", "batch")),
		opts:   opts,
		locks:  newIdentityLocks(),
	}
}

// runState is shared by the workers of one run.
type runState struct {
	runID    string
	pipeline filter.Pipeline
	capacity *capacity
	tally    *tally
	progress *progress
	logger   *zap.Logger

	cpMu      sync.Mutex
	lastSaved int
}

// =============================================================================
// RUN
// =============================================================================

// Run processes ids with k workers and always returns a summary. With k == 1
// filings are handled strictly in input order. The returned error is non-nil
// only when the source or the sink was lost, or ctx was cancelled.
func (c *Controller) Run(ctx context.Context, ids []models.FilingID, spec models.FilterSpec, k int) (Summary, error) {
	if k < 1 {
		k = 1
	}
	rs := &runState{
		runID:    uuid.NewString(),
		pipeline: filter.FromSpec(spec),
		capacity: newCapacity(spec.MaxCount),
		tally: &tally{sum: Summary{
			Input:   len(ids),
			Reasons: make(map[string]int),
			Sources: make(map[string]int),
			Started: time.Now(),
		}},
		progress:  newProgress(ids),
		lastSaved: -1,
	}
	rs.tally.sum.RunID = rs.runID
	rs.logger = c.logger.With(zap.String("run_id", rs.runID))

	start := 0
	if spec.ResumeAt != "" {
		pos := indexOf(ids, spec.ResumeAt)
		if pos < 0 {
			rs.logger.Warn("resume marker not in filing list, processing everything",
				zap.String("resume_at", string(spec.ResumeAt)))
		} else {
			start = pos + 1
			rs.tally.sum.Resumed = start
			for i := 0; i < start; i++ {
				rs.progress.markDone(i)
			}
		}
	}

	rs.logger.Info("batch started",
		zap.Int("filings", len(ids)),
		zap.Int("workers", k),
		zap.Int("resumed", start),
		zap.Int("max", spec.MaxCount))

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan int)

	g.Go(func() error {
		defer close(jobs)
		for i := start; i < len(ids); i++ {
			if rs.capacity.full() {
				rs.logger.Info("max count reached, no new filings launched", zap.Int("remaining", len(ids)-i))
				return nil
			}
			select {
			case jobs <- i:
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})

	for w := 0; w < k; w++ {
		g.Go(func() error {
			for i := range jobs {
				if gctx.Err() != nil {
					return nil
				}
				// a filing that started runs to its terminal state
				o, replaced := c.process(context.WithoutCancel(gctx), ids[i], rs)
				rs.tally.add(o, replaced)
				c.finish(rs, i)
				if isFatal(o.Err) {
					return o.Err
				}
			}
			return nil
		})
	}

	err := g.Wait()
	if err == nil && ctx.Err() != nil {
		err = eris.Wrap(ctx.Err(), "batch: run cancelled")
	}

	sum := rs.tally.snapshot()
	sum.Finished = time.Now()
	if err != nil {
		sum.Aborted = err.Error()
		rs.logger.Error("batch aborted", zap.Error(err))
	}
	rs.logger.Info("batch finished",
		zap.Int("processed", sum.Processed),
		zap.Int("persisted", sum.Persisted),
		zap.Int("skipped", sum.Skipped),
		zap.Int("rejected", sum.Rejected),
		zap.Int("missing_labels", sum.Quality.MissingLabels),
		zap.Int("missing_contexts", sum.Quality.MissingContexts),
		zap.Duration("elapsed", sum.Duration()))
	return sum, err
}

// ProcessOne runs a single filing through the pipeline built from spec.
// MaxCount and ResumeAt do not apply.
func (c *Controller) ProcessOne(ctx context.Context, id models.FilingID, spec models.FilterSpec) Outcome {
	rs := &runState{
		pipeline: filter.FromSpec(spec),
		capacity: newCapacity(0),
		tally:    &tally{sum: Summary{Reasons: map[string]int{}, Sources: map[string]int{}}},
		logger:   c.logger,
	}
	o, _ := c.process(ctx, id, rs)
	return o
}

func (c *Controller) finish(rs *runState, i int) {
	pos, id := rs.progress.markDone(i)
	if c.opts.CheckpointPath == "" || pos < 0 {
		return
	}
	rs.cpMu.Lock()
	defer rs.cpMu.Unlock()
	if pos <= rs.lastSaved {
		return
	}
	cp := Checkpoint{
		RunID:     rs.runID,
		FilingID:  id,
		Position:  pos,
		Persisted: rs.tally.persisted(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := SaveCheckpoint(c.opts.CheckpointPath, cp); err != nil {
		rs.logger.Warn("checkpoint write failed", zap.Error(err))
		return
	}
	rs.lastSaved = pos
}

func isFatal(err error) bool {
	return err != nil && (errors.Is(err, ingest.ErrUnavailable) || errors.Is(err, store.ErrSinkUnavailable))
}

func indexOf(ids []models.FilingID, id models.FilingID) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

// =============================================================================
// PER-FILING STATE MACHINE
// =============================================================================

func (c *Controller) process(ctx context.Context, id models.FilingID, rs *runState) (Outcome, bool) {
	o := Outcome{FilingID: id, State: Pending}
	log := rs.logger.With(zap.String("filing", string(id)))

	content, attempts, err := c.load(ctx, id, log)
	o.Attempts = attempts
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrUnavailable):
			return skip(log, o, ReasonAborted, err), false
		case errors.Is(err, ingest.ErrNotFound):
			return skip(log, o, ReasonNotFound, err), false
		}
		return skip(log, o, ReasonLoadFailed, err), false
	}
	defer content.Release()
	o.State = Loaded

	sections := filing.Scan(content)
	o.State = Scanned

	hdr, ok := filing.Find(sections, filing.Header)
	if !ok {
		return skip(log, o, ReasonMalformedHeader, eris.Wrap(filing.ErrMalformedHeader, "no header section")), false
	}
	fields, err := filing.ParseHeader(content, hdr)
	if err != nil {
		return skip(log, o, ReasonMalformedHeader, err), false
	}
	o.Identity = fields.Identity()
	log = log.With(zap.String("identity", o.Identity.Key()))

	if accepted, rejectedBy := rs.pipeline.Evaluate(fields, sections); !accepted {
		o.State = Rejected
		o.Reason = rejectedBy
		log.Debug("filing rejected", zap.String("predicate", rejectedBy))
		return o, false
	}
	o.State = Accepted

	rec, err := c.extract(content, sections, fields, &o, rs, log)
	if err != nil {
		if errors.Is(err, xbrl.ErrBadXML) {
			return skip(log, o, ReasonBadXML, err), false
		}
		return skip(log, o, ReasonNoUsableContent, err), false
	}
	o.State = Extracted
	o.Source = rec.Source

	return c.persist(ctx, rec, o, rs, log)
}

func (c *Controller) load(ctx context.Context, id models.FilingID, log *zap.Logger) (*filing.FileContent, int, error) {
	for attempt := 1; ; attempt++ {
		content, err := c.loader.Load(ctx, id)
		if err == nil {
			return content, attempt, nil
		}
		if !ingest.IsRetryable(err) || attempt > c.opts.Retries {
			return nil, attempt, err
		}
		wait := c.opts.Backoff * time.Duration(attempt)
		log.Debug("load failed, retrying", zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
		time.Sleep(wait)
	}
}

// extract prefers XBRL. A broken instance falls back to the spreadsheet when
// the filing carries one.
func (c *Controller) extract(content *filing.FileContent, sections []filing.DocumentSection, fields filing.HeaderFields, o *Outcome, rs *runState, log *zap.Logger) (*models.FilingRecord, error) {
	rec := &models.FilingRecord{
		Identity:        o.Identity,
		FilingID:        o.FilingID,
		AccessionNumber: fields.AccessionNumber,
		CIK:             fields.CIK,
		CompanyName:     fields.CompanyName,
		FormType:        fields.FormType,
		FileNumber:      fields.FileNumber,
		FilingDate:      fields.FilingDate,
		PeriodOfReport:  fields.PeriodOfReport,
		Amendment:       fields.IsAmendment(),
		ExtractedAt:     time.Now().UTC(),
	}
	if rec.AccessionNumber == "" {
		rec.AccessionNumber = string(o.FilingID)
	}

	var xbrlErr error
	if _, ok := filing.Find(sections, filing.XBRLInstance); ok {
		res, err := xbrl.Extract(content, sections)
		switch {
		case err != nil:
			var bad *xbrl.BadXMLError
			if errors.As(err, &bad) {
				bad.Identity = o.Identity
			}
			xbrlErr = err
		case len(res.Facts) > 0:
			o.MissingLabels = res.MissingLabels
			o.MissingContexts = res.MissingContexts
			if res.MissingValues() > 0 {
				log.Debug("unresolved facts",
					zap.Int("missing_labels", res.MissingLabels),
					zap.Int("missing_contexts", res.MissingContexts),
					zap.Int("facts", len(res.Facts)))
			}
			if len(res.SkippedLinkbases) > 0 {
				log.Debug("label linkbases skipped", zap.Strings("documents", res.SkippedLinkbases))
			}
			rec.Source = models.SourceXBRL
			rec.XBRL = res.Data()
			return rec, nil
		}
	}

	if _, ok := filing.Find(sections, filing.XLSBinary); ok {
		facts, err := xls.Extract(content, sections)
		switch {
		case err != nil:
			log.Debug("spreadsheet extraction failed", zap.Error(err))
		case facts.HasData():
			if xbrlErr != nil {
				rs.tally.fallback()
				log.Info("instance unreadable, using spreadsheet", zap.Error(xbrlErr))
			}
			rec.Source = models.SourceXLS
			rec.Spreadsheet = &facts
			return rec, nil
		}
	}

	if xbrlErr != nil {
		return nil, xbrlErr
	}
	return nil, ErrNoUsableContent
}

func (c *Controller) persist(ctx context.Context, rec *models.FilingRecord, o Outcome, rs *runState, log *zap.Logger) (Outcome, bool) {
	// reserve before locking the identity; a waiter holds no lock
	if !rs.capacity.reserve() {
		return skip(log, o, ReasonMaxCount, nil), false
	}
	unlock := c.locks.Lock(rec.Identity.Key())
	outcome, err := c.sink.Upsert(ctx, rec)
	unlock()
	rs.capacity.commit(err == nil && outcome != store.Unchanged)

	if err != nil {
		if errors.Is(err, store.ErrSinkUnavailable) {
			return skip(log, o, ReasonAborted, err), false
		}
		return skip(log, o, ReasonSinkError, err), false
	}
	if outcome == store.Unchanged {
		o.State = Skipped
		o.Reason = ReasonSuperseded
		log.Info("stored submission is newer, nothing written", zap.String("accession", rec.AccessionNumber))
		return o, false
	}

	o.State = Persisted
	log.Debug("filing persisted",
		zap.String("source", string(rec.Source)),
		zap.Stringer("outcome", outcome))
	return o, outcome == store.Replaced
}

func skip(log *zap.Logger, o Outcome, reason string, err error) Outcome {
	o.State = Skipped
	o.Reason = reason
	o.Err = err
	if isFatal(err) {
		log.Error("filing aborted", zap.String("reason", reason), zap.Error(err))
	} else {
		log.Info("filing skipped", zap.String("reason", reason), zap.Error(err))
	}
	return o
}

// =============================================================================
// MAX-COUNT RESERVATION
// =============================================================================

// capacity keeps the number of persisted filings at or below limit. A worker
// reserves a slot before writing; when every free slot is reserved it waits
// for an in-flight write to settle instead of giving up, so a failed write
// frees its slot for the next filing.
type capacity struct {
	mu        sync.Mutex
	cond      *sync.Cond
	limit     int
	persisted int
	reserved  int
}

func newCapacity(limit int) *capacity {
	c := &capacity{limit: limit}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (c *capacity) full() bool {
	if c.limit <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.persisted >= c.limit
}

func (c *capacity) reserve() bool {
	if c.limit <= 0 {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.persisted < c.limit && c.persisted+c.reserved >= c.limit {
		c.cond.Wait()
	}
	if c.persisted >= c.limit {
		return false
	}
	c.reserved++
	return true
}

func (c *capacity) commit(persisted bool) {
	if c.limit <= 0 {
		return
	}
	c.mu.Lock()
	c.reserved--
	if persisted {
		c.persisted++
	}
	c.mu.Unlock()
	c.cond.Broadcast()
}
