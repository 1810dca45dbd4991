package store

import (
	"context"
	"encoding/json"
	"errors"
	"net"

	"edgar_facts/pkg/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const createFilingRecords = `
	CREATE TABLE IF NOT EXISTS filing_records (
		cik              TEXT NOT NULL,
		form_type        TEXT NOT NULL,
		period_of_report TEXT NOT NULL,
		accession_number TEXT NOT NULL COLLATE "C",
		filing_date      DATE NOT NULL,
		amendment        BOOLEAN NOT NULL DEFAULT FALSE,
		filed_form_type  TEXT NOT NULL,
		company_name     TEXT,
		filing_id        TEXT,
		source           TEXT NOT NULL,
		data             JSONB NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (cik, form_type, period_of_report)
	)`

// upsertFilingRecord only overwrites a stored row whose version is not newer
// than the incoming one. No row comes back when the stored row wins.
const upsertFilingRecord = `
	INSERT INTO filing_records (
		cik, form_type, period_of_report, accession_number, filing_date,
		amendment, filed_form_type, company_name, filing_id, source, data
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (cik, form_type, period_of_report)
	DO UPDATE SET
		accession_number = EXCLUDED.accession_number,
		filing_date = EXCLUDED.filing_date,
		amendment = EXCLUDED.amendment,
		filed_form_type = EXCLUDED.filed_form_type,
		company_name = EXCLUDED.company_name,
		filing_id = EXCLUDED.filing_id,
		source = EXCLUDED.source,
		data = EXCLUDED.data,
		updated_at = NOW()
	WHERE (filing_records.filing_date, filing_records.amendment, filing_records.accession_number)
		<= (EXCLUDED.filing_date, EXCLUDED.amendment, EXCLUDED.accession_number)
	RETURNING (xmax = 0) AS inserted`

// PostgresSink stores records in the filing_records table.
type PostgresSink struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresSink connects to databaseURL and creates the table if missing.
func NewPostgresSink(ctx context.Context, databaseURL string, logger *zap.Logger) (*PostgresSink, error) {
	if databaseURL == "" {
		return nil, eris.Wrap(ErrSinkUnavailable, "DATABASE_URL not set")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "store: parse database config")
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, eris.Wrapf(ErrSinkUnavailable, "connect: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrapf(ErrSinkUnavailable, "ping: %v", err)
	}

	s := &PostgresSink{pool: pool, logger: logger.With(zap.String("component", "postgres_sink"))}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the filing_records table.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createFilingRecords); err != nil {
		return eris.Wrap(err, "store: create filing_records")
	}
	return nil
}

func (s *PostgresSink) Upsert(ctx context.Context, rec *models.FilingRecord) (Outcome, error) {
	args, err := recordArgs(rec)
	if err != nil {
		return 0, sinkErr(rec.Identity, err)
	}

	var inserted bool
	err = s.pool.QueryRow(ctx, upsertFilingRecord, args...).Scan(&inserted)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		s.logger.Debug("stored version is newer",
			zap.String("identity", rec.Identity.Key()),
			zap.String("accession", rec.AccessionNumber))
		return Unchanged, nil
	case err != nil:
		return 0, sinkErr(rec.Identity, classifyPgError(err))
	case inserted:
		return Inserted, nil
	}
	return Replaced, nil
}

// Get loads the stored record for id.
func (s *PostgresSink) Get(ctx context.Context, id models.FilingIdentity) (*models.FilingRecord, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM filing_records WHERE cik = $1 AND form_type = $2 AND period_of_report = $3`,
		id.CIK, id.FormType, id.PeriodOfReport,
	).Scan(&data)
	if err != nil {
		return nil, eris.Wrapf(classifyPgError(err), "store: get %s", id)
	}
	var rec models.FilingRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, eris.Wrap(err, "store: decode record")
	}
	return &rec, nil
}

func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}

// recordArgs lays a record out in upsertFilingRecord parameter order.
func recordArgs(rec *models.FilingRecord) ([]any, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, eris.Wrap(err, "marshal record")
	}
	return []any{
		rec.Identity.CIK,
		rec.Identity.FormType,
		rec.Identity.PeriodOfReport,
		rec.AccessionNumber,
		rec.FilingDate,
		rec.Amendment,
		rec.FormType,
		rec.CompanyName,
		string(rec.FilingID),
		string(rec.Source),
		data,
	}, nil
}

// classifyPgError marks connection loss as ErrSinkUnavailable.
func classifyPgError(err error) error {
	var connErr *pgconn.ConnectError
	var netErr net.Error
	switch {
	case errors.As(err, &connErr), errors.As(err, &netErr), errors.Is(err, net.ErrClosed):
		return eris.Wrapf(ErrSinkUnavailable, "%v", err)
	case pgconn.Timeout(err):
		return eris.Wrapf(ErrSinkUnavailable, "timeout: %v", err)
	}
	return err
}
