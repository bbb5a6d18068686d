// Package postgres implements the storage interfaces on PostgreSQL. Schema
// migrations are embedded and applied on open.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/DataStream-Network/dat_ledger/internal/domain/submission"
	"github.com/DataStream-Network/dat_ledger/internal/fact"
	"github.com/DataStream-Network/dat_ledger/internal/storage"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ storage.Store = (*Store)(nil)

// Open connects, migrates, and returns a ready store.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := Migrate(db.DB); err != nil {
		db.Close()
		return nil, err
	}
	return New(db), nil
}

// New wraps an existing database handle without migrating. Tests use this
// with a mocked handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Migrate applies the embedded schema migrations.
func Migrate(db *sql.DB) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("prepare migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("prepare migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// FactStore implementation ----------------------------------------------------

type factRow struct {
	Seq           uint64    `db:"seq"`
	SchemaVersion int       `db:"schema_version"`
	Type          string    `db:"type"`
	AssetID       uint64    `db:"asset_id"`
	Timestamp     time.Time `db:"ts"`
	Attrs         []byte    `db:"attrs"`
}

func (r factRow) toFact() fact.Fact {
	return fact.Fact{
		SchemaVersion: r.SchemaVersion,
		Seq:           r.Seq,
		Type:          fact.Type(r.Type),
		AssetID:       r.AssetID,
		Timestamp:     r.Timestamp,
		Attrs:         json.RawMessage(r.Attrs),
	}
}

func (s *Store) AppendFacts(ctx context.Context, facts []fact.Fact) error {
	if len(facts) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	for _, f := range facts {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO dat_facts (seq, schema_version, type, asset_id, ts, attrs)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, f.Seq, f.SchemaVersion, string(f.Type), f.AssetID, f.Timestamp, []byte(f.Attrs)); err != nil {
			return fmt.Errorf("insert fact seq %d: %w", f.Seq, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

func (s *Store) FactsFrom(ctx context.Context, from uint64, limit int) ([]fact.Fact, error) {
	if limit <= 0 {
		limit = 1000
	}
	var rows []factRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT seq, schema_version, type, asset_id, ts, attrs
		FROM dat_facts
		WHERE seq >= $1
		ORDER BY seq
		LIMIT $2
	`, from, limit); err != nil {
		return nil, fmt.Errorf("select facts: %w", err)
	}
	facts := make([]fact.Fact, len(rows))
	for i, r := range rows {
		facts[i] = r.toFact()
	}
	return facts, nil
}

func (s *Store) LastFactSeq(ctx context.Context) (uint64, error) {
	var last uint64
	if err := s.db.GetContext(ctx, &last, `SELECT COALESCE(MAX(seq), 0) FROM dat_facts`); err != nil {
		return 0, fmt.Errorf("select last fact seq: %w", err)
	}
	return last, nil
}

// SubmissionStore implementation ----------------------------------------------

type submissionRow struct {
	ID             string       `db:"id"`
	IdempotencyKey string       `db:"idempotency_key"`
	Operation      string       `db:"operation"`
	Args           []byte       `db:"args"`
	Principal      string       `db:"principal"`
	Status         string       `db:"status"`
	Success        bool         `db:"success"`
	FailureCode    string       `db:"failure_code"`
	FailureMsg     string       `db:"failure_msg"`
	Height         uint64       `db:"height"`
	FirstFactSeq   uint64       `db:"first_fact_seq"`
	FactCount      int          `db:"fact_count"`
	CostUnits      uint64       `db:"cost_units"`
	SubmittedAt    time.Time    `db:"submitted_at"`
	SealedAt       sql.NullTime `db:"sealed_at"`
}

func (r submissionRow) toRecord() *submission.Record {
	rec := &submission.Record{
		ID:             r.ID,
		IdempotencyKey: r.IdempotencyKey,
		Operation:      r.Operation,
		Args:           json.RawMessage(r.Args),
		Principal:      r.Principal,
		Status:         submission.Status(r.Status),
		Success:        r.Success,
		FailureCode:    r.FailureCode,
		FailureMsg:     r.FailureMsg,
		Height:         r.Height,
		FirstFactSeq:   r.FirstFactSeq,
		FactCount:      r.FactCount,
		CostUnits:      r.CostUnits,
		SubmittedAt:    r.SubmittedAt,
	}
	if r.SealedAt.Valid {
		rec.SealedAt = r.SealedAt.Time
	}
	return rec
}

const submissionColumns = `id, idempotency_key, operation, args, principal, status,
	success, failure_code, failure_msg, height, first_fact_seq, fact_count,
	cost_units, submitted_at, sealed_at`

func (s *Store) CreateSubmission(ctx context.Context, rec *submission.Record) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO dat_submissions
			(id, idempotency_key, operation, args, principal, status, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID, rec.IdempotencyKey, rec.Operation, []byte(rec.Args), rec.Principal,
		string(rec.Status), rec.SubmittedAt); err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

func (s *Store) UpdateSubmission(ctx context.Context, rec *submission.Record) error {
	sealedAt := sql.NullTime{}
	if !rec.SealedAt.IsZero() {
		sealedAt = sql.NullTime{Time: rec.SealedAt, Valid: true}
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE dat_submissions
		SET status = $2, success = $3, failure_code = $4, failure_msg = $5,
			height = $6, first_fact_seq = $7, fact_count = $8, cost_units = $9,
			sealed_at = $10
		WHERE id = $1
	`, rec.ID, string(rec.Status), rec.Success, rec.FailureCode, rec.FailureMsg,
		rec.Height, rec.FirstFactSeq, rec.FactCount, rec.CostUnits, sealedAt)
	if err != nil {
		return fmt.Errorf("update submission: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("submission %s: %w", rec.ID, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) GetSubmission(ctx context.Context, id string) (*submission.Record, error) {
	var row submissionRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+submissionColumns+` FROM dat_submissions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("submission %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select submission: %w", err)
	}
	return row.toRecord(), nil
}

func (s *Store) GetSubmissionByKey(ctx context.Context, idempotencyKey string) (*submission.Record, error) {
	var row submissionRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+submissionColumns+` FROM dat_submissions WHERE idempotency_key = $1`, idempotencyKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("idempotency key %s: %w", idempotencyKey, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select submission by key: %w", err)
	}
	return row.toRecord(), nil
}

func (s *Store) ListUnsealedSubmissions(ctx context.Context) ([]*submission.Record, error) {
	var rows []submissionRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT `+submissionColumns+`
		FROM dat_submissions
		WHERE status <> $1
		ORDER BY submitted_at
	`, string(submission.StatusSealed)); err != nil {
		return nil, fmt.Errorf("select unsealed submissions: %w", err)
	}
	out := make([]*submission.Record, len(rows))
	for i, r := range rows {
		out[i] = r.toRecord()
	}
	return out, nil
}

func (s *Store) LastSealedHeight(ctx context.Context) (uint64, error) {
	var height uint64
	if err := s.db.GetContext(ctx, &height, `
		SELECT COALESCE(MAX(height), 0) FROM dat_submissions WHERE status = $1
	`, string(submission.StatusSealed)); err != nil {
		return 0, fmt.Errorf("select last sealed height: %w", err)
	}
	return height, nil
}

func (s *Store) DeleteSealedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM dat_submissions WHERE status = $1 AND sealed_at < $2
	`, string(submission.StatusSealed), cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete sealed submissions: %w", err)
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}
