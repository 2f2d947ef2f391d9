package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/brojonat/soltrack/service/metrics"
	"github.com/brojonat/soltrack/service/report"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

// ErrNotFound is returned when a lookup matches no rows.
var ErrNotFound = errors.New("not found")

// Store provides database operations for the service.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// If metrics is nil, no metrics will be recorded.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{
		pool:    pool,
		metrics: m,
	}
}

// Connect opens a pool against databaseURL and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// Migrate creates the schema if it does not exist. It is safe to run repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// SaveSnapshot inserts a report snapshot.
func (s *Store) SaveSnapshot(ctx context.Context, snap *report.Snapshot) (err error) {
	defer s.observe("insert", "report_snapshots", time.Now(), &err)

	_, err = s.pool.Exec(ctx, `
		INSERT INTO report_snapshots (
			id, address, source, currency, generated_at,
			transaction_count, transfer_count, skipped_count,
			received, sent, net, rate, fiat_net
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		pgUUID(snap.ID), snap.Address, snap.Source, snap.Currency, snap.GeneratedAt,
		snap.TransactionCount, snap.TransferCount, snap.SkippedCount,
		snap.Received, snap.Sent, snap.Net, snap.Rate, snap.FiatNet,
	)
	return err
}

const snapshotColumns = `id, address, source, currency, generated_at,
	transaction_count, transfer_count, skipped_count,
	received, sent, net, rate, fiat_net`

// ListSnapshots returns the address's most recent snapshots, newest first.
func (s *Store) ListSnapshots(ctx context.Context, address string, limit int) (snaps []*report.Snapshot, err error) {
	defer s.observe("select", "report_snapshots", time.Now(), &err)

	rows, err := s.pool.Query(ctx, `
		SELECT `+snapshotColumns+`
		FROM report_snapshots
		WHERE address = $1
		ORDER BY generated_at DESC
		LIMIT $2`, address, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snaps = []*report.Snapshot{}
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// LatestSnapshot returns the address's newest snapshot or ErrNotFound.
func (s *Store) LatestSnapshot(ctx context.Context, address string) (snap *report.Snapshot, err error) {
	defer s.observe("select", "report_snapshots", time.Now(), &err)

	row := s.pool.QueryRow(ctx, `
		SELECT `+snapshotColumns+`
		FROM report_snapshots
		WHERE address = $1
		ORDER BY generated_at DESC
		LIMIT 1`, address)
	snap, err = scanSnapshot(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return snap, err
}

// DeleteSnapshotsOlderThan prunes history and returns the number of rows removed.
func (s *Store) DeleteSnapshotsOlderThan(ctx context.Context, before time.Time) (n int64, err error) {
	defer s.observe("delete", "report_snapshots", time.Now(), &err)

	tag, err := s.pool.Exec(ctx, `DELETE FROM report_snapshots WHERE generated_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Watch is a wallet registered for periodic report snapshots.
type Watch struct {
	Address   string        `json:"address"`
	Source    string        `json:"source"`
	Interval  time.Duration `json:"interval"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// UpsertWatch registers a watch or updates its interval.
func (s *Store) UpsertWatch(ctx context.Context, address, source string, interval time.Duration) (w *Watch, err error) {
	defer s.observe("upsert", "watched_wallets", time.Now(), &err)

	row := s.pool.QueryRow(ctx, `
		INSERT INTO watched_wallets (address, source, snapshot_interval)
		VALUES ($1, $2, $3)
		ON CONFLICT (address, source)
		DO UPDATE SET snapshot_interval = EXCLUDED.snapshot_interval, updated_at = now()
		RETURNING address, source, snapshot_interval, created_at, updated_at`,
		address, source, pgIntervalFromDuration(interval))
	return scanWatch(row)
}

// DeleteWatch removes a watch. It returns ErrNotFound if none existed.
func (s *Store) DeleteWatch(ctx context.Context, address, source string) (err error) {
	defer s.observe("delete", "watched_wallets", time.Now(), &err)

	tag, err := s.pool.Exec(ctx, `DELETE FROM watched_wallets WHERE address = $1 AND source = $2`, address, source)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListWatches returns every registered watch ordered by address.
func (s *Store) ListWatches(ctx context.Context) (watches []*Watch, err error) {
	defer s.observe("select", "watched_wallets", time.Now(), &err)

	rows, err := s.pool.Query(ctx, `
		SELECT address, source, snapshot_interval, created_at, updated_at
		FROM watched_wallets
		ORDER BY address, source`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	watches = []*Watch{}
	for rows.Next() {
		w, err := scanWatch(rows)
		if err != nil {
			return nil, err
		}
		watches = append(watches, w)
	}
	return watches, rows.Err()
}

func (s *Store) observe(op, table string, start time.Time, err *error) {
	var e error
	if err != nil && !errors.Is(*err, ErrNotFound) {
		e = *err
	}
	s.metrics.RecordDBQuery(op, table, time.Since(start).Seconds(), e)
}

func scanSnapshot(row pgx.Row) (*report.Snapshot, error) {
	var (
		snap report.Snapshot
		id   pgtype.UUID
	)
	err := row.Scan(
		&id, &snap.Address, &snap.Source, &snap.Currency, &snap.GeneratedAt,
		&snap.TransactionCount, &snap.TransferCount, &snap.SkippedCount,
		&snap.Received, &snap.Sent, &snap.Net, &snap.Rate, &snap.FiatNet,
	)
	if err != nil {
		return nil, err
	}
	snap.ID = uuid.UUID(id.Bytes)
	snap.GeneratedAt = snap.GeneratedAt.UTC()
	return &snap, nil
}

func scanWatch(row pgx.Row) (*Watch, error) {
	var (
		w        Watch
		interval pgtype.Interval
	)
	if err := row.Scan(&w.Address, &w.Source, &interval, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	w.Interval = durationFromPgInterval(interval)
	return &w, nil
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func pgIntervalFromDuration(d time.Duration) pgtype.Interval {
	return pgtype.Interval{
		Microseconds: d.Microseconds(),
		Valid:        true,
	}
}

func durationFromPgInterval(i pgtype.Interval) time.Duration {
	if !i.Valid {
		return 0
	}
	return time.Duration(i.Microseconds) * time.Microsecond
}
