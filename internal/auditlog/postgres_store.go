package auditlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresStore persists audit records to PostgreSQL via a pgx pool,
// for deployments that already run Postgres for other purposes and
// would rather not carry a second storage engine for audit data.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to Postgres, runs the same migration set
// SQLiteStore uses, and returns a ready Store.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres audit pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres audit db: %w", err)
	}

	if err := runPostgresMigrations(dsn); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func runPostgresMigrations(dsn string) error {
	connCfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("parse postgres dsn: %w", err)
	}
	db := sql.OpenDB(stdlib.GetConnector(*connCfg))
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("run postgres audit migrations: %w", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, rec AuditRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Time.IsZero() {
		rec.Time = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_records (id, occurred_at, kind, tier, pattern_preview, ref_count_at_event, bytes_freed)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.Time, string(rec.Kind), rec.Tier, rec.PatternPreview, rec.RefCountAtEvent, rec.BytesFreed,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]AuditRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, occurred_at, kind, tier, pattern_preview, ref_count_at_event, bytes_freed
		 FROM audit_records ORDER BY occurred_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var out []AuditRecord
	for rows.Next() {
		var rec AuditRecord
		var kind string
		if err := rows.Scan(&rec.ID, &rec.Time, &kind, &rec.Tier, &rec.PatternPreview, &rec.RefCountAtEvent, &rec.BytesFreed); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		rec.Kind = EventKind(kind)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
