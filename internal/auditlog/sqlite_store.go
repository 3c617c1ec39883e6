package auditlog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"

	// Pure Go SQLite driver, avoids a cgo dependency in a library meant
	// to be embedded in arbitrary consumers.
	_ "modernc.org/sqlite"
)

// SQLiteStore persists audit records to an embedded SQLite database.
// Intended as the default: no external service required.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) a SQLite-backed Store. dsn is a
// modernc.org/sqlite DSN, e.g. "file:rxcache_audit.db?_pragma=journal_mode(WAL)".
func NewSQLiteStore(ctx context.Context, dsn string) (*SQLiteStore, error) {
	if !strings.Contains(dsn, "_pragma=journal_mode") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite audit db: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite audit db: %w", err)
	}

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("run sqlite audit migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, rec AuditRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Time.IsZero() {
		rec.Time = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_records (id, occurred_at, kind, tier, pattern_preview, ref_count_at_event, bytes_freed)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Time, string(rec.Kind), rec.Tier, rec.PatternPreview, rec.RefCountAtEvent, rec.BytesFreed,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]AuditRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, occurred_at, kind, tier, pattern_preview, ref_count_at_event, bytes_freed
		 FROM audit_records ORDER BY occurred_at DESC LIMIT ?`, limit)
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

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
