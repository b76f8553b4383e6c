package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"ResaleScanner/internal/domain"
	"ResaleScanner/internal/ports"
)

// Dialect selects the SQL flavour and driver.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"

	recordsTable  = "processing_records"
	sqlBatchLimit = 100
)

// SQLStore keeps processing records as JSON attribute documents in Postgres
// or SQLite.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	builder sq.StatementBuilderType
}

var _ ports.RecordStore = (*SQLStore)(nil)

// NewSQLStore wires an open database handle.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	var format sq.PlaceholderFormat = sq.Question
	if dialect == DialectPostgres {
		format = sq.Dollar
	}
	return &SQLStore{
		db:      db,
		dialect: dialect,
		builder: sq.StatementBuilder.PlaceholderFormat(format),
	}
}

// OpenSQLStore opens dsn with the driver matching dialect.
func OpenSQLStore(dialect Dialect, dsn string) (*SQLStore, error) {
	switch dialect {
	case DialectPostgres, DialectSQLite:
	default:
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	}
	return NewSQLStore(db, dialect), nil
}

// Close releases the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Migrate creates the records table when missing.
func (s *SQLStore) Migrate(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS ` + recordsTable + ` (
              id TEXT PRIMARY KEY,
              attributes TEXT NOT NULL,
              updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
              )`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", recordsTable, err)
	}
	return nil
}

// BatchLimit reports the maximum keys per BatchGet.
func (s *SQLStore) BatchLimit() int {
	return sqlBatchLimit
}

// BatchGet returns the records stored under keys.
func (s *SQLStore) BatchGet(ctx context.Context, keys []string) (map[string]domain.Record, error) {
	result := make(map[string]domain.Record)
	keys = uniqueKeys(keys)
	if len(keys) == 0 {
		return result, nil
	}
	if len(keys) > sqlBatchLimit {
		return nil, fmt.Errorf("batch get: %d keys exceeds limit %d", len(keys), sqlBatchLimit)
	}

	query, args, err := s.builder.
		Select("id", "attributes").
		From(recordsTable).
		Where(sq.Eq{"id": keys}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build batch get: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}

	for rows.Next() {
		var (
			id   string
			body string
		)
		if err := rows.Scan(&id, &body); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan record: %w", err)
		}
		var rec domain.Record
		if err := json.Unmarshal([]byte(body), &rec); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("decode record %s: %w", id, err)
		}
		rec.ID = id
		result[id] = rec
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return result, nil
}

// Upsert merges req into the stored document inside one transaction.
func (s *SQLStore) Upsert(ctx context.Context, req domain.UpsertRequest) (err error) {
	if req.Key == "" {
		return errors.New("upsert: empty key")
	}
	if len(req.Overwrite) == 0 && len(req.CreateOnly) == 0 {
		return fmt.Errorf("upsert %s: no attributes", req.Key)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	existing, err := s.loadForUpdate(ctx, tx, req.Key)
	if err != nil {
		return err
	}

	merged := mergeAttributes(existing, req)
	body, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", req.Key, err)
	}

	query, args, err := s.builder.
		Insert(recordsTable).
		Columns("id", "attributes", "updated_at").
		Values(req.Key, string(body), sq.Expr("CURRENT_TIMESTAMP")).
		Suffix("ON CONFLICT (id) DO UPDATE SET attributes = excluded.attributes, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert record %s: %w", req.Key, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert %s: %w", req.Key, err)
	}
	return nil
}

func (s *SQLStore) loadForUpdate(ctx context.Context, tx *sql.Tx, key string) (map[string]any, error) {
	sel := s.builder.Select("attributes").From(recordsTable).Where(sq.Eq{"id": key})
	if s.dialect == DialectPostgres {
		sel = sel.Suffix("FOR UPDATE")
	}
	query, args, err := sel.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var body string
	err = tx.QueryRowContext(ctx, query, args...).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load record %s: %w", key, err)
	}

	existing := map[string]any{}
	if err := json.Unmarshal([]byte(body), &existing); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", key, err)
	}
	return existing, nil
}

func mergeAttributes(existing map[string]any, req domain.UpsertRequest) map[string]any {
	merged := make(map[string]any, len(existing)+len(req.Overwrite)+len(req.CreateOnly))
	for name, value := range existing {
		merged[name] = value
	}
	for name, value := range req.CreateOnly {
		if _, ok := merged[name]; !ok {
			merged[name] = value
		}
	}
	for name, value := range req.Overwrite {
		merged[name] = value
	}
	return merged
}
