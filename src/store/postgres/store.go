// Package postgres stores reconciled orders in a PostgreSQL table.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/username/reportsync/src/config"
	"github.com/username/reportsync/src/logger"
	"github.com/username/reportsync/src/models"
)

// Connect opens a pool for databaseURL.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return pool, nil
}

// statements holds the SQL for one table and field mapping.
type statements struct {
	create string
	index  string
	find   string
	insert string
	update string
}

func buildStatements(table string, fields config.FieldMapping) statements {
	t := pgx.Identifier{table}.Sanitize()
	src := pgx.Identifier{fields.Source}.Sanitize()
	amt := pgx.Identifier{fields.Amount}.Sanitize()
	oid := pgx.Identifier{fields.OrderID}.Sanitize()
	date := pgx.Identifier{fields.OrderDate}.Sanitize()
	done := pgx.Identifier{fields.Processed}.Sanitize()
	idx := pgx.Identifier{"idx_" + table + "_order_id"}.Sanitize()

	var st statements
	st.create = fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id BIGSERIAL PRIMARY KEY,
			%[2]s TEXT NOT NULL DEFAULT '',
			%[3]s NUMERIC NOT NULL DEFAULT 0,
			%[4]s BIGINT NOT NULL,
			%[5]s DATE NOT NULL,
			%[6]s BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, t, src, amt, oid, date, done)
	st.index = fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (%s)`, idx, t, oid)
	st.find = fmt.Sprintf(`SELECT id FROM %s WHERE %s = $1 ORDER BY id LIMIT 1`, t, oid)
	st.insert = fmt.Sprintf(`INSERT INTO %s (%s, %s, %s, %s, %s) VALUES ($1, $2::text::numeric, $3, $4::text::date, $5) RETURNING id`,
		t, src, amt, oid, date, done)
	st.update = fmt.Sprintf(`UPDATE %s SET %s = $1, %s = $2::text::numeric, %s = $3, %s = $4::text::date, %s = $5, updated_at = NOW() WHERE id = $6`,
		t, src, amt, oid, date, done)
	return st
}

type Store struct {
	pool  *pgxpool.Pool
	table string
	sql   statements
}

// NewStore ensures the orders table exists and returns a store over it.
func NewStore(ctx context.Context, pool *pgxpool.Pool, table string, fields config.FieldMapping) (*Store, error) {
	s := &Store{pool: pool, table: table, sql: buildStatements(table, fields)}
	if _, err := pool.Exec(ctx, s.sql.create); err != nil {
		return nil, fmt.Errorf("failed to create table %s: %w", table, err)
	}
	if _, err := pool.Exec(ctx, s.sql.index); err != nil {
		return nil, fmt.Errorf("failed to create index on %s: %w", table, err)
	}
	logger.L.Info("Database tables ensured/created.", "table", table)
	return s, nil
}

func (s *Store) FindByOrderID(ctx context.Context, orderID int64) (string, bool, error) {
	var id int64
	err := s.pool.QueryRow(ctx, s.sql.find, orderID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query %s: %w", s.table, err)
	}
	return strconv.FormatInt(id, 10), true, nil
}

func (s *Store) CreateRecord(ctx context.Context, props models.RecordProperties) (string, error) {
	var id int64
	err := s.pool.QueryRow(ctx, s.sql.insert,
		props.Source, props.Amount.String(), props.OrderID, props.OrderDate, props.Processed,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to insert into %s: %w", s.table, err)
	}
	return strconv.FormatInt(id, 10), nil
}

func (s *Store) UpdateRecord(ctx context.Context, recordID string, props models.RecordProperties) error {
	id, err := strconv.ParseInt(recordID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid record id %q: %w", recordID, err)
	}
	tag, err := s.pool.Exec(ctx, s.sql.update,
		props.Source, props.Amount.String(), props.OrderID, props.OrderDate, props.Processed, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", s.table, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record %s not found in %s", recordID, s.table)
	}
	return nil
}
