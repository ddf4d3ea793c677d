package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/username/reportsync/src/config"
	"github.com/username/reportsync/src/logger"
	"github.com/username/reportsync/src/models"
	_ "modernc.org/sqlite"
)

// InitDB opens the SQLite database at databasePath. ":memory:" is accepted for
// throwaway runs and tests.
func InitDB(databasePath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", databasePath, err)
	}
	// SQLite serialises writers anyway; one connection also keeps an in-memory
	// database alive and shared.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database at %s: %w", databasePath, err)
	}
	logger.L.Info("Database opened", "databasePath", databasePath)
	return db, nil
}

// SQLiteStore keeps reconciled orders in a single table whose column names
// follow the configured field mapping.
type SQLiteStore struct {
	db     *sql.DB
	table  string
	fields config.FieldMapping
}

// NewSQLiteStore ensures the orders table exists, adding any mapped column a
// previous schema lacks, and returns a store over it.
func NewSQLiteStore(ctx context.Context, db *sql.DB, table string, fields config.FieldMapping) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db, table: table, fields: fields}

	createTableStatement := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		%[2]s TEXT NOT NULL DEFAULT '',
		%[3]s TEXT NOT NULL DEFAULT '0',
		%[4]s INTEGER NOT NULL,
		%[5]s TEXT NOT NULL,
		%[6]s BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS %[7]s ON %[1]s (%[4]s);
	`,
		quoteIdent(table),
		quoteIdent(fields.Source),
		quoteIdent(fields.Amount),
		quoteIdent(fields.OrderID),
		quoteIdent(fields.OrderDate),
		quoteIdent(fields.Processed),
		quoteIdent("idx_"+table+"_order_id"),
	)
	if _, err := db.ExecContext(ctx, createTableStatement); err != nil {
		return nil, fmt.Errorf("failed to create table %s: %w", table, err)
	}
	if err := s.migrateColumns(ctx); err != nil {
		return nil, err
	}
	logger.L.Info("Database tables ensured/created.", "table", table)
	return s, nil
}

// migrateColumns adds mapped columns missing from an existing table, e.g.
// after a property is renamed in configuration.
func (s *SQLiteStore) migrateColumns(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(s.table)))
	if err != nil {
		return fmt.Errorf("failed to query table schema for %s: %w", s.table, err)
	}
	defer rows.Close()

	columnExists := make(map[string]bool)
	for rows.Next() {
		var cid, notnullVal, pk int
		var name, dataType string
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &dataType, &notnullVal, &dfltValue, &pk); err != nil {
			return fmt.Errorf("failed to scan column info for %s: %w", s.table, err)
		}
		columnExists[name] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate column info for %s: %w", s.table, err)
	}

	wanted := []struct{ name, ddl string }{
		{s.fields.Source, "TEXT NOT NULL DEFAULT ''"},
		{s.fields.Amount, "TEXT NOT NULL DEFAULT '0'"},
		{s.fields.OrderID, "INTEGER NOT NULL DEFAULT 0"},
		{s.fields.OrderDate, "TEXT NOT NULL DEFAULT ''"},
		{s.fields.Processed, "BOOLEAN NOT NULL DEFAULT FALSE"},
		{"updated_at", "TIMESTAMP"},
	}
	for _, col := range wanted {
		if columnExists[col.name] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quoteIdent(s.table), quoteIdent(col.name), col.ddl)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			logger.L.Error("Error adding column", "table", s.table, "column", col.name, "error", err)
			return fmt.Errorf("failed to add column %s to %s: %w", col.name, s.table, err)
		}
		logger.L.Info("Added column", "table", s.table, "column", col.name)
	}
	return nil
}

func (s *SQLiteStore) FindByOrderID(ctx context.Context, orderID int64) (string, bool, error) {
	query := fmt.Sprintf("SELECT id FROM %s WHERE %s = ? ORDER BY id LIMIT 1", quoteIdent(s.table), quoteIdent(s.fields.OrderID))
	var id int64
	err := s.db.QueryRowContext(ctx, query, orderID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query %s: %w", s.table, err)
	}
	return strconv.FormatInt(id, 10), true, nil
}

func (s *SQLiteStore) CreateRecord(ctx context.Context, props models.RecordProperties) (string, error) {
	stmt := fmt.Sprintf("INSERT INTO %s (%s, %s, %s, %s, %s) VALUES (?, ?, ?, ?, ?)",
		quoteIdent(s.table),
		quoteIdent(s.fields.Source),
		quoteIdent(s.fields.Amount),
		quoteIdent(s.fields.OrderID),
		quoteIdent(s.fields.OrderDate),
		quoteIdent(s.fields.Processed),
	)
	res, err := s.db.ExecContext(ctx, stmt, props.Source, props.Amount.String(), props.OrderID, props.OrderDate, props.Processed)
	if err != nil {
		return "", fmt.Errorf("failed to insert into %s: %w", s.table, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("failed to read inserted id: %w", err)
	}
	return strconv.FormatInt(id, 10), nil
}

func (s *SQLiteStore) UpdateRecord(ctx context.Context, recordID string, props models.RecordProperties) error {
	id, err := strconv.ParseInt(recordID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid record id %q: %w", recordID, err)
	}
	stmt := fmt.Sprintf("UPDATE %s SET %s = ?, %s = ?, %s = ?, %s = ?, %s = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		quoteIdent(s.table),
		quoteIdent(s.fields.Source),
		quoteIdent(s.fields.Amount),
		quoteIdent(s.fields.OrderID),
		quoteIdent(s.fields.OrderDate),
		quoteIdent(s.fields.Processed),
	)
	res, err := s.db.ExecContext(ctx, stmt, props.Source, props.Amount.String(), props.OrderID, props.OrderDate, props.Processed, id)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", s.table, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("record %s not found in %s", recordID, s.table)
	}
	return nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
