package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"mislaka/internal/storage"
)

// SQL Server accepts at most 2100 parameters per request.
const maxParams = 2100

// Repo implements storage.ClientRepository for Microsoft SQL Server.
//
// Client upserts use MERGE with HOLDLOCK so concurrent importers cannot both
// take the NOT MATCHED branch for the same id_number.
//
// This package does NOT blank-import a SQL Server driver. The application
// must register "sqlserver" elsewhere (internal/storage/all does).
type Repo struct {
	db dbConn
}

func init() {
	storage.Register("sqlserver", New)
}

// New opens cfg.DSN with the "sqlserver" driver and pings it.
func New(ctx context.Context, cfg storage.Config) (storage.ClientRepository, error) {
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	raw.SetMaxOpenConns(16)
	raw.SetMaxIdleConns(16)

	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return &Repo{db: &sqlDB{db: raw}}, nil
}

// Close releases database resources held by this repository.
func (r *Repo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

// EnsureSchema creates missing tables. It is idempotent.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	for _, t := range storage.Tables() {
		q, err := buildCreateSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// UpsertClients merges rows in parameter-bounded batches inside one
// transaction.
func (r *Repo) UpsertClients(ctx context.Context, rows []storage.ClientRow) (storage.UpsertStats, error) {
	var stats storage.UpsertStats
	if len(rows) == 0 {
		return stats, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	perBatch := maxParams / len(storage.ClientsTable.Columns)
	for _, w := range storage.Chunk(len(rows), perBatch) {
		batch := make([][]any, 0, w[1]-w[0])
		for _, row := range rows[w[0]:w[1]] {
			batch = append(batch, row.Values())
		}
		q, args := buildMergeSQL(storage.ClientsTable, batch, storage.ClientKeyColumn, storage.RowHashColumn)
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return storage.UpsertStats{}, fmt.Errorf("merge %s: %w", storage.ClientsTableName, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return storage.UpsertStats{}, err
		}
		stats.Written += int(n)
		stats.Unchanged += len(batch) - int(n)
	}

	if err := tx.Commit(); err != nil {
		return storage.UpsertStats{}, err
	}
	committed = true
	return stats, nil
}

func (r *Repo) GetClient(ctx context.Context, idNumber string) (storage.ClientRow, error) {
	var row storage.ClientRow
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s = @p1",
		mssqlIdentList(storage.ClientsTable.ColumnNames()),
		mssqlTableIdent(storage.ClientsTableName),
		mssqlIdent(storage.ClientKeyColumn))

	dest := append(row.ScanTargets(), &row.UpdatedAt)
	err := r.db.QueryRowContext(ctx, q, idNumber).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ClientRow{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.ClientRow{}, err
	}
	row.UpdatedAt = row.UpdatedAt.UTC()
	return row, nil
}

func (r *Repo) RecordImport(ctx context.Context, files []storage.ImportFile) error {
	if len(files) == 0 {
		return nil
	}
	rows := make([][]any, len(files))
	for i, f := range files {
		rows[i] = f.Values()
	}
	perBatch := maxParams / len(storage.ImportFilesTable.Columns)
	for _, w := range storage.Chunk(len(rows), perBatch) {
		q, args := buildBulkInsertSQL(storage.ImportFilesTable, rows[w[0]:w[1]])
		if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert %s: %w", storage.ImportFilesTableName, err)
		}
	}
	return nil
}

func columnType(c storage.ColumnSpec, key bool) (string, error) {
	switch c.Type {
	case storage.TypeText:
		if key {
			// index keys are capped at 900 bytes
			return "NVARCHAR(450)", nil
		}
		return "NVARCHAR(MAX)", nil
	case storage.TypeBool:
		return "BIT", nil
	case storage.TypeTimestamp:
		return "DATETIME2", nil
	}
	return "", fmt.Errorf("unsupported column type %q", c.Type)
}

// buildCreateSQL wraps CREATE TABLE in an OBJECT_ID guard since SQL Server
// has no CREATE TABLE IF NOT EXISTS.
func buildCreateSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("table name is empty")
	}
	isKey := make(map[string]bool, len(t.PrimaryKey))
	for _, k := range t.PrimaryKey {
		isKey[k] = true
	}

	defs := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		typ, err := columnType(c, isKey[c.Name])
		if err != nil {
			return "", fmt.Errorf("table %s column %s: %w", t.Name, c.Name, err)
		}
		def := mssqlIdent(c.Name) + " " + typ
		if c.Nullable {
			def += " NULL"
		} else {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	if len(t.PrimaryKey) > 0 {
		defs = append(defs, "PRIMARY KEY ("+mssqlIdentList(t.PrimaryKey)+")")
	}

	return wrapCreateIfMissing(t.Name, strings.Join(defs, ",\n  ")), nil
}

func wrapCreateIfMissing(tableName string, innerDefs string) string {
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL\nBEGIN\n  CREATE TABLE %s (\n  %s\n  );\nEND;",
		strings.ReplaceAll(tableName, "'", "''"),
		mssqlTableIdent(tableName),
		innerDefs,
	)
}

// placeholders appends one parenthesized @pN tuple per row, numbering
// row-major from 1.
func placeholders(b *strings.Builder, rows [][]any, width int) []any {
	args := make([]any, 0, len(rows)*width)
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := 0; j < width; j++ {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(b, "@p%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}
	return args
}

func buildBulkInsertSQL(t storage.TableSpec, rows [][]any) (string, []any) {
	cols := t.ColumnNames()

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(mssqlTableIdent(t.Name))
	b.WriteString(" (")
	b.WriteString(mssqlIdentList(cols))
	b.WriteString(") VALUES ")
	args := placeholders(&b, rows, len(cols))
	b.WriteString(";")
	return b.String(), args
}

// buildMergeSQL builds a MERGE keyed on keyColumn. Matched rows are only
// updated when hashColumn differs, so RowsAffected counts inserts plus
// real updates.
func buildMergeSQL(t storage.TableSpec, rows [][]any, keyColumn, hashColumn string) (string, []any) {
	cols := t.ColumnNames()

	var b strings.Builder
	b.WriteString("MERGE INTO ")
	b.WriteString(mssqlTableIdent(t.Name))
	b.WriteString(" WITH (HOLDLOCK) AS t USING (VALUES ")
	args := placeholders(&b, rows, len(cols))
	b.WriteString(") AS s (")
	b.WriteString(mssqlIdentList(cols))
	b.WriteString(") ON t.")
	b.WriteString(mssqlIdent(keyColumn))
	b.WriteString(" = s.")
	b.WriteString(mssqlIdent(keyColumn))

	b.WriteString(" WHEN MATCHED AND t.")
	b.WriteString(mssqlIdent(hashColumn))
	b.WriteString(" <> s.")
	b.WriteString(mssqlIdent(hashColumn))
	b.WriteString(" THEN UPDATE SET ")
	first := true
	for _, c := range cols {
		if c == keyColumn {
			continue
		}
		if !first {
			b.WriteString(", ")
		}
		first = false
		b.WriteString("t.")
		b.WriteString(mssqlIdent(c))
		b.WriteString(" = s.")
		b.WriteString(mssqlIdent(c))
	}

	b.WriteString(" WHEN NOT MATCHED THEN INSERT (")
	b.WriteString(mssqlIdentList(cols))
	b.WriteString(") VALUES (")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("s.")
		b.WriteString(mssqlIdent(c))
	}
	b.WriteString(");")
	return b.String(), args
}

// mssqlIdent returns a bracket-quoted identifier, escaping ']' as ']]'.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// mssqlTableIdent returns a bracket-quoted identifier for schema-qualified names.
//
// Example:
//
//	"dbo.clients" -> [dbo].[clients]
func mssqlTableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = mssqlIdent(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}

func mssqlIdentList(columns []string) string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = mssqlIdent(c)
	}
	return strings.Join(out, ", ")
}

// ---- database/sql seam types ----

// dbConn is a small interface over *sql.DB used to make this package testable.
type dbConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) rowScanner
	BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error)
	Close() error
}

// txConn is a small interface over *sql.Tx.
type txConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Commit() error
	Rollback() error
}

// rowScanner is a narrow adapter over *sql.Row.Scan.
type rowScanner interface {
	Scan(dest ...any) error
}

type sqlDB struct {
	db *sql.DB
}

func (s *sqlDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

func (s *sqlDB) QueryRowContext(ctx context.Context, query string, args ...any) rowScanner {
	return s.db.QueryRowContext(ctx, query, args...)
}

func (s *sqlDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error) {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *sqlDB) Close() error { return s.db.Close() }

var (
	_ dbConn = (*sqlDB)(nil)
	_ txConn = (*sql.Tx)(nil)
)
