package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"mislaka/internal/storage"
)

// Repo implements storage.ClientRepository for SQLite.
//
// SQLite has no native timestamp type, so timestamps are stored as
// RFC3339Nano TEXT in UTC and booleans as INTEGER 0/1.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

// New opens the database at cfg.DSN and verifies connectivity.
func New(ctx context.Context, cfg storage.Config) (storage.ClientRepository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	// One writer at a time; also keeps ":memory:" on a single database.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

// EnsureSchema is idempotent.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	for _, t := range storage.Tables() {
		q, err := buildCreateTableSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// UpsertClients writes each row in one transaction. The DO UPDATE is
// guarded by the row hash, so an unchanged row reports zero changes.
func (r *Repo) UpsertClients(ctx context.Context, rows []storage.ClientRow) (storage.UpsertStats, error) {
	var stats storage.UpsertStats
	if len(rows) == 0 {
		return stats, nil
	}

	q := buildUpsertSQL(storage.ClientsTable, storage.ClientKeyColumn, storage.RowHashColumn)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return stats, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		res, err := stmt.ExecContext(ctx, sqliteArgs(row.Values())...)
		if err != nil {
			return storage.UpsertStats{}, fmt.Errorf("upsert client %s: %w", row.IDNumber, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return storage.UpsertStats{}, err
		}
		if n > 0 {
			stats.Written++
		} else {
			stats.Unchanged++
		}
	}

	if err := tx.Commit(); err != nil {
		return storage.UpsertStats{}, err
	}
	return stats, nil
}

func (r *Repo) GetClient(ctx context.Context, idNumber string) (storage.ClientRow, error) {
	var (
		row     storage.ClientRow
		updated string
	)
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
		joinIdentList(storage.ClientsTable.ColumnNames()),
		sqlIdent(storage.ClientsTableName),
		sqlIdent(storage.ClientKeyColumn))

	dest := append(row.ScanTargets(), &updated)
	err := r.db.QueryRowContext(ctx, q, idNumber).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ClientRow{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.ClientRow{}, err
	}

	ts, err := parseSQLiteTime(updated)
	if err != nil {
		return storage.ClientRow{}, fmt.Errorf("client %s updated_at: %w", idNumber, err)
	}
	row.UpdatedAt = ts
	return row, nil
}

func (r *Repo) RecordImport(ctx context.Context, files []storage.ImportFile) error {
	if len(files) == 0 {
		return nil
	}
	rows := make([][]any, len(files))
	for i, f := range files {
		rows[i] = sqliteArgs(f.Values())
	}
	for _, w := range storage.Chunk(len(rows), insertBatchRows) {
		q, args := buildInsertSQL(storage.ImportFilesTable, rows[w[0]:w[1]])
		if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert %s: %w", storage.ImportFilesTableName, err)
		}
	}
	return nil
}

const insertBatchRows = 500

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func joinIdentList(columns []string) string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = sqlIdent(c)
	}
	return strings.Join(out, ", ")
}

func columnType(logical string) (string, error) {
	switch logical {
	case storage.TypeText, storage.TypeTimestamp:
		return "TEXT", nil
	case storage.TypeBool:
		return "INTEGER", nil
	}
	return "", fmt.Errorf("unsupported column type %q", logical)
}

func buildCreateTableSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("table name is empty")
	}

	parts := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		typ, err := columnType(c.Type)
		if err != nil {
			return "", fmt.Errorf("table %s column %s: %w", t.Name, c.Name, err)
		}
		def := sqlIdent(c.Name) + " " + typ
		if !c.Nullable {
			def += " NOT NULL"
		}
		parts = append(parts, def)
	}
	if len(t.PrimaryKey) > 0 {
		parts = append(parts, "PRIMARY KEY ("+joinIdentList(t.PrimaryKey)+")")
	}

	return "CREATE TABLE IF NOT EXISTS " + sqlIdent(t.Name) + " (" + strings.Join(parts, ", ") + ")", nil
}

// buildUpsertSQL returns a single-row upsert keyed on keyColumn that only
// rewrites the existing row when hashColumn differs.
func buildUpsertSQL(t storage.TableSpec, keyColumn, hashColumn string) string {
	cols := t.ColumnNames()

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlIdent(t.Name))
	b.WriteString(" (")
	b.WriteString(joinIdentList(cols))
	b.WriteString(") VALUES (")
	b.WriteString(strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))
	b.WriteString(") ON CONFLICT (")
	b.WriteString(sqlIdent(keyColumn))
	b.WriteString(") DO UPDATE SET ")

	first := true
	for _, c := range cols {
		if c == keyColumn {
			continue
		}
		if !first {
			b.WriteString(", ")
		}
		first = false
		b.WriteString(sqlIdent(c))
		b.WriteString(" = excluded.")
		b.WriteString(sqlIdent(c))
	}

	b.WriteString(" WHERE ")
	b.WriteString(sqlIdent(t.Name))
	b.WriteString(".")
	b.WriteString(sqlIdent(hashColumn))
	b.WriteString(" <> excluded.")
	b.WriteString(sqlIdent(hashColumn))
	return b.String()
}

// buildInsertSQL returns a multi-row INSERT for rows in t's column order.
func buildInsertSQL(t storage.TableSpec, rows [][]any) (string, []any) {
	cols := t.ColumnNames()
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlIdent(t.Name))
	b.WriteString(" (")
	b.WriteString(joinIdentList(cols))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(cols))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(tuple)
		args = append(args, row...)
	}
	return b.String(), args
}

// sqliteArgs converts driver-agnostic values into what this backend stores.
func sqliteArgs(vals []any) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		switch x := v.(type) {
		case time.Time:
			out[i] = formatSQLiteTime(x)
		case bool:
			if x {
				out[i] = 1
			} else {
				out[i] = 0
			}
		default:
			out[i] = v
		}
	}
	return out
}

// formatSQLiteTime formats a time as RFC3339Nano in UTC.
func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseSQLiteTime parses timestamps returned by SQLite into time.Time.
//
// Supported formats:
//   - RFC3339Nano (what we write)
//   - RFC3339
//   - "2006-01-02 15:04:05Z07:00" and its fractional variant
//   - "2006-01-02 15:04:05" (interpreted as UTC)
func parseSQLiteTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time string")
	}

	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05.999999999Z07:00",
	}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	if ts, err := time.ParseInLocation("2006-01-02 15:04:05", s, time.UTC); err == nil {
		return ts.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unsupported time format: %q", s)
}
