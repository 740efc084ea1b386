package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mislaka/internal/storage"
)

// Postgres caps bind parameters at 65535 per statement.
const upsertBatchRows = 1000

// Repo implements storage.ClientRepository for Postgres.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a Postgres-backed Repo and verifies connectivity.
func New(ctx context.Context, cfg storage.Config) (storage.ClientRepository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

func (r *Repo) EnsureSchema(ctx context.Context) error {
	for _, t := range storage.Tables() {
		q, err := buildCreateTableSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// UpsertClients sends rows in multi-row batches inside one transaction. Rows
// whose hash did not change are not counted by RowsAffected.
func (r *Repo) UpsertClients(ctx context.Context, rows []storage.ClientRow) (storage.UpsertStats, error) {
	var stats storage.UpsertStats
	if len(rows) == 0 {
		return stats, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return stats, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, w := range storage.Chunk(len(rows), upsertBatchRows) {
		batch := make([][]any, 0, w[1]-w[0])
		for _, row := range rows[w[0]:w[1]] {
			batch = append(batch, row.Values())
		}
		q, args := buildUpsertSQL(storage.ClientsTable, batch, storage.ClientKeyColumn, storage.RowHashColumn)
		tag, err := tx.Exec(ctx, q, args...)
		if err != nil {
			return storage.UpsertStats{}, fmt.Errorf("upsert %s: %w", storage.ClientsTableName, err)
		}
		written := int(tag.RowsAffected())
		stats.Written += written
		stats.Unchanged += len(batch) - written
	}

	if err := tx.Commit(ctx); err != nil {
		return storage.UpsertStats{}, err
	}
	return stats, nil
}

func (r *Repo) GetClient(ctx context.Context, idNumber string) (storage.ClientRow, error) {
	var row storage.ClientRow
	q := buildSelectClientSQL()

	dest := append(row.ScanTargets(), &row.UpdatedAt)
	err := r.pool.QueryRow(ctx, q, idNumber).Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
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
	for _, w := range storage.Chunk(len(rows), upsertBatchRows) {
		q, args := buildInsertSQL(storage.ImportFilesTableName, storage.ImportFilesTable.ColumnNames(), rows[w[0]:w[1]])
		if _, err := r.pool.Exec(ctx, q, args...); err != nil {
			return fmt.Errorf("insert %s: %w", storage.ImportFilesTableName, err)
		}
	}
	return nil
}

func pgIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func pgIdentList(columns []string) string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = pgIdent(c)
	}
	return strings.Join(out, ", ")
}

func columnType(logical string) (string, error) {
	switch logical {
	case storage.TypeText:
		return "TEXT", nil
	case storage.TypeBool:
		return "BOOLEAN", nil
	case storage.TypeTimestamp:
		return "TIMESTAMPTZ", nil
	}
	return "", fmt.Errorf("unsupported column type %q", logical)
}

func buildCreateTableSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("table name is empty")
	}
	defs := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		typ, err := columnType(c.Type)
		if err != nil {
			return "", fmt.Errorf("table %s column %s: %w", t.Name, c.Name, err)
		}
		def := pgIdent(c.Name) + " " + typ
		if !c.Nullable {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	if len(t.PrimaryKey) > 0 {
		defs = append(defs, "PRIMARY KEY ("+pgIdentList(t.PrimaryKey)+")")
	}
	return "CREATE TABLE IF NOT EXISTS " + pgIdent(t.Name) + " (\n  " + strings.Join(defs, ",\n  ") + "\n);", nil
}

// buildInsertSQL builds a multi-row INSERT with $n placeholders numbered
// row-major. It is pure so placeholder numbering can be tested without a
// database.
func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pgIdent(table))
	b.WriteString(" (")
	b.WriteString(pgIdentList(columns))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}
	return b.String(), args
}

// buildUpsertSQL extends buildInsertSQL with an ON CONFLICT update on
// keyColumn that is skipped when hashColumn is unchanged.
//
// rows must not repeat a key: Postgres rejects a statement that would
// update the same row twice.
func buildUpsertSQL(t storage.TableSpec, rows [][]any, keyColumn, hashColumn string) (string, []any) {
	cols := t.ColumnNames()
	q, args := buildInsertSQL(t.Name, cols, rows)

	var b strings.Builder
	b.WriteString(q)
	b.WriteString(" ON CONFLICT (")
	b.WriteString(pgIdent(keyColumn))
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
		b.WriteString(pgIdent(c))
		b.WriteString(" = EXCLUDED.")
		b.WriteString(pgIdent(c))
	}
	b.WriteString(" WHERE ")
	b.WriteString(pgIdent(t.Name))
	b.WriteString(".")
	b.WriteString(pgIdent(hashColumn))
	b.WriteString(" IS DISTINCT FROM EXCLUDED.")
	b.WriteString(pgIdent(hashColumn))
	b.WriteString(";")
	return b.String(), args
}

func buildSelectClientSQL() string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1",
		pgIdentList(storage.ClientsTable.ColumnNames()),
		pgIdent(storage.ClientsTableName),
		pgIdent(storage.ClientKeyColumn))
}
