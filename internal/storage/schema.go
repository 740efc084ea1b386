package storage

import (
	"strings"
	"time"

	"mislaka/internal/client"
)

// Logical column types; each backend maps them to native types.
const (
	TypeText      = "text"
	TypeBool      = "bool"
	TypeTimestamp = "timestamp"
)

// TableSpec describes a table in backend-neutral terms so the DDL of every
// backend is generated from one definition.
type TableSpec struct {
	Name       string
	Columns    []ColumnSpec
	PrimaryKey []string
}

// ColumnSpec is one column of a TableSpec.
type ColumnSpec struct {
	Name     string
	Type     string
	Nullable bool
}

// ColumnNames returns the column names in declaration order.
func (t TableSpec) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

const (
	ClientsTableName     = "clients"
	ImportFilesTableName = "import_files"
	ClientKeyColumn      = "id_number"
	RowHashColumn        = "row_hash"
)

// ClientsTable is keyed by id_number.
var ClientsTable = TableSpec{
	Name: ClientsTableName,
	Columns: []ColumnSpec{
		{Name: "id_number", Type: TypeText},
		{Name: "first_name", Type: TypeText},
		{Name: "last_name", Type: TypeText},
		{Name: "email", Type: TypeText},
		{Name: "phone", Type: TypeText},
		{Name: "address_street", Type: TypeText},
		{Name: "address_city", Type: TypeText},
		{Name: "status", Type: TypeText},
		{Name: "row_hash", Type: TypeText},
		{Name: "updated_at", Type: TypeTimestamp},
	},
	PrimaryKey: []string{ClientKeyColumn},
}

// ImportFilesTable is an append-only log of processed documents.
var ImportFilesTable = TableSpec{
	Name: ImportFilesTableName,
	Columns: []ColumnSpec{
		{Name: "batch_id", Type: TypeText},
		{Name: "file_name", Type: TypeText},
		{Name: "ok", Type: TypeBool},
		{Name: "error", Type: TypeText, Nullable: true},
		{Name: "id_number", Type: TypeText, Nullable: true},
		{Name: "imported_at", Type: TypeTimestamp},
	},
}

// Tables lists every table EnsureSchema creates, in creation order.
func Tables() []TableSpec { return []TableSpec{ClientsTable, ImportFilesTable} }

// ClientRow is a client record as stored.
type ClientRow struct {
	client.Record
	RowHash   string
	UpdatedAt time.Time
}

// Values returns the row in ClientsTable column order. Timestamps are left
// as time.Time; backends convert them as needed.
func (r ClientRow) Values() []any {
	return []any{
		r.IDNumber,
		r.FirstName,
		r.LastName,
		r.Email,
		r.Phone,
		r.AddressStreet,
		r.AddressCity,
		string(r.Status),
		r.RowHash,
		UTC(r.UpdatedAt),
	}
}

// ScanTargets returns pointers for scanning a row selected in ClientsTable
// column order except updated_at, which the caller scans itself.
func (r *ClientRow) ScanTargets() []any {
	return []any{
		&r.IDNumber,
		&r.FirstName,
		&r.LastName,
		&r.Email,
		&r.Phone,
		&r.AddressStreet,
		&r.AddressCity,
		&r.Status,
		&r.RowHash,
	}
}

// ImportFile is one import_files row.
type ImportFile struct {
	BatchID    string
	FileName   string
	OK         bool
	Error      string
	IDNumber   string
	ImportedAt time.Time
}

// Values returns the row in ImportFilesTable column order. Empty error and
// id number become NULL.
func (f ImportFile) Values() []any {
	return []any{
		f.BatchID,
		f.FileName,
		f.OK,
		nullIfEmpty(f.Error),
		nullIfEmpty(f.IDNumber),
		UTC(f.ImportedAt),
	}
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// PrepareClients turns extracted records into storable rows: records
// without an id number are skipped, duplicates by id number keep the first
// occurrence, and every row gets its hash and timestamp.
func PrepareClients(recs []*client.Record, now time.Time) (rows []ClientRow, skipped int) {
	seen := make(map[string]struct{}, len(recs))
	for _, r := range recs {
		if r == nil {
			continue
		}
		id := strings.TrimSpace(r.IDNumber)
		if id == "" {
			skipped++
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		rec := *r
		rec.IDNumber = id
		rows = append(rows, ClientRow{Record: rec, RowHash: rec.Hash(), UpdatedAt: UTC(now)})
	}
	return rows, skipped
}
