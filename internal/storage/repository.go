package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned by GetClient when no row has the id number.
var ErrNotFound = errors.New("storage: not found")

// Config selects and configures a backend.
//
// Kind must match a registered backend ("sqlite", "postgres", "sqlserver").
// DSN is passed through to the backend; validation is backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// UpsertStats reports what UpsertClients did with each input row.
type UpsertStats struct {
	Written   int // inserted, or updated because row_hash changed
	Unchanged int // existing row with the same row_hash
}

// ClientRepository persists client rows and the per-file import log.
//
// Each backend implements the create-or-update in its own idiom (SQLite and
// Postgres ON CONFLICT, SQL Server MERGE); all of them key on id_number and
// leave a row alone when its row_hash has not changed.
type ClientRepository interface {
	// EnsureSchema creates the clients and import_files tables if missing.
	EnsureSchema(ctx context.Context) error

	// UpsertClients writes rows keyed by id_number. Rows must already be
	// deduplicated (see PrepareClients).
	UpsertClients(ctx context.Context, rows []ClientRow) (UpsertStats, error)

	// GetClient returns the row for idNumber or ErrNotFound.
	GetClient(ctx context.Context, idNumber string) (ClientRow, error)

	// RecordImport appends one import_files row per processed document.
	RecordImport(ctx context.Context, files []ImportFile) error

	// Close releases backend resources. Call once.
	Close()
}

// Factory builds a repository for cfg.
type Factory func(ctx context.Context, cfg Config) (ClientRepository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind. It is meant to be called
// from a backend package's init.
//
// It panics if kind is empty, f is nil, or kind is already registered.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New constructs the repository registered under cfg.Kind.
func New(ctx context.Context, cfg Config) (ClientRepository, error) {
	if cfg.Kind == "" {
		return nil, errors.New("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("storage: unsupported kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	repo, err := f(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("storage %s: %w", cfg.Kind, err)
	}
	return repo, nil
}

// Kinds lists registered backend kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Chunk splits n rows into [start,end) windows of at most size rows.
// Backends use it to stay under driver parameter limits.
func Chunk(n, size int) [][2]int {
	if n <= 0 {
		return nil
	}
	if size <= 0 {
		size = n
	}
	out := make([][2]int, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

// UTC normalizes t for storage; the zero time stays zero.
func UTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}
