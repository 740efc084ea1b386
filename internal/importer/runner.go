package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"mislaka/internal/extract"
	"mislaka/internal/metrics"
	"mislaka/internal/storage"
)

// Runner imports a batch and, when Storage.Kind is set, upserts the client
// records and logs every file to import_files.
type Runner struct {
	Importer *Importer
	Storage  storage.Config

	// storage-agnostic factory seam
	NewRepository func(ctx context.Context, cfg storage.Config) (storage.ClientRepository, error)

	now func() time.Time
}

// NewDefaultRunner persists through the storage registry. Backends must be
// linked in by the caller (see internal/storage/all).
func NewDefaultRunner(im *Importer, cfg storage.Config) *Runner {
	return &Runner{
		Importer:      im,
		Storage:       cfg,
		NewRepository: storage.New,
	}
}

// Run returns the batch even when persistence fails, together with the
// persistence error.
func (r *Runner) Run(ctx context.Context, docs []extract.Document) (*Batch, error) {
	batch, err := r.Importer.Import(ctx, docs)
	if err != nil {
		return nil, err
	}
	if r.Storage.Kind == "" {
		return batch, nil
	}

	p, err := r.persist(ctx, batch)
	if err != nil {
		return batch, fmt.Errorf("persist batch %s: %w", batch.ID, err)
	}
	batch.Persisted = p
	return batch, nil
}

func (r *Runner) persist(ctx context.Context, batch *Batch) (*Persisted, error) {
	log := zerolog.Ctx(ctx)
	now := time.Now
	if r.now != nil {
		now = r.now
	}

	repo, err := r.NewRepository(ctx, r.Storage)
	if err != nil {
		return nil, err
	}
	defer repo.Close()

	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	ts := now()
	rows, skipped := storage.PrepareClients(batch.Clients(), ts)
	stats, err := repo.UpsertClients(ctx, rows)
	if err != nil {
		return nil, err
	}

	files := make([]storage.ImportFile, len(batch.Results))
	for i, res := range batch.Results {
		f := storage.ImportFile{
			BatchID:    batch.ID,
			FileName:   res.FileName,
			OK:         res.OK(),
			Error:      res.Error,
			ImportedAt: ts,
		}
		if res.HasClient() {
			f.IDNumber = res.ClientData.IDNumber
		}
		files[i] = f
	}
	if err := repo.RecordImport(ctx, files); err != nil {
		return nil, err
	}

	metrics.RecordClients(metrics.ClientUpserted, stats.Written)
	metrics.RecordClients(metrics.ClientUnchanged, stats.Unchanged)
	metrics.RecordClients(metrics.ClientSkipped, skipped)

	log.Info().
		Str("batch_id", batch.ID).
		Str("storage", r.Storage.Kind).
		Int("written", stats.Written).
		Int("unchanged", stats.Unchanged).
		Int("skipped", skipped).
		Msg("clients persisted")

	return &Persisted{Written: stats.Written, Unchanged: stats.Unchanged, Skipped: skipped}, nil
}
