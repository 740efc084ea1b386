package postgres

import "mislaka/internal/storage"

func init() {
	storage.Register("postgres", New)
}
