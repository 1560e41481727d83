package postgres

import "datapeek/internal/storage"

func init() {
	// registers the backend factory
	storage.Register("postgres", New)
}
