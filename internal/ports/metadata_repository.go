package ports

import (
	"context"

	"github.com/Olprog59/go-microservice/internal/domain"
)

// MetadataRepository stores application key/value metadata / Stocke les métadonnées de l'application
type MetadataRepository interface {
	// Get returns db.ErrNoRecord when name is unknown
	Get(ctx context.Context, name string) (*domain.Metadata, error)

	// Put inserts or replaces a value
	Put(ctx context.Context, name, value string) error

	// PutAll writes every entry in a single transaction
	PutAll(ctx context.Context, values map[string]string) error

	List(ctx context.Context) ([]domain.Metadata, error)

	Delete(ctx context.Context, name string) error
}
