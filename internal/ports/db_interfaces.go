package ports

import "context"

// HealthChecker checks that the database answers / Vérifie que la base répond
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// SchemaVersioner reports the applied migration version / Indique la version du schéma
type SchemaVersioner interface {
	Version(ctx context.Context) (version uint, dirty bool, err error)
}
