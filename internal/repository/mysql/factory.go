package mysql

import (
	"github.com/Olprog59/go-microservice/internal/ports"
	"github.com/Olprog59/go-microservice/internal/repository/db"
	"github.com/Olprog59/go-microservice/internal/repository/gormrepo"
)

// Factory implements DatabaseFactory for MySQL / Implémente DatabaseFactory pour MySQL
// The compile-time check is in adapter.go to avoid import cycles
type Factory struct{}

// NewMetadataRepository creates metadata repository / Crée le repository de métadonnées
func (f *Factory) NewMetadataRepository(database *db.Database) ports.MetadataRepository {
	return gormrepo.NewMetadataRepository(database, TranslateError)
}

// TranslateError maps MySQL driver errors onto db sentinels
func (f *Factory) TranslateError(err error) error {
	return TranslateError(err)
}
