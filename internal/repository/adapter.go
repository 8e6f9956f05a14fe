package repository

import (
	"fmt"

	"github.com/Olprog59/go-microservice/internal/ports"
	"github.com/Olprog59/go-microservice/internal/repository/db"
	"github.com/Olprog59/go-microservice/internal/repository/mysql"
	"github.com/Olprog59/go-microservice/internal/repository/postgres"
	"github.com/Olprog59/go-microservice/internal/repository/sqlite"
)

// Compile-time checks / Vérifications à la compilation
var (
	_ DatabaseFactory = (*sqlite.Factory)(nil)
	_ DatabaseFactory = (*mysql.Factory)(nil)
	_ DatabaseFactory = (*postgres.Factory)(nil)
)

// factoryRegistry holds all database factories / Registre de toutes les factories de BD
var factoryRegistry = map[db.DatabaseType]DatabaseFactory{
	db.SQLite:     &sqlite.Factory{},
	db.MySQL:      &mysql.Factory{},
	db.PostgreSQL: &postgres.Factory{},
}

// Adapter adapts database connection to repositories / Adapte la connexion BD vers les repositories
type Adapter struct {
	db      *db.Database
	factory DatabaseFactory
}

// NewAdapter creates repository adapter / Crée l'adapteur de repositories
func NewAdapter(database *db.Database) (*Adapter, error) {
	factory, ok := factoryRegistry[database.Type]
	if !ok {
		return nil, fmt.Errorf("no repositories for database type %q", database.Type)
	}

	return &Adapter{
		db:      database,
		factory: factory,
	}, nil
}

// MetadataRepository returns the metadata repository / Retourne le repository de métadonnées
func (a *Adapter) MetadataRepository() ports.MetadataRepository {
	return a.factory.NewMetadataRepository(a.db)
}

// TranslateError maps driver errors for the adapter's dialect.
func (a *Adapter) TranslateError(err error) error {
	return a.factory.TranslateError(err)
}
