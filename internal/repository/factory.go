package repository

import (
	"github.com/Olprog59/go-microservice/internal/ports"
	"github.com/Olprog59/go-microservice/internal/repository/db"
)

// DatabaseFactory must be implemented by each database package / Doit être implémenté par chaque package de BD
// Adding a repository here forces every dialect package (sqlite, mysql, postgres) to provide it.
type DatabaseFactory interface {
	// NewMetadataRepository creates metadata repository / Crée le repository de métadonnées
	NewMetadataRepository(database *db.Database) ports.MetadataRepository

	// TranslateError maps driver errors onto the db sentinels
	TranslateError(err error) error
}
