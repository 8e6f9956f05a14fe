// Package gormrepo holds the ORM backed repositories shared by every dialect.
// Dialect packages only contribute their error translation.
package gormrepo

import (
	"context"
	"slices"

	"github.com/Olprog59/go-microservice/internal/domain"
	"github.com/Olprog59/go-microservice/internal/repository/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MetadataRepository implements ports.MetadataRepository on app_metadata.
type MetadataRepository struct {
	db        *db.Database
	translate db.ErrorTranslator
}

// NewMetadataRepository creates metadata repository / Crée le repository de métadonnées
func NewMetadataRepository(database *db.Database, translate db.ErrorTranslator) *MetadataRepository {
	if translate == nil {
		translate = func(err error) error { return err }
	}
	return &MetadataRepository{db: database, translate: translate}
}

// Get returns the entry called name.
func (r *MetadataRepository) Get(ctx context.Context, name string) (*domain.Metadata, error) {
	var m domain.Metadata
	if err := r.db.Conn(ctx).Where("name = ?", name).Take(&m).Error; err != nil {
		return nil, r.translate(err)
	}
	return &m, nil
}

// Put inserts or replaces a value.
func (r *MetadataRepository) Put(ctx context.Context, name, value string) error {
	err := r.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		return upsert(tx, name, value)
	})
	return r.translate(err)
}

// PutAll writes all entries atomically, in name order.
func (r *MetadataRepository) PutAll(ctx context.Context, values map[string]string) error {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	slices.Sort(names)

	err := r.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		for _, name := range names {
			// joins the surrounding transaction
			if err := r.Put(ctx, name, values[name]); err != nil {
				return err
			}
		}
		return nil
	})
	return r.translate(err)
}

// List returns every entry ordered by name.
func (r *MetadataRepository) List(ctx context.Context) ([]domain.Metadata, error) {
	list, err := db.Query(ctx, r.db, func(ctx context.Context, tx *gorm.DB) ([]domain.Metadata, error) {
		var list []domain.Metadata
		err := tx.Order("name").Find(&list).Error
		return list, err
	})
	if err != nil {
		return nil, r.translate(err)
	}
	return list, nil
}

// Delete removes the entry called name.
func (r *MetadataRepository) Delete(ctx context.Context, name string) error {
	res := r.db.Conn(ctx).Where("name = ?", name).Delete(&domain.Metadata{})
	if res.Error != nil {
		return r.translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return db.ErrNoRecord
	}
	return nil
}

func upsert(tx *gorm.DB, name, value string) error {
	m := domain.Metadata{Name: name, Value: value}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&m).Error
}
