// Package store is the persistence boundary for upload metadata. No
// business rules live here beyond the uniqueness of (owner, storage
// name) which the database enforces
package store

import (
	"context"
	"errors"
	"fmt"

	"hostbin/file-api/internal/model"

	"gorm.io/gorm"
)

var (
	ErrNotFound  = errors.New("upload not found")
	ErrDuplicate = errors.New("storage name already exists for this owner")
)

// Uploads is what the ingestion pipeline and the file server depend
// on. Kept as an interface so tests can inject failing implementations
type Uploads interface {
	// Create persists the record, assigning its id. An attached Image
	// is created in the same transaction
	Create(ctx context.Context, upload *model.Upload) error

	// Get returns the record with its image metadata preloaded
	Get(ctx context.Context, id uint) (*model.Upload, error)

	// Update applies a partial set of column changes
	Update(ctx context.Context, id uint, fields map[string]any) error

	Delete(ctx context.Context, id uint) error

	CountForOwner(ctx context.Context, ownerID uint) (int64, error)

	// IncrementViews bumps the view counter atomically in the database
	IncrementViews(ctx context.Context, id uint) error
}

// DB is the gorm backed implementation of Uploads
type DB struct {
	db *gorm.DB
}

func New(db *gorm.DB) *DB {
	return &DB{db: db}
}

func (s *DB) Create(ctx context.Context, upload *model.Upload) error {
	err := s.db.WithContext(ctx).Create(upload).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}

		return fmt.Errorf("failed to create upload record, %w", err)
	}

	return nil
}

func (s *DB) Get(ctx context.Context, id uint) (*model.Upload, error) {
	var upload model.Upload

	err := s.db.WithContext(ctx).
		Preload("Image").
		Where("id = ?", id).
		First(&upload).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("failed to fetch upload record, %w", err)
	}

	return &upload, nil
}

func (s *DB) Update(ctx context.Context, id uint, fields map[string]any) error {
	res := s.db.WithContext(ctx).
		Model(model.Upload{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("failed to update upload record, %w", res.Error)
	}

	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *DB) Delete(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("upload_id = ?", id).Delete(model.Image{}).Error; err != nil {
			return fmt.Errorf("failed to delete image metadata, %w", err)
		}

		res := tx.Where("id = ?", id).Delete(model.Upload{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete upload record, %w", res.Error)
		}

		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		return nil
	})
}

func (s *DB) CountForOwner(ctx context.Context, ownerID uint) (int64, error) {
	var count int64

	err := s.db.WithContext(ctx).
		Model(model.Upload{}).
		Where("user_id = ?", ownerID).
		Count(&count).
		Error
	if err != nil {
		return 0, fmt.Errorf("failed to count uploads, %w", err)
	}

	return count, nil
}

func (s *DB) IncrementViews(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).
		Model(model.Upload{}).
		Where("id = ?", id).
		Update("viewed", gorm.Expr("viewed + ?", 1)).
		Error
	if err != nil {
		return fmt.Errorf("failed to increment view counter, %w", err)
	}

	return nil
}
