package infrastructure

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/File-Sharing-BondBridg/Upload-Service/internal/models"
)

// ErrNotFound is returned when no record matches the id, trashed records included where relevant.
var ErrNotFound = errors.New("upload record not found")

// UploadStore is the durable metadata table for uploads.
type UploadStore struct {
	db *gorm.DB
}

func NewUploadStore(db *gorm.DB) *UploadStore {
	return &UploadStore{db: db}
}

func (s *UploadStore) DB() *gorm.DB { return s.db }

func (s *UploadStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Create inserts u, assigning an id when it has none.
func (s *UploadStore) Create(ctx context.Context, u *models.Upload) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		return fmt.Errorf("insert upload %s: %w", u.ID, err)
	}
	return nil
}

// SoftDelete marks a live record deleted.
func (s *UploadStore) SoftDelete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Upload{})
	if res.Error != nil {
		return fmt.Errorf("soft delete upload %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// HardDelete removes the row whether or not it is soft-deleted.
func (s *UploadStore) HardDelete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Unscoped().Where("id = ?", id).Delete(&models.Upload{})
	if res.Error != nil {
		return fmt.Errorf("delete upload %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Restore clears the soft-delete marker of a trashed record.
func (s *UploadStore) Restore(ctx context.Context, id string) (*models.Upload, error) {
	res := s.db.WithContext(ctx).Unscoped().Model(&models.Upload{}).
		Where("id = ? AND deleted_at IS NOT NULL", id).
		Update("deleted_at", nil)
	if res.Error != nil {
		return nil, fmt.Errorf("restore upload %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.FindByID(ctx, id)
}

// UpdateName changes the display name of a live record.
func (s *UploadStore) UpdateName(ctx context.Context, id, name string) (*models.Upload, error) {
	res := s.db.WithContext(ctx).Model(&models.Upload{}).Where("id = ?", id).Update("name", name)
	if res.Error != nil {
		return nil, fmt.Errorf("rename upload %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.FindByID(ctx, id)
}
