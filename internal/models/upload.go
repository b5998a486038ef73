package models

import (
	"path"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Upload is the durable metadata row for one stored file.
type Upload struct {
	ID         string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	Path       string         `gorm:"size:500;not null;uniqueIndex" json:"path"`
	URL        string         `gorm:"size:1000;not null" json:"url"`
	Type       string         `gorm:"size:255;not null;index" json:"type"`
	Name       string         `gorm:"size:255;not null" json:"name"`
	Size       int64          `gorm:"not null;index:idx_uploads_hash_size,priority:2" json:"size"`
	FileHash   *string        `gorm:"size:32;index:idx_uploads_hash_size,priority:1" json:"file_hash"`
	UserID     *string        `gorm:"size:255;index" json:"user_id"`
	GuestToken *string        `gorm:"size:255;index" json:"guest_token,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Upload) TableName() string {
	return "uploads"
}

// IsImage reports whether the stored mime type is an image type.
func (u *Upload) IsImage() bool {
	return strings.HasPrefix(u.Type, "image/")
}

// Extension returns the lower-cased extension of the display name without the dot.
func (u *Upload) Extension() string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(u.Name)), ".")
}

func (u *Upload) OwnedBy(userID string) bool {
	return u.UserID != nil && *u.UserID == userID
}

func (u *Upload) Trashed() bool {
	return u.DeletedAt.Valid
}

// UploadStats aggregates sizes and counts over a set of uploads.
type UploadStats struct {
	TotalFiles         int64  `json:"total_files"`
	TotalSize          int64  `json:"total_size"`
	TotalSizeFormatted string `json:"total_size_formatted"`
	ImageCount         int64  `json:"image_count"`
	DocumentCount      int64  `json:"document_count"`
	TodayCount         int64  `json:"today_count"`
	AverageSize        int64  `json:"average_size"`
}

// StringPtr returns nil for empty strings.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
