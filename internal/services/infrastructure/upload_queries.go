package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/File-Sharing-BondBridg/Upload-Service/internal/models"
)

const (
	TypeImages    = "images"
	TypeDocuments = "documents"
)

// sortColumns whitelists the columns a listing may be ordered by.
var sortColumns = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"name":       "name",
	"size":       "size",
	"type":       "type",
}

// Scope narrows a query to the records a caller may see.
type Scope func(*gorm.DB) *gorm.DB

// ListFilter describes one page of a listing. Scope is required; a nil Scope matches nothing.
type ListFilter struct {
	Scope       Scope
	Type        string
	Search      string
	SortBy      string
	SortOrder   string
	Page        int
	PerPage     int
	OnlyTrashed bool
}

type Page struct {
	Data        []models.Upload `json:"data"`
	CurrentPage int             `json:"current_page"`
	PerPage     int             `json:"per_page"`
	Total       int64           `json:"total"`
	LastPage    int             `json:"last_page"`
}

func (s *UploadStore) FindByID(ctx context.Context, id string) (*models.Upload, error) {
	return s.first(s.db.WithContext(ctx), id)
}

// FindByIDWithTrashed also returns soft-deleted records.
func (s *UploadStore) FindByIDWithTrashed(ctx context.Context, id string) (*models.Upload, error) {
	return s.first(s.db.WithContext(ctx).Unscoped(), id)
}

func (s *UploadStore) first(db *gorm.DB, id string) (*models.Upload, error) {
	var u models.Upload
	if err := db.Where("id = ?", id).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find upload %s: %w", id, err)
	}
	return &u, nil
}

// FindByHashAndSize returns the oldest live record with the given dedup key, or nil.
func (s *UploadStore) FindByHashAndSize(ctx context.Context, hash string, size int64) (*models.Upload, error) {
	var rows []models.Upload
	err := s.db.WithContext(ctx).
		Where("file_hash = ? AND size = ?", hash, size).
		Order("created_at ASC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("find upload by hash: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// CountByGuest counts the live records carrying token.
func (s *UploadStore) CountByGuest(ctx context.Context, token string) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Upload{}).Where("guest_token = ?", token).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count guest uploads: %w", err)
	}
	return n, nil
}

// List returns one page of records matching f.
func (s *UploadStore) List(ctx context.Context, f ListFilter) (Page, error) {
	page := Page{CurrentPage: max(f.Page, 1), PerPage: f.PerPage, Data: []models.Upload{}}
	if page.PerPage < 1 {
		page.PerPage = 15
	}

	q := s.db.WithContext(ctx).Model(&models.Upload{})
	if f.OnlyTrashed {
		q = q.Unscoped().Where("deleted_at IS NOT NULL")
	}
	if f.Scope == nil {
		q = q.Where("1 = 0")
	} else {
		q = q.Scopes(f.Scope)
	}

	switch f.Type {
	case TypeImages:
		q = q.Where("type LIKE ?", "image/%")
	case TypeDocuments:
		q = q.Where("type NOT LIKE ?", "image/%")
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		q = q.Where(`LOWER(name) LIKE ? ESCAPE '\'`, "%"+escapeLike(strings.ToLower(search))+"%")
	}

	if err := q.Session(&gorm.Session{}).Count(&page.Total).Error; err != nil {
		return Page{}, fmt.Errorf("count uploads: %w", err)
	}
	page.LastPage = int((page.Total + int64(page.PerPage) - 1) / int64(page.PerPage))
	if page.LastPage < 1 {
		page.LastPage = 1
	}

	column, ok := sortColumns[f.SortBy]
	if !ok {
		column = "created_at"
	}
	order := "DESC"
	if strings.EqualFold(f.SortOrder, "asc") {
		order = "ASC"
	}

	err := q.Order(column + " " + order).
		Order("id " + order).
		Limit(page.PerPage).
		Offset((page.CurrentPage - 1) * page.PerPage).
		Find(&page.Data).Error
	if err != nil {
		return Page{}, fmt.Errorf("list uploads: %w", err)
	}
	return page, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Stats aggregates the live records visible through scope. now fixes the start of "today".
func (s *UploadStore) Stats(ctx context.Context, scope Scope, now time.Time) (models.UploadStats, error) {
	var row struct {
		TotalFiles int64
		TotalSize  int64
		ImageCount int64
	}
	base := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&models.Upload{})
		if scope != nil {
			q = q.Scopes(scope)
		}
		return q
	}

	err := base().Select(
		"COUNT(*) AS total_files, " +
			"COALESCE(SUM(size), 0) AS total_size, " +
			"COALESCE(SUM(CASE WHEN type LIKE 'image/%' THEN 1 ELSE 0 END), 0) AS image_count",
	).Scan(&row).Error
	if err != nil {
		return models.UploadStats{}, fmt.Errorf("aggregate uploads: %w", err)
	}

	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	var today int64
	if err := base().Where("created_at >= ?", startOfDay).Count(&today).Error; err != nil {
		return models.UploadStats{}, fmt.Errorf("count today's uploads: %w", err)
	}

	stats := models.UploadStats{
		TotalFiles:    row.TotalFiles,
		TotalSize:     row.TotalSize,
		ImageCount:    row.ImageCount,
		DocumentCount: row.TotalFiles - row.ImageCount,
		TodayCount:    today,
	}
	if row.TotalFiles > 0 {
		stats.AverageSize = row.TotalSize / row.TotalFiles
	}
	return stats, nil
}

// AllPaths returns the storage path of every record, soft-deleted ones included.
func (s *UploadStore) AllPaths(ctx context.Context) ([]string, error) {
	var paths []string
	if err := s.db.WithContext(ctx).Unscoped().Model(&models.Upload{}).Pluck("path", &paths).Error; err != nil {
		return nil, fmt.Errorf("load upload paths: %w", err)
	}
	return paths, nil
}

// PathInUse reports whether any record, soft-deleted ones included, is stored at path.
func (s *UploadStore) PathInUse(ctx context.Context, path string) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Unscoped().Model(&models.Upload{}).Where("path = ?", path).Count(&n).Error; err != nil {
		return false, fmt.Errorf("look up upload path: %w", err)
	}
	return n > 0, nil
}

// FindByOwner returns every record of userID, soft-deleted ones included.
func (s *UploadStore) FindByOwner(ctx context.Context, userID string) ([]models.Upload, error) {
	var rows []models.Upload
	if err := s.db.WithContext(ctx).Unscoped().Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find uploads of %s: %w", userID, err)
	}
	return rows, nil
}

// EachImageBatch walks live image records in id order, batchSize at a time.
func (s *UploadStore) EachImageBatch(ctx context.Context, batchSize int, fn func([]models.Upload) error) error {
	if batchSize < 1 {
		batchSize = 50
	}
	var batch []models.Upload
	res := s.db.WithContext(ctx).
		Where("type LIKE ?", "image/%").
		FindInBatches(&batch, batchSize, func(_ *gorm.DB, _ int) error {
			return fn(batch)
		})
	if res.Error != nil {
		return fmt.Errorf("walk image uploads: %w", res.Error)
	}
	return nil
}
