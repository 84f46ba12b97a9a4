package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmn/memelet/internal/domain"
	"gorm.io/gorm"
)

// MediaRepository handles catalog record and album item data operations.
type MediaRepository struct {
	db *gorm.DB
}

// NewMediaRepository creates a new MediaRepository.
// Parameters:
//   - db: GORM database handle used for queries.
//
// Returns:
//   - *MediaRepository: repository instance bound to db.
func NewMediaRepository(db *gorm.DB) *MediaRepository {
	return &MediaRepository{db: db}
}

// Create inserts a new media record.
func (r *MediaRepository) Create(ctx context.Context, rec *domain.MediaRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

// Update saves all fields of an existing media record.
func (r *MediaRepository) Update(ctx context.Context, rec *domain.MediaRecord) error {
	return r.db.WithContext(ctx).Save(rec).Error
}

// GetByID retrieves a media record by its ID.
func (r *MediaRepository) GetByID(ctx context.Context, id string) (*domain.MediaRecord, error) {
	var rec domain.MediaRecord
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetByPath retrieves a media record by its filesystem path.
// Returns (nil, nil) when no record matches.
func (r *MediaRepository) GetByPath(ctx context.Context, path string) (*domain.MediaRecord, error) {
	var rec domain.MediaRecord
	err := r.db.WithContext(ctx).First(&rec, "path = ?", path).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetByHash retrieves the oldest media record with the given content hash.
// Returns (nil, nil) when no record matches. Duplicate-detection callers
// rely on "oldest wins" so error-status duplicates reference the original.
func (r *MediaRepository) GetByHash(ctx context.Context, contentHash string) (*domain.MediaRecord, error) {
	var rec domain.MediaRecord
	err := r.db.WithContext(ctx).
		Where("content_hash = ?", contentHash).
		Order("created_at").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListAll retrieves every media record ordered by creation time.
func (r *MediaRepository) ListAll(ctx context.Context) ([]domain.MediaRecord, error) {
	var recs []domain.MediaRecord
	if err := r.db.WithContext(ctx).Order("created_at").Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// ListByStatus retrieves media records in any of the given statuses,
// ordered by creation time.
func (r *MediaRepository) ListByStatus(ctx context.Context, statuses ...domain.MediaStatus) ([]domain.MediaRecord, error) {
	var recs []domain.MediaRecord
	if err := r.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("created_at").
		Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// CountByStatus returns record counts grouped by status.
func (r *MediaRepository) CountByStatus(ctx context.Context) (map[domain.MediaStatus]int64, error) {
	type row struct {
		Status domain.MediaStatus
		N      int64
	}
	var rows []row
	if err := r.db.WithContext(ctx).
		Model(&domain.MediaRecord{}).
		Select("status, count(*) as n").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[domain.MediaStatus]int64, len(rows))
	for _, rw := range rows {
		counts[rw.Status] = rw.N
	}
	return counts, nil
}

// SetStatus updates only status and error_message for a record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: record ID.
//   - status: new status value.
//   - errMsg: error message to store; empty clears it.
//
// Returns:
//   - error: non-nil if the update fails.
func (r *MediaRepository) SetStatus(ctx context.Context, id string, status domain.MediaStatus, errMsg string) error {
	return r.db.WithContext(ctx).
		Model(&domain.MediaRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        status,
			"error_message": errMsg,
			"updated_at":    time.Now(),
		}).Error
}

// SetStatusIf transitions a record's status only if it is currently in
// the expected state. This is the optimistic check that tolerates
// concurrent retriggers: only one caller wins the transition.
// Returns:
//   - bool: true if the transition was applied.
//   - error: non-nil if the update fails.
func (r *MediaRepository) SetStatusIf(ctx context.Context, id string, from, to domain.MediaStatus, errMsg string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.MediaRecord{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":        to,
			"error_message": errMsg,
			"updated_at":    time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdatePath relocates a record to a new filesystem path without touching
// its content hash or descriptive fields.
func (r *MediaRepository) UpdatePath(ctx context.Context, id, newPath string) error {
	return r.db.WithContext(ctx).
		Model(&domain.MediaRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"path":       newPath,
			"updated_at": time.Now(),
		}).Error
}

// SetHash stores a freshly computed content hash and size for a record.
func (r *MediaRepository) SetHash(ctx context.Context, id, contentHash string, size int64) error {
	return r.db.WithContext(ctx).
		Model(&domain.MediaRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"content_hash": contentHash,
			"size":         size,
			"updated_at":   time.Now(),
		}).Error
}

// AnalysisFields holds the descriptive text produced by a successful
// analysis. Nil pointers leave the stored value unchanged; this is how a
// field omitted by the model keeps any manually edited value.
type AnalysisFields struct {
	References  *string
	Template    *string
	Caption     *string
	Description *string
	Meaning     *string
}

// SaveAnalysis stores analysis output, marks the record done, and clears
// error_message, in a single update. The update only applies while the
// record is still processing (same optimistic check as SetStatusIf), so a
// concurrently retriggered run cannot interleave half-written fields.
// Returns:
//   - bool: true if the record was still processing and the save applied.
//   - error: non-nil if the update fails.
func (r *MediaRepository) SaveAnalysis(ctx context.Context, id string, fields *AnalysisFields, suggestedTags []string) (bool, error) {
	updates := map[string]interface{}{
		"status":        domain.MediaStatusDone,
		"error_message": "",
		"ai_tags":       domain.StringArray(suggestedTags),
		"updated_at":    time.Now(),
	}
	if fields.References != nil {
		updates["ref_content"] = *fields.References
	}
	if fields.Template != nil {
		updates["template"] = *fields.Template
	}
	if fields.Caption != nil {
		updates["caption"] = *fields.Caption
	}
	if fields.Description != nil {
		updates["description"] = *fields.Description
	}
	if fields.Meaning != nil {
		updates["meaning"] = *fields.Meaning
	}
	res := r.db.WithContext(ctx).
		Model(&domain.MediaRecord{}).
		Where("id = ? AND status = ?", id, domain.MediaStatusProcessing).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CreateAlbum inserts an album record together with all its items in one
// transaction, so a half-ingested album never becomes visible.
func (r *MediaRepository) CreateAlbum(ctx context.Context, rec *domain.MediaRecord, items []domain.AlbumItem) error {
	if rec.MediaType != domain.MediaTypeAlbum {
		return fmt.Errorf("record %s is not an album", rec.ID)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(rec).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		return tx.Create(&items).Error
	})
}

// ListAlbumItems retrieves an album's items in display order.
func (r *MediaRepository) ListAlbumItems(ctx context.Context, albumID string) ([]domain.AlbumItem, error) {
	var items []domain.AlbumItem
	if err := r.db.WithContext(ctx).
		Where("album_id = ?", albumID).
		Order("display_order").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// UpdateAlbumItem saves all fields of an album item.
func (r *MediaRepository) UpdateAlbumItem(ctx context.Context, item *domain.AlbumItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}
