package repository

import (
	"context"

	"github.com/tmn/memelet/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TagRepository handles tag vocabulary and tag association operations.
type TagRepository struct {
	db *gorm.DB
}

// NewTagRepository creates a new TagRepository.
func NewTagRepository(db *gorm.DB) *TagRepository {
	return &TagRepository{db: db}
}

// Create inserts a new vocabulary tag.
func (r *TagRepository) Create(ctx context.Context, tag *domain.Tag) error {
	return r.db.WithContext(ctx).Create(tag).Error
}

// ListAll retrieves the whole vocabulary ordered by name.
func (r *TagRepository) ListAll(ctx context.Context) ([]domain.Tag, error) {
	var tags []domain.Tag
	if err := r.db.WithContext(ctx).Order("name").Find(&tags).Error; err != nil {
		return nil, err
	}
	return tags, nil
}

// ListPathMatchable retrieves tags eligible for path-substring matching.
func (r *TagRepository) ListPathMatchable(ctx context.Context) ([]domain.Tag, error) {
	var tags []domain.Tag
	if err := r.db.WithContext(ctx).
		Where("parse_from_filename = ?", true).
		Order("name").
		Find(&tags).Error; err != nil {
		return nil, err
	}
	return tags, nil
}

// ListAISuggestable retrieves tags the AI is allowed to suggest.
func (r *TagRepository) ListAISuggestable(ctx context.Context) ([]domain.Tag, error) {
	var tags []domain.Tag
	if err := r.db.WithContext(ctx).
		Where("ai_can_suggest = ?", true).
		Order("name").
		Find(&tags).Error; err != nil {
		return nil, err
	}
	return tags, nil
}

// Attach inserts a (media, tag) association if absent and reports whether
// it was inserted. Re-attaching an existing association is a no-op, never
// an error; retries can therefore apply the same candidate set safely.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - mediaID: media record ID.
//   - tagID: tag ID.
//
// Returns:
//   - bool: true if a new association was created.
//   - error: non-nil if the insert fails.
func (r *TagRepository) Attach(ctx context.Context, mediaID, tagID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&domain.MemeTag{MediaID: mediaID, TagID: tagID})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListForMedia retrieves the tags associated with a media record.
func (r *TagRepository) ListForMedia(ctx context.Context, mediaID string) ([]domain.Tag, error) {
	var tags []domain.Tag
	if err := r.db.WithContext(ctx).
		Joins("JOIN meme_tags ON meme_tags.tag_id = tags.id").
		Where("meme_tags.media_id = ?", mediaID).
		Order("tags.name").
		Find(&tags).Error; err != nil {
		return nil, err
	}
	return tags, nil
}
