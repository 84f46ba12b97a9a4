package domain

import "time"

// MediaStatus represents the processing status of a media record.
// Transitions are new -> processing -> done|error, plus error -> processing
// for retries once the file is known to be reachable again.
type MediaStatus string

const (
	MediaStatusNew        MediaStatus = "new"
	MediaStatusProcessing MediaStatus = "processing"
	MediaStatusDone       MediaStatus = "done"
	MediaStatusError      MediaStatus = "error"
)

// MediaType classifies a catalog entry by how frames are extracted from it.
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeGif   MediaType = "gif"
	MediaTypeVideo MediaType = "video"
	MediaTypeAlbum MediaType = "album"
)

// MediaRecord is a catalog entry for one media unit: a single file, or an
// album folder owning ordered AlbumItem rows.
//
// Path is unique; ContentHash, once computed, is only recomputed when the
// file is relocated to a new path. Album records carry no hash of their
// own; identity is derived from their items.
type MediaRecord struct {
	ID          string      `gorm:"type:text;primaryKey" json:"id"`
	Path        string      `gorm:"type:text;not null;uniqueIndex:idx_media_path" json:"path"`
	MediaType   MediaType   `gorm:"type:text;not null;index:idx_media_type" json:"media_type"`
	Status      MediaStatus `gorm:"type:text;index:idx_media_status;default:new" json:"status"`
	ContentHash string      `gorm:"type:text;index:idx_media_hash" json:"content_hash,omitempty"`
	Size        int64       `json:"size"`
	Title       string      `gorm:"type:text" json:"title,omitempty"`

	// Descriptive fields filled in by analysis. Never cleared on failure;
	// only Status and ErrorMessage change when processing fails.
	References   string `gorm:"column:ref_content;type:text" json:"references,omitempty"`
	Template     string `gorm:"type:text" json:"template,omitempty"`
	Caption      string `gorm:"type:text" json:"caption,omitempty"`
	Description  string `gorm:"type:text" json:"description,omitempty"`
	Meaning      string `gorm:"type:text" json:"meaning,omitempty"`
	ErrorMessage string `gorm:"type:text" json:"error_message,omitempty"`

	// SuggestedTags keeps the raw AI-suggested tag names from the last
	// successful analysis, so tag scans can re-map them after the
	// vocabulary changes without another model call.
	SuggestedTags StringArray `gorm:"column:ai_tags;type:text" json:"suggested_tags,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for MediaRecord.
func (MediaRecord) TableName() string {
	return "memes"
}

// IsAlbum reports whether the record is an album folder.
func (m *MediaRecord) IsAlbum() bool {
	return m.MediaType == MediaTypeAlbum
}
