package domain

import "time"

// Tag is a controlled-vocabulary entry. Name matching is case-insensitive;
// the two eligibility flags select the whitelist for each reconciliation
// mode (path-substring matching vs AI suggestion mapping).
type Tag struct {
	ID                string    `gorm:"type:text;primaryKey" json:"id"`
	Name              string    `gorm:"type:text;not null;uniqueIndex:idx_tags_name" json:"name"`
	Description       string    `gorm:"type:text" json:"description,omitempty"`
	Color             string    `gorm:"type:text" json:"color,omitempty"`
	ParseFromFilename bool      `gorm:"default:false" json:"parse_from_filename"`
	AICanSuggest      bool      `gorm:"column:ai_can_suggest;default:false" json:"ai_can_suggest"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName returns the database table name for Tag.
func (Tag) TableName() string {
	return "tags"
}

// MemeTag associates a media record with a tag. Unique per (media, tag);
// the pipeline only ever inserts, and re-adding an existing association is
// a no-op rather than an error.
type MemeTag struct {
	MediaID   string    `gorm:"type:text;primaryKey" json:"media_id"`
	TagID     string    `gorm:"type:text;primaryKey" json:"tag_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for MemeTag.
func (MemeTag) TableName() string {
	return "meme_tags"
}
