package domain

import "time"

// AlbumItem is one ordered image inside an album record.
// DisplayOrder is 1-based and dense: a permutation of 1..N per album.
type AlbumItem struct {
	ID           string    `gorm:"type:text;primaryKey" json:"id"`
	AlbumID      string    `gorm:"type:text;not null;index:idx_album_items_album;uniqueIndex:idx_album_items_order" json:"album_id"`
	Path         string    `gorm:"type:text;not null" json:"path"`
	DisplayOrder int       `gorm:"not null;uniqueIndex:idx_album_items_order" json:"display_order"`
	ContentHash  string    `gorm:"type:text" json:"content_hash,omitempty"`
	Size         int64     `json:"size"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for AlbumItem.
func (AlbumItem) TableName() string {
	return "album_items"
}
