package model

import "time"

// ContentCache deduplicates fetched external documents by content hash.
type ContentCache struct {
	ContentHash string    `gorm:"type:char(64);primaryKey"`
	SourceUrl   string    `gorm:"type:text;not null;index"`
	Title       string    `gorm:"type:text"`
	ContentText string    `gorm:"type:text;not null"`
	FetchedAt   time.Time `gorm:"not null"`
}

func (ContentCache) TableName() string {
	return "content_cache"
}
