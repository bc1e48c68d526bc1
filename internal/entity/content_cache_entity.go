package entity

import "time"

type ContentCache struct {
	ContentHash string
	SourceUrl   string
	Title       string
	ContentText string
	FetchedAt   time.Time
}
