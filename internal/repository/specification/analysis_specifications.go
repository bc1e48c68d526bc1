package specification

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ByAnalysisID struct {
	AnalysisID uuid.UUID
}

func (s ByAnalysisID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("analysis_id = ?", s.AnalysisID)
}

// ByOwnerID restricts to one owner. An empty owner matches analyses created
// without authentication.
type ByOwnerID struct {
	OwnerID string
}

func (s ByOwnerID) Apply(db *gorm.DB) *gorm.DB {
	if s.OwnerID == "" {
		return db.Where("owner_id IS NULL")
	}
	return db.Where("owner_id = ?", s.OwnerID)
}

type ByReportType struct {
	ReportType string
}

func (s ByReportType) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("report_type = ?", s.ReportType)
}

type ByContentHash struct {
	Hash string
}

func (s ByContentHash) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("content_hash = ?", s.Hash)
}

type BySourceURL struct {
	URL string
}

func (s BySourceURL) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("source_url = ?", s.URL)
}

// InConversationOrder sorts messages in the order they were appended.
type InConversationOrder struct{}

func (s InConversationOrder) Apply(db *gorm.DB) *gorm.DB {
	return db.Order("seq ASC")
}
