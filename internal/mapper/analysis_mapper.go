package mapper

import (
	"encoding/json"

	"ai-factcheck-be/internal/entity"
	"ai-factcheck-be/internal/model"

	"gorm.io/datatypes"
)

type AnalysisMapper struct{}

func NewAnalysisMapper() *AnalysisMapper {
	return &AnalysisMapper{}
}

// Analysis Mappers

func (m *AnalysisMapper) AnalysisToEntity(a *model.Analysis) *entity.Analysis {
	if a == nil {
		return nil
	}
	return &entity.Analysis{
		Id:                  a.Id,
		OwnerId:             a.OwnerId,
		UserQueryText:       a.UserQueryText,
		UserImageRef:        a.UserImageRef,
		ReportType:          entity.ReportType(a.ReportType),
		ModelIdUsed:         a.ModelIdUsed,
		GeneratedReportText: a.GeneratedReportText,
		CreatedAt:           a.CreatedAt,
		UpdatedAt:           a.UpdatedAt,
	}
}

func (m *AnalysisMapper) AnalysisToModel(a *entity.Analysis) *model.Analysis {
	if a == nil {
		return nil
	}
	return &model.Analysis{
		Id:                  a.Id,
		OwnerId:             a.OwnerId,
		UserQueryText:       a.UserQueryText,
		UserImageRef:        a.UserImageRef,
		ReportType:          string(a.ReportType),
		ModelIdUsed:         a.ModelIdUsed,
		GeneratedReportText: a.GeneratedReportText,
		CreatedAt:           a.CreatedAt,
		UpdatedAt:           a.UpdatedAt,
	}
}

func (m *AnalysisMapper) AnalysesToEntities(models []*model.Analysis) []*entity.Analysis {
	entities := make([]*entity.Analysis, len(models))
	for i, a := range models {
		entities[i] = m.AnalysisToEntity(a)
	}
	return entities
}

// Message Mappers

func (m *AnalysisMapper) MessageToEntity(msg *model.Message) *entity.Message {
	if msg == nil {
		return nil
	}

	var sources []entity.Source
	if len(msg.GroundingSources) > 0 {
		// A malformed column degrades to no citations rather than failing the read.
		_ = json.Unmarshal(msg.GroundingSources, &sources)
	}

	return &entity.Message{
		Id:               msg.Id,
		AnalysisId:       msg.AnalysisId,
		Seq:              msg.Seq,
		SenderType:       entity.SenderType(msg.SenderType),
		MessageText:      msg.MessageText,
		ModelIdUsed:      msg.ModelIdUsed,
		GroundingSources: sources,
		IsInitial:        msg.IsInitial,
		Timestamp:        msg.Timestamp,
	}
}

func (m *AnalysisMapper) MessageToModel(msg *entity.Message) (*model.Message, error) {
	if msg == nil {
		return nil, nil
	}

	var sources datatypes.JSON
	if len(msg.GroundingSources) > 0 {
		raw, err := json.Marshal(msg.GroundingSources)
		if err != nil {
			return nil, err
		}
		sources = datatypes.JSON(raw)
	}

	return &model.Message{
		Id:               msg.Id,
		AnalysisId:       msg.AnalysisId,
		Seq:              msg.Seq,
		SenderType:       string(msg.SenderType),
		MessageText:      msg.MessageText,
		ModelIdUsed:      msg.ModelIdUsed,
		GroundingSources: sources,
		IsInitial:        msg.IsInitial,
		Timestamp:        msg.Timestamp,
	}, nil
}

func (m *AnalysisMapper) MessagesToEntities(models []*model.Message) []*entity.Message {
	entities := make([]*entity.Message, len(models))
	for i, msg := range models {
		entities[i] = m.MessageToEntity(msg)
	}
	return entities
}

// Content Cache Mappers

func (m *AnalysisMapper) ContentCacheToEntity(c *model.ContentCache) *entity.ContentCache {
	if c == nil {
		return nil
	}
	return &entity.ContentCache{
		ContentHash: c.ContentHash,
		SourceUrl:   c.SourceUrl,
		Title:       c.Title,
		ContentText: c.ContentText,
		FetchedAt:   c.FetchedAt,
	}
}

func (m *AnalysisMapper) ContentCacheToModel(c *entity.ContentCache) *model.ContentCache {
	if c == nil {
		return nil
	}
	return &model.ContentCache{
		ContentHash: c.ContentHash,
		SourceUrl:   c.SourceUrl,
		Title:       c.Title,
		ContentText: c.ContentText,
		FetchedAt:   c.FetchedAt,
	}
}
