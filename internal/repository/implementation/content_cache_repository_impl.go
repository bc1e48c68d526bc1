package implementation

import (
	"context"
	"errors"

	"ai-factcheck-be/internal/entity"
	"ai-factcheck-be/internal/mapper"
	"ai-factcheck-be/internal/model"
	"ai-factcheck-be/internal/repository/contract"
	"ai-factcheck-be/internal/repository/specification"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ContentCacheRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.AnalysisMapper
}

func NewContentCacheRepository(db *gorm.DB) contract.ContentCacheRepository {
	return &ContentCacheRepositoryImpl{
		db:     db,
		mapper: mapper.NewAnalysisMapper(),
	}
}

func (r *ContentCacheRepositoryImpl) CreateIfAbsent(ctx context.Context, entry *entity.ContentCache) error {
	m := r.mapper.ContentCacheToModel(entry)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "content_hash"}}, DoNothing: true}).
		Create(m).Error
}

func (r *ContentCacheRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.ContentCache, error) {
	var m model.ContentCache
	query := specification.ApplyAll(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ContentCacheToEntity(&m), nil
}

func (r *ContentCacheRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := specification.ApplyAll(r.db.WithContext(ctx).Model(&model.ContentCache{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
