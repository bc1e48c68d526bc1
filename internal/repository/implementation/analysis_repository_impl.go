package implementation

import (
	"context"
	"errors"
	"time"

	"ai-factcheck-be/internal/entity"
	"ai-factcheck-be/internal/mapper"
	"ai-factcheck-be/internal/model"
	"ai-factcheck-be/internal/repository/contract"
	"ai-factcheck-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AnalysisRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.AnalysisMapper
}

func NewAnalysisRepository(db *gorm.DB) contract.AnalysisRepository {
	return &AnalysisRepositoryImpl{
		db:     db,
		mapper: mapper.NewAnalysisMapper(),
	}
}

func (r *AnalysisRepositoryImpl) Create(ctx context.Context, analysis *entity.Analysis) error {
	m := r.mapper.AnalysisToModel(analysis)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*analysis = *r.mapper.AnalysisToEntity(m)
	return nil
}

func (r *AnalysisRepositoryImpl) SetReportTextIfEmpty(ctx context.Context, id uuid.UUID, text string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Analysis{}).
		Where("id = ? AND generated_report_text IS NULL", id).
		Update("generated_report_text", text)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *AnalysisRepositoryImpl) Touch(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&model.Analysis{}).
		Where("id = ?", id).
		Update("updated_at", time.Now().UTC()).Error
}

func (r *AnalysisRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Analysis, error) {
	var m model.Analysis
	query := specification.ApplyAll(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.AnalysisToEntity(&m), nil
}

func (r *AnalysisRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Analysis, error) {
	var models []*model.Analysis
	query := specification.ApplyAll(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.AnalysesToEntities(models), nil
}

func (r *AnalysisRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := specification.ApplyAll(r.db.WithContext(ctx).Model(&model.Analysis{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
