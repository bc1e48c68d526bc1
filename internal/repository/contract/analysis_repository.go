package contract

import (
	"context"

	"ai-factcheck-be/internal/entity"
	"ai-factcheck-be/internal/repository/specification"

	"github.com/google/uuid"
)

type AnalysisRepository interface {
	Create(ctx context.Context, analysis *entity.Analysis) error
	// SetReportTextIfEmpty writes generated_report_text only while it is
	// still null and reports whether a row changed.
	SetReportTextIfEmpty(ctx context.Context, id uuid.UUID, text string) (bool, error)
	Touch(ctx context.Context, id uuid.UUID) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Analysis, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Analysis, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
