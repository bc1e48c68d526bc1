package contract

import (
	"context"

	"ai-factcheck-be/internal/entity"
	"ai-factcheck-be/internal/repository/specification"
)

type ContentCacheRepository interface {
	// CreateIfAbsent inserts the entry unless its hash is already stored.
	CreateIfAbsent(ctx context.Context, entry *entity.ContentCache) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.ContentCache, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
