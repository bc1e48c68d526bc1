package unitofwork

import (
	"context"

	"ai-factcheck-be/internal/repository/contract"
)

// RepositoryFactory hands out one UnitOfWork per operation.
type RepositoryFactory interface {
	NewUnitOfWork(ctx context.Context) UnitOfWork
}

// UnitOfWork groups the repositories of one operation. Between Begin and
// Commit every repository it returns shares the transaction; Rollback after
// Commit is a no-op so it can always be deferred.
type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	AnalysisRepository() contract.AnalysisRepository
	MessageRepository() contract.MessageRepository
	ContentCacheRepository() contract.ContentCacheRepository
}
