package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"ai-factcheck-be/internal/model"
	"ai-factcheck-be/internal/repository/unitofwork"
	"ai-factcheck-be/pkg/database"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.NewInMemorySQLite(name)
	require.NoError(t, err)
	require.NoError(t, model.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

type recordingPublisher struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (p *recordingPublisher) Publish(_ context.Context, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, payload)
	return nil
}

func (p *recordingPublisher) published() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.payloads...)
}

func newPersistence(t *testing.T, db *gorm.DB, pub IPublisherService) *persistenceService {
	t.Helper()
	return NewPersistenceService(unitofwork.NewRepositoryFactory(db), pub, 0, nil).(*persistenceService)
}
