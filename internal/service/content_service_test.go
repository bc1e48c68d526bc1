package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"ai-factcheck-be/internal/dto"
	"ai-factcheck-be/internal/model"
	"ai-factcheck-be/internal/repository/unitofwork"
	"ai-factcheck-be/pkg/apperror"
	"ai-factcheck-be/pkg/fetcher"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]*fetcher.Page
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) (*fetcher.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.pages[rawURL]
	if !ok {
		return nil, &fetcher.StatusError{URL: rawURL, Status: 404}
	}
	return p, nil
}

func TestContentService_Dedup(t *testing.T) {
	db := newTestDB(t)
	f := &fakeFetcher{pages: map[string]*fetcher.Page{
		"https://a.example/story":  {URL: "https://a.example/story", Title: "Story", Text: "Same body"},
		"https://b.example/mirror": {URL: "https://b.example/mirror", Title: "Mirror", Text: "Same body"},
	}}
	svc := NewContentService(unitofwork.NewRepositoryFactory(db), f, nil, 0, nil)
	ctx := context.Background()

	first, err := svc.Fetch(ctx, &dto.FetchContentRequest{Url: "https://a.example/story"})
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, HashContent("Same body"), first.ContentHash)
	assert.Equal(t, 1, f.calls)

	again, err := svc.Fetch(ctx, &dto.FetchContentRequest{Url: "https://a.example/story"})
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, 1, f.calls, "stored content is served without refetching")

	mirror, err := svc.Fetch(ctx, &dto.FetchContentRequest{Url: "https://b.example/mirror"})
	require.NoError(t, err)
	assert.True(t, mirror.Cached)
	assert.Equal(t, first.ContentHash, mirror.ContentHash)
	assert.Equal(t, "https://a.example/story", mirror.SourceUrl)
	assert.Equal(t, 2, f.calls)

	var rows int64
	require.NoError(t, db.Model(&model.ContentCache{}).Count(&rows).Error)
	assert.Equal(t, int64(1), rows)
}

func TestContentService_Errors(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(t *testing.T, err error)
	}{
		{"invalid url", fetcher.ErrInvalidURL, func(t *testing.T, err error) {
			assert.True(t, apperror.IsValidation(err))
		}},
		{"upstream failure", errors.New("connection refused"), func(t *testing.T, err error) {
			assert.ErrorIs(t, err, apperror.ErrUpstream)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewContentService(unitofwork.NewRepositoryFactory(newTestDB(t)), &fakeFetcher{err: tt.err}, nil, 0, nil)
			_, err := svc.Fetch(context.Background(), &dto.FetchContentRequest{Url: "https://x.example"})
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}
