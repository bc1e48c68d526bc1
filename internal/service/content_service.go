package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ai-factcheck-be/internal/dto"
	"ai-factcheck-be/internal/entity"
	"ai-factcheck-be/internal/pkg/logger"
	"ai-factcheck-be/internal/repository/specification"
	"ai-factcheck-be/internal/repository/unitofwork"
	"ai-factcheck-be/pkg/apperror"
	"ai-factcheck-be/pkg/fetcher"

	"github.com/redis/go-redis/v9"
)

const contentModule = "CONTENT"

type IContentService interface {
	Fetch(ctx context.Context, req *dto.FetchContentRequest) (*dto.ContentResponse, error)
}

type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetcher.Page, error)
}

// contentService resolves a URL to extracted text. Lookups go Redis (when
// configured), then the content_cache table, then the network.
type contentService struct {
	uowFactory unitofwork.RepositoryFactory
	fetcher    PageFetcher
	rdb        *redis.Client
	ttl        time.Duration
	logger     logger.ILogger
}

func NewContentService(
	uowFactory unitofwork.RepositoryFactory,
	fetcher PageFetcher,
	rdb *redis.Client,
	ttl time.Duration,
	log logger.ILogger,
) IContentService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &contentService{
		uowFactory: uowFactory,
		fetcher:    fetcher,
		rdb:        rdb,
		ttl:        ttl,
		logger:     log,
	}
}

func HashContent(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func redisKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return "content:url:" + hex.EncodeToString(sum[:])
}

func (s *contentService) Fetch(ctx context.Context, req *dto.FetchContentRequest) (*dto.ContentResponse, error) {
	if res := s.fromRedis(ctx, req.Url); res != nil {
		return res, nil
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)

	stored, err := uow.ContentCacheRepository().FindOne(ctx,
		specification.BySourceURL{URL: req.Url},
		specification.OrderBy{Field: "fetched_at", Desc: true},
	)
	if err != nil {
		return nil, apperror.NewPersistence("find_content", err)
	}
	if stored != nil && time.Since(stored.FetchedAt) < s.ttl {
		res := toContentResponse(stored, true)
		s.toRedis(ctx, req.Url, res)
		return res, nil
	}

	page, err := s.fetcher.Fetch(ctx, req.Url)
	if err != nil {
		if errors.Is(err, fetcher.ErrInvalidURL) {
			return nil, apperror.NewValidation("url", err.Error())
		}
		return nil, fmt.Errorf("%w: %v", apperror.ErrUpstream, err)
	}

	entry := &entity.ContentCache{
		ContentHash: HashContent(page.Text),
		SourceUrl:   page.URL,
		Title:       page.Title,
		ContentText: page.Text,
		FetchedAt:   time.Now().UTC(),
	}

	// Identical content fetched earlier, possibly from another URL, keeps
	// its row.
	existing, err := uow.ContentCacheRepository().FindOne(ctx, specification.ByContentHash{Hash: entry.ContentHash})
	if err != nil {
		return nil, apperror.NewPersistence("find_content", err)
	}
	cached := existing != nil
	if cached {
		entry = existing
	} else if err := uow.ContentCacheRepository().CreateIfAbsent(ctx, entry); err != nil {
		return nil, apperror.NewPersistence("store_content", err)
	}

	s.logger.Info(contentModule, "Content fetched", map[string]interface{}{
		"url":    req.Url,
		"hash":   entry.ContentHash,
		"cached": cached,
	})

	res := toContentResponse(entry, cached)
	s.toRedis(ctx, req.Url, res)
	return res, nil
}

func (s *contentService) fromRedis(ctx context.Context, url string) *dto.ContentResponse {
	if s.rdb == nil {
		return nil
	}
	raw, err := s.rdb.Get(ctx, redisKey(url)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn(contentModule, "Redis lookup failed", map[string]interface{}{"error": err.Error()})
		}
		return nil
	}
	var res dto.ContentResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil
	}
	res.Cached = true
	return &res
}

func (s *contentService) toRedis(ctx context.Context, url string, res *dto.ContentResponse) {
	if s.rdb == nil {
		return
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, redisKey(url), raw, s.ttl).Err(); err != nil {
		s.logger.Warn(contentModule, "Redis write failed", map[string]interface{}{"error": err.Error()})
	}
}

func toContentResponse(c *entity.ContentCache, cached bool) *dto.ContentResponse {
	return &dto.ContentResponse{
		ContentHash: c.ContentHash,
		SourceUrl:   c.SourceUrl,
		Title:       c.Title,
		ContentText: c.ContentText,
		FetchedAt:   c.FetchedAt,
		Cached:      cached,
	}
}
