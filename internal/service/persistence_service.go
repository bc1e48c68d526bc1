package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ai-factcheck-be/internal/dto"
	"ai-factcheck-be/internal/entity"
	"ai-factcheck-be/internal/pkg/logger"
	"ai-factcheck-be/internal/repository/specification"
	"ai-factcheck-be/internal/repository/unitofwork"
	"ai-factcheck-be/pkg/apperror"
	"ai-factcheck-be/pkg/events"
	"ai-factcheck-be/pkg/prompt"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

const (
	defaultPageSize = 20
	persistModule   = "PERSISTENCE"
)

type IPersistenceService interface {
	CreateAnalysis(ctx context.Context, in *dto.CreateAnalysisInput) (uuid.UUID, error)
	AppendTurn(ctx context.Context, analysisId uuid.UUID, in *dto.TurnInput) (*dto.TurnIDs, error)
	// PersistInitialTurn creates the analysis and its first pair in one
	// transaction so a failed append leaves nothing behind.
	PersistInitialTurn(ctx context.Context, analysis *dto.CreateAnalysisInput, turn *dto.TurnInput) (uuid.UUID, *dto.TurnIDs, error)
	LoadAnalysis(ctx context.Context, analysisId uuid.UUID) (*entity.Analysis, error)
	LoadHistory(ctx context.Context, analysisId uuid.UUID) ([]*entity.Message, error)
	InvalidateHistory(analysisId uuid.UUID)

	GetAnalysis(ctx context.Context, ownerId string, analysisId uuid.UUID) (*dto.AnalysisResponse, error)
	ListAnalyses(ctx context.Context, ownerId string, req *dto.ListAnalysesRequest) (*dto.AnalysisListResponse, error)
	ListMessages(ctx context.Context, ownerId string, analysisId uuid.UUID) ([]dto.MessageResponse, error)
}

type persistenceService struct {
	uowFactory unitofwork.RepositoryFactory
	publisher  IPublisherService
	history    *cache.Cache
	logger     logger.ILogger
	now        func() time.Time
}

func NewPersistenceService(
	uowFactory unitofwork.RepositoryFactory,
	publisher IPublisherService,
	historyTTL time.Duration,
	log logger.ILogger,
) IPersistenceService {
	if historyTTL <= 0 {
		historyTTL = time.Hour
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &persistenceService{
		uowFactory: uowFactory,
		publisher:  publisher,
		history:    cache.New(historyTTL, 10*time.Minute),
		logger:     log,
		now:        time.Now,
	}
}

func (s *persistenceService) CreateAnalysis(ctx context.Context, in *dto.CreateAnalysisInput) (uuid.UUID, error) {
	analysis, err := s.newAnalysis(in)
	if err != nil {
		return uuid.Nil, err
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.AnalysisRepository().Create(ctx, analysis); err != nil {
		return uuid.Nil, apperror.NewPersistence("create_analysis", err)
	}
	return analysis.Id, nil
}

func (s *persistenceService) AppendTurn(ctx context.Context, analysisId uuid.UUID, in *dto.TurnInput) (*dto.TurnIDs, error) {
	if err := validateTurn(in); err != nil {
		return nil, err
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, apperror.NewPersistence("append_turn", err)
	}
	defer uow.Rollback()

	analysis, err := uow.AnalysisRepository().FindOne(ctx, specification.ByID{ID: analysisId})
	if err != nil {
		return nil, apperror.NewPersistence("append_turn", err)
	}
	if analysis == nil {
		return nil, apperror.NewPersistence("append_turn", fmt.Errorf("analysis %s: %w", analysisId, apperror.ErrNotFound))
	}

	ids, err := s.appendTurn(ctx, uow, analysisId, in)
	if err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, apperror.NewPersistence("append_turn", err)
	}

	s.afterCommit(ctx, analysisId, ids)
	return ids, nil
}

func (s *persistenceService) PersistInitialTurn(ctx context.Context, in *dto.CreateAnalysisInput, turn *dto.TurnInput) (uuid.UUID, *dto.TurnIDs, error) {
	analysis, err := s.newAnalysis(in)
	if err != nil {
		return uuid.Nil, nil, err
	}
	if err := validateTurn(turn); err != nil {
		return uuid.Nil, nil, err
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return uuid.Nil, nil, apperror.NewPersistence("persist_initial_turn", err)
	}
	defer uow.Rollback()

	if err := uow.AnalysisRepository().Create(ctx, analysis); err != nil {
		return uuid.Nil, nil, apperror.NewPersistence("persist_initial_turn", err)
	}

	ids, err := s.appendTurn(ctx, uow, analysis.Id, turn)
	if err != nil {
		return uuid.Nil, nil, err
	}

	if err := uow.Commit(); err != nil {
		return uuid.Nil, nil, apperror.NewPersistence("persist_initial_turn", err)
	}

	s.afterCommit(ctx, analysis.Id, ids)
	return analysis.Id, ids, nil
}

// appendTurn runs inside an open transaction. Sequence numbers continue
// from the last stored message and timestamps never go backwards.
func (s *persistenceService) appendTurn(ctx context.Context, uow unitofwork.UnitOfWork, analysisId uuid.UUID, in *dto.TurnInput) (*dto.TurnIDs, error) {
	last, err := uow.MessageRepository().FindOne(ctx,
		specification.ByAnalysisID{AnalysisID: analysisId},
		specification.OrderBy{Field: "seq", Desc: true},
	)
	if err != nil {
		return nil, apperror.NewPersistence("append_turn", err)
	}

	seq := 0
	userAt := s.now().UTC().Truncate(time.Microsecond)
	if last != nil {
		seq = last.Seq
		if !userAt.After(last.Timestamp) {
			userAt = last.Timestamp.Add(time.Millisecond)
		}
	}
	isInitial := last == nil

	modelId := in.ModelId
	userMsg := &entity.Message{
		Id:          uuid.New(),
		AnalysisId:  analysisId,
		Seq:         seq + 1,
		SenderType:  entity.SenderUser,
		MessageText: in.UserText,
		IsInitial:   isInitial,
		Timestamp:   userAt,
	}
	assistantMsg := &entity.Message{
		Id:               uuid.New(),
		AnalysisId:       analysisId,
		Seq:              seq + 2,
		SenderType:       entity.SenderAssistant,
		MessageText:      in.AssistantText,
		ModelIdUsed:      &modelId,
		GroundingSources: in.Citations,
		IsInitial:        isInitial,
		Timestamp:        userAt.Add(time.Millisecond),
	}

	if err := uow.MessageRepository().CreateBulk(ctx, []*entity.Message{userMsg, assistantMsg}); err != nil {
		return nil, apperror.NewPersistence("append_turn", err)
	}

	if isInitial {
		if _, err := uow.AnalysisRepository().SetReportTextIfEmpty(ctx, analysisId, in.AssistantText); err != nil {
			return nil, apperror.NewPersistence("append_turn", err)
		}
	}

	if err := uow.AnalysisRepository().Touch(ctx, analysisId); err != nil {
		return nil, apperror.NewPersistence("append_turn", err)
	}

	return &dto.TurnIDs{
		UserMessageId:      userMsg.Id,
		AssistantMessageId: assistantMsg.Id,
		IsInitial:          isInitial,
	}, nil
}

func (s *persistenceService) afterCommit(ctx context.Context, analysisId uuid.UUID, ids *dto.TurnIDs) {
	s.InvalidateHistory(analysisId)

	if s.publisher == nil {
		return
	}
	payload, err := events.Encode(events.TurnPersisted{
		AnalysisId:         analysisId.String(),
		UserMessageId:      ids.UserMessageId.String(),
		AssistantMessageId: ids.AssistantMessageId.String(),
		IsInitial:          ids.IsInitial,
		OccurredAt:         s.now(),
	})
	if err == nil {
		err = s.publisher.Publish(ctx, payload)
	}
	if err != nil {
		s.logger.Warn(persistModule, "Failed to publish turn.persisted", map[string]interface{}{
			"analysis_id": analysisId.String(),
			"error":       err.Error(),
		})
	}
}

func (s *persistenceService) LoadAnalysis(ctx context.Context, analysisId uuid.UUID) (*entity.Analysis, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	analysis, err := uow.AnalysisRepository().FindOne(ctx, specification.ByID{ID: analysisId})
	if err != nil {
		return nil, apperror.NewPersistence("load_analysis", err)
	}
	if analysis == nil {
		return nil, fmt.Errorf("analysis %s: %w", analysisId, apperror.ErrNotFound)
	}
	return analysis, nil
}

func (s *persistenceService) LoadHistory(ctx context.Context, analysisId uuid.UUID) ([]*entity.Message, error) {
	key := analysisId.String()
	if cached, found := s.history.Get(key); found {
		return copyMessages(cached.([]*entity.Message)), nil
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	messages, err := uow.MessageRepository().FindAll(ctx,
		specification.ByAnalysisID{AnalysisID: analysisId},
		specification.InConversationOrder{},
	)
	if err != nil {
		return nil, apperror.NewPersistence("load_history", err)
	}

	s.history.Set(key, messages, cache.DefaultExpiration)
	return copyMessages(messages), nil
}

func (s *persistenceService) InvalidateHistory(analysisId uuid.UUID) {
	s.history.Delete(analysisId.String())
}

func (s *persistenceService) GetAnalysis(ctx context.Context, ownerId string, analysisId uuid.UUID) (*dto.AnalysisResponse, error) {
	analysis, err := s.ownedAnalysis(ctx, ownerId, analysisId)
	if err != nil {
		return nil, err
	}
	messages, err := s.LoadHistory(ctx, analysisId)
	if err != nil {
		return nil, err
	}

	res := toAnalysisResponse(analysis)
	res.Messages = toMessageResponses(messages)
	return &res, nil
}

func (s *persistenceService) ListMessages(ctx context.Context, ownerId string, analysisId uuid.UUID) ([]dto.MessageResponse, error) {
	if _, err := s.ownedAnalysis(ctx, ownerId, analysisId); err != nil {
		return nil, err
	}
	messages, err := s.LoadHistory(ctx, analysisId)
	if err != nil {
		return nil, err
	}
	return toMessageResponses(messages), nil
}

func (s *persistenceService) ListAnalyses(ctx context.Context, ownerId string, req *dto.ListAnalysesRequest) (*dto.AnalysisListResponse, error) {
	page, pageSize := req.Page, req.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}

	filters := []specification.Specification{specification.ByOwnerID{OwnerID: ownerId}}
	if req.Type != "" {
		rt, err := prompt.ParseReportType(req.Type)
		if err != nil {
			return nil, err
		}
		filters = append(filters, specification.ByReportType{ReportType: string(rt)})
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	total, err := uow.AnalysisRepository().Count(ctx, filters...)
	if err != nil {
		return nil, apperror.NewPersistence("list_analyses", err)
	}

	query := append(filters,
		specification.OrderBy{Field: "created_at", Desc: true},
		specification.Pagination{Limit: pageSize, Offset: (page - 1) * pageSize},
	)
	analyses, err := uow.AnalysisRepository().FindAll(ctx, query...)
	if err != nil {
		return nil, apperror.NewPersistence("list_analyses", err)
	}

	items := make([]dto.AnalysisResponse, 0, len(analyses))
	for _, a := range analyses {
		items = append(items, toAnalysisResponse(a))
	}

	return &dto.AnalysisListResponse{
		Items:    items,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// ownedAnalysis hides analyses that belong to another owner.
func (s *persistenceService) ownedAnalysis(ctx context.Context, ownerId string, analysisId uuid.UUID) (*entity.Analysis, error) {
	analysis, err := s.LoadAnalysis(ctx, analysisId)
	if err != nil {
		return nil, err
	}
	if analysis.OwnerId != nil && *analysis.OwnerId != ownerId {
		return nil, fmt.Errorf("analysis %s: %w", analysisId, apperror.ErrNotFound)
	}
	return analysis, nil
}

func (s *persistenceService) newAnalysis(in *dto.CreateAnalysisInput) (*entity.Analysis, error) {
	rt, err := prompt.ParseReportType(in.ReportType)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.ModelId) == "" {
		return nil, apperror.NewValidation("model_id", "model id is required")
	}
	if strings.TrimSpace(in.Query) == "" && in.ImageRef == "" {
		return nil, apperror.NewValidation("query", "query text or image is required")
	}

	now := s.now().UTC()
	return &entity.Analysis{
		Id:            uuid.New(),
		OwnerId:       optionalString(in.OwnerId),
		UserQueryText: optionalString(strings.TrimSpace(in.Query)),
		UserImageRef:  optionalString(in.ImageRef),
		ReportType:    entity.ReportType(rt),
		ModelIdUsed:   in.ModelId,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func validateTurn(in *dto.TurnInput) error {
	if in == nil || strings.TrimSpace(in.UserText) == "" {
		return apperror.NewValidation("user_text", "user text is required")
	}
	if strings.TrimSpace(in.ModelId) == "" {
		return apperror.NewValidation("model_id", "model id is required")
	}
	return nil
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func copyMessages(in []*entity.Message) []*entity.Message {
	out := make([]*entity.Message, len(in))
	for i, m := range in {
		c := *m
		out[i] = &c
	}
	return out
}

func toAnalysisResponse(a *entity.Analysis) dto.AnalysisResponse {
	return dto.AnalysisResponse{
		Id:                  a.Id,
		UserQueryText:       a.UserQueryText,
		UserImageRef:        a.UserImageRef,
		ReportType:          string(a.ReportType),
		ModelIdUsed:         a.ModelIdUsed,
		GeneratedReportText: a.GeneratedReportText,
		CreatedAt:           a.CreatedAt,
		UpdatedAt:           a.UpdatedAt,
	}
}

func toMessageResponses(messages []*entity.Message) []dto.MessageResponse {
	out := make([]dto.MessageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, dto.MessageResponse{
			Id:               m.Id,
			SenderType:       string(m.SenderType),
			MessageText:      m.MessageText,
			ModelIdUsed:      m.ModelIdUsed,
			GroundingSources: m.GroundingSources,
			IsInitial:        m.IsInitial,
			Timestamp:        m.Timestamp,
		})
	}
	return out
}
