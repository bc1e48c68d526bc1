package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"ai-factcheck-be/internal/dto"
	"ai-factcheck-be/internal/entity"
	"ai-factcheck-be/internal/model"
	"ai-factcheck-be/pkg/apperror"
	"ai-factcheck-be/pkg/events"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func initialInput() *dto.CreateAnalysisInput {
	return &dto.CreateAnalysisInput{
		Query:      "The moon is made of cheese",
		ReportType: "FULL_CHECK",
		ModelId:    "demo",
	}
}

func TestPersistence_InitialTurnThenFollowup(t *testing.T) {
	db := newTestDB(t)
	pub := &recordingPublisher{}
	svc := newPersistence(t, db, pub)
	ctx := context.Background()

	id, ids, err := svc.PersistInitialTurn(ctx, initialInput(), &dto.TurnInput{
		UserText:      "The moon is made of cheese",
		AssistantText: "## Verdict\nFalse.",
		ModelId:       "demo",
		Citations:     []entity.Source{{Title: "NASA", URI: "https://nasa.gov/moon"}},
	})
	require.NoError(t, err)
	assert.True(t, ids.IsInitial)

	_, err = svc.AppendTurn(ctx, id, &dto.TurnInput{
		UserText:      "/summarize",
		AssistantText: "- false",
		ModelId:       "demo",
	})
	require.NoError(t, err)

	analysis, err := svc.LoadAnalysis(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, analysis.GeneratedReportText)
	assert.Equal(t, "## Verdict\nFalse.", *analysis.GeneratedReportText)

	history, err := svc.LoadHistory(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 4)

	wantSenders := []entity.SenderType{entity.SenderUser, entity.SenderAssistant, entity.SenderUser, entity.SenderAssistant}
	wantInitial := []bool{true, true, false, false}
	for i, m := range history {
		assert.Equal(t, wantSenders[i], m.SenderType, "message %d", i)
		assert.Equal(t, wantInitial[i], m.IsInitial, "message %d", i)
		assert.Equal(t, i+1, m.Seq)
		if i > 0 {
			assert.True(t, m.Timestamp.After(history[i-1].Timestamp), "timestamps must increase")
		}
	}
	assert.Equal(t, []entity.Source{{Title: "NASA", URI: "https://nasa.gov/moon"}}, history[1].GroundingSources)
	assert.Nil(t, history[0].ModelIdUsed)
	require.NotNil(t, history[3].ModelIdUsed)
	assert.Equal(t, "demo", *history[3].ModelIdUsed)

	require.Len(t, pub.published(), 2)
	evt, err := events.Decode(pub.published()[0])
	require.NoError(t, err)
	assert.Equal(t, events.TypeTurnPersisted, evt.Type)
	assert.Equal(t, id.String(), evt.Data["analysis_id"])
	assert.Equal(t, true, evt.Data["is_initial"])
}

func TestPersistence_ReportTextWrittenOnce(t *testing.T) {
	db := newTestDB(t)
	svc := newPersistence(t, db, nil)
	ctx := context.Background()

	id, err := svc.CreateAnalysis(ctx, initialInput())
	require.NoError(t, err)

	_, err = svc.AppendTurn(ctx, id, &dto.TurnInput{UserText: "q", AssistantText: "first report", ModelId: "demo"})
	require.NoError(t, err)
	_, err = svc.AppendTurn(ctx, id, &dto.TurnInput{UserText: "q2", AssistantText: "second", ModelId: "demo"})
	require.NoError(t, err)

	analysis, err := svc.LoadAnalysis(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "first report", *analysis.GeneratedReportText)
}

func TestPersistence_TimestampsIncreaseUnderFrozenClock(t *testing.T) {
	db := newTestDB(t)
	svc := newPersistence(t, db, nil)
	frozen := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return frozen }
	ctx := context.Background()

	id, _, err := svc.PersistInitialTurn(ctx, initialInput(), &dto.TurnInput{UserText: "q", AssistantText: "a", ModelId: "demo"})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := svc.AppendTurn(ctx, id, &dto.TurnInput{UserText: "more", AssistantText: "ok", ModelId: "demo"})
		require.NoError(t, err)
	}

	history, err := svc.LoadHistory(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 8)
	for i := 1; i < len(history); i++ {
		assert.Equal(t, time.Millisecond, history[i].Timestamp.Sub(history[i-1].Timestamp))
	}
}

func TestPersistence_Validation(t *testing.T) {
	db := newTestDB(t)
	svc := newPersistence(t, db, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		in   dto.CreateAnalysisInput
	}{
		{"bad report type", dto.CreateAnalysisInput{Query: "q", ReportType: "OPINION", ModelId: "demo"}},
		{"missing model", dto.CreateAnalysisInput{Query: "q", ReportType: "FULL_CHECK"}},
		{"nothing to analyze", dto.CreateAnalysisInput{Query: "  ", ReportType: "FULL_CHECK", ModelId: "demo"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateAnalysis(ctx, &tt.in)
			assert.True(t, apperror.IsValidation(err))
		})
	}

	var count int64
	require.NoError(t, db.Model(&model.Analysis{}).Count(&count).Error)
	assert.Zero(t, count)

	t.Run("image only is accepted", func(t *testing.T) {
		id, err := svc.CreateAnalysis(ctx, &dto.CreateAnalysisInput{ReportType: "COMMUNITY_NOTE", ModelId: "demo", ImageRef: "photo.png"})
		require.NoError(t, err)
		a, err := svc.LoadAnalysis(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, a.UserQueryText)
		assert.Equal(t, "photo.png", *a.UserImageRef)
	})
}

func TestPersistence_AppendTurnUnknownAnalysis(t *testing.T) {
	svc := newPersistence(t, newTestDB(t), nil)

	_, err := svc.AppendTurn(context.Background(), uuid.New(), &dto.TurnInput{UserText: "q", AssistantText: "a", ModelId: "demo"})
	assert.True(t, apperror.IsPersistence(err))
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestPersistence_RollbackOnFailure(t *testing.T) {
	db := newTestDB(t)
	svc := newPersistence(t, db, nil)

	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail_messages", func(tx *gorm.DB) {
		if tx.Statement.Schema != nil && tx.Statement.Schema.Table == "messages" {
			_ = tx.AddError(errors.New("disk full"))
		}
	}))

	_, _, err := svc.PersistInitialTurn(context.Background(), initialInput(), &dto.TurnInput{UserText: "q", AssistantText: "a", ModelId: "demo"})
	require.Error(t, err)
	assert.True(t, apperror.IsPersistence(err))

	var analyses, messages int64
	require.NoError(t, db.Model(&model.Analysis{}).Count(&analyses).Error)
	require.NoError(t, db.Model(&model.Message{}).Count(&messages).Error)
	assert.Zero(t, analyses, "no orphan analysis after a failed append")
	assert.Zero(t, messages)
}

func TestPersistence_HistoryCacheInvalidatedByAppend(t *testing.T) {
	svc := newPersistence(t, newTestDB(t), nil)
	ctx := context.Background()

	id, _, err := svc.PersistInitialTurn(ctx, initialInput(), &dto.TurnInput{UserText: "q", AssistantText: "a", ModelId: "demo"})
	require.NoError(t, err)

	history, err := svc.LoadHistory(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 2)

	history[0].MessageText = "mutated by caller"
	again, err := svc.LoadHistory(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "q", again[0].MessageText)

	_, err = svc.AppendTurn(ctx, id, &dto.TurnInput{UserText: "q2", AssistantText: "a2", ModelId: "demo"})
	require.NoError(t, err)

	history, err = svc.LoadHistory(ctx, id)
	require.NoError(t, err)
	assert.Len(t, history, 4)
}

func TestPersistence_OwnershipAndListing(t *testing.T) {
	svc := newPersistence(t, newTestDB(t), nil)
	ctx := context.Background()

	create := func(owner, reportType string) uuid.UUID {
		in := initialInput()
		in.OwnerId = owner
		in.ReportType = reportType
		id, _, err := svc.PersistInitialTurn(ctx, in, &dto.TurnInput{UserText: "q", AssistantText: "a", ModelId: "demo"})
		require.NoError(t, err)
		return id
	}

	aliceFirst := create("alice", "FULL_CHECK")
	create("alice", "CONTEXT_REPORT")
	create("alice", "FULL_CHECK")
	bobs := create("bob", "FULL_CHECK")
	anon := create("", "FULL_CHECK")

	t.Run("owner sees own analysis with messages", func(t *testing.T) {
		res, err := svc.GetAnalysis(ctx, "alice", aliceFirst)
		require.NoError(t, err)
		assert.Len(t, res.Messages, 2)
	})

	t.Run("other owner gets not found", func(t *testing.T) {
		_, err := svc.GetAnalysis(ctx, "alice", bobs)
		assert.ErrorIs(t, err, apperror.ErrNotFound)
		_, err = svc.ListMessages(ctx, "alice", bobs)
		assert.ErrorIs(t, err, apperror.ErrNotFound)
	})

	t.Run("anonymous analyses are readable", func(t *testing.T) {
		_, err := svc.GetAnalysis(ctx, "alice", anon)
		assert.NoError(t, err)
	})

	tests := []struct {
		name      string
		owner     string
		req       dto.ListAnalysesRequest
		wantItems int
		wantTotal int64
	}{
		{"all of alice", "alice", dto.ListAnalysesRequest{}, 3, 3},
		{"paged", "alice", dto.ListAnalysesRequest{Page: 2, PageSize: 2}, 1, 3},
		{"by report type", "alice", dto.ListAnalysesRequest{Type: "full_check"}, 2, 2},
		{"anonymous", "", dto.ListAnalysesRequest{}, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.ListAnalyses(ctx, tt.owner, &tt.req)
			require.NoError(t, err)
			assert.Len(t, res.Items, tt.wantItems)
			assert.Equal(t, tt.wantTotal, res.Total)
		})
	}

	t.Run("bad report type filter", func(t *testing.T) {
		_, err := svc.ListAnalyses(ctx, "alice", &dto.ListAnalysesRequest{Type: "nope"})
		assert.True(t, apperror.IsValidation(err))
	})
}
