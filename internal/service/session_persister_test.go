package service

import (
	"context"
	"testing"
	"time"

	"ai-factcheck-be/pkg/llm"
	"ai-factcheck-be/pkg/llm/factory"
	"ai-factcheck-be/pkg/llm/scripted"
	"ai-factcheck-be/pkg/prompt"
	"ai-factcheck-be/pkg/session"
	"ai-factcheck-be/pkg/stream"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T, persistence IPersistenceService, adapter llm.Adapter) *session.Manager {
	t.Helper()
	registry := factory.NewRegistry(llm.RetryOptions{})
	registry.RegisterAdapter(adapter)

	m := session.NewManager(session.Deps{
		Adapters:  registry,
		Persister: NewSessionPersister(persistence),
	}, session.NewStore(time.Hour, time.Hour))
	t.Cleanup(func() {
		require.NoError(t, m.Shutdown(context.Background()))
	})
	return m
}

func collect(r *stream.Relay) []stream.Event {
	var out []stream.Event
	for ev := range r.Events() {
		out = append(out, ev)
	}
	return out
}

func TestSessionPersister_EndToEnd(t *testing.T) {
	svc := newPersistence(t, newTestDB(t), nil)
	adapter := scripted.New("test-model").WithSteps(
		scripted.Step{Text: "## Verdict"},
		scripted.Step{Text: "\nFalse.", Citations: []llm.Source{{Title: "NASA", URI: "https://nasa.gov"}}},
	)
	m := newEngine(t, svc, adapter)
	ctx := context.Background()

	s := m.Create("alice")
	relay, err := s.Start(ctx, session.StartInput{
		Query:      "The moon is made of cheese",
		ReportType: string(prompt.FullCheck),
		ModelID:    "test-model",
	})
	require.NoError(t, err)
	events := collect(relay)
	s.Wait()

	require.GreaterOrEqual(t, len(events), 2)
	idEvent := events[len(events)-2]
	require.Equal(t, stream.EventAnalysisID, idEvent.Name)
	assert.Equal(t, stream.EventComplete, events[len(events)-1].Name)

	analysisID, err := uuid.Parse(idEvent.Data.(stream.AnalysisIDPayload).AnalysisID)
	require.NoError(t, err)

	analysis, err := svc.GetAnalysis(ctx, "alice", analysisID)
	require.NoError(t, err)
	require.NotNil(t, analysis.GeneratedReportText)
	assert.Equal(t, "## Verdict\nFalse.", *analysis.GeneratedReportText)
	require.Len(t, analysis.Messages, 2)
	assert.Equal(t, "https://nasa.gov", analysis.Messages[1].GroundingSources[0].URI)

	relay, err = s.SendFollowup(ctx, "", "/summarize")
	require.NoError(t, err)
	collect(relay)
	s.Wait()

	messages, err := svc.ListMessages(ctx, "alice", analysisID)
	require.NoError(t, err)
	require.Len(t, messages, 4)
	assert.Equal(t, "/summarize", messages[2].MessageText)

	t.Run("resume after restart", func(t *testing.T) {
		resumed, err := m.Resume(ctx, analysisID, "alice")
		require.NoError(t, err)

		snap := resumed.Snapshot()
		assert.Equal(t, session.StateCompleted, snap.State)
		assert.Equal(t, analysisID.String(), snap.AnalysisID)
		require.Len(t, snap.Messages, 4)

		relay, err := resumed.SendFollowup(ctx, "and the sun?", "")
		require.NoError(t, err)
		collect(relay)
		resumed.Wait()

		history, err := svc.LoadHistory(ctx, analysisID)
		require.NoError(t, err)
		assert.Len(t, history, 6)

		reqs := adapter.Requests()
		last := reqs[len(reqs)-1]
		assert.Len(t, last.History, 4, "resumed follow-up carries the stored transcript")
	})

	t.Run("other owner cannot resume", func(t *testing.T) {
		_, err := m.Resume(ctx, analysisID, "mallory")
		assert.Error(t, err)
	})
}
