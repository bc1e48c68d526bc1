package session

import (
	"context"
	"fmt"

	"ai-factcheck-be/pkg/apperror"
	"ai-factcheck-be/pkg/llm"

	"github.com/google/uuid"
)

type Manager struct {
	deps  *Deps
	store *Store
}

func NewManager(deps Deps, store *Store) *Manager {
	deps.withDefaults()
	if store == nil {
		store = NewStore(DefaultTTL, DefaultCleanupInterval)
	}
	return &Manager{deps: &deps, store: store}
}

// Create opens an empty session owned by ownerID (may be empty).
func (m *Manager) Create(ownerID string) *Session {
	s := newSession(uuid.NewString(), ownerID, m.deps)
	m.store.Save(s)
	return s
}

// Get returns a live session. Sessions owned by someone else are reported
// as missing.
func (m *Manager) Get(id, ownerID string) (*Session, error) {
	s, ok := m.store.Get(id)
	if !ok || (s.ownerID != "" && s.ownerID != ownerID) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Resume rebuilds a session from a persisted analysis so follow-ups can
// continue after the process restarted.
func (m *Manager) Resume(ctx context.Context, analysisID uuid.UUID, ownerID string) (*Session, error) {
	if m.deps.Persister == nil {
		return nil, apperror.NewValidation("analysis_id", "persistence is not configured")
	}
	conv, err := m.deps.Persister.LoadConversation(ctx, analysisID)
	if err != nil {
		return nil, err
	}
	if conv.OwnerID != "" && conv.OwnerID != ownerID {
		return nil, fmt.Errorf("analysis %s: %w", analysisID, apperror.ErrNotFound)
	}

	adapter, err := m.deps.resolve(conv.ModelID)
	if err != nil {
		return nil, err
	}

	chat := &ChatHandle{
		AnalysisID: conv.AnalysisID,
		Adapter:    adapter,
		ModelID:    conv.ModelID,
		ReportType: conv.ReportType,
		Params:     llm.Params{}.WithDefaults(),
		System:     m.deps.Prompts.System(),
		History:    m.rebuildHistory(conv),
	}

	s := newSession(uuid.NewString(), ownerID, m.deps)
	s.messages = conv.Messages
	s.chat = chat
	s.state = StateCompleted
	m.store.Save(s)

	m.deps.Logger.Info(module, "Session resumed from storage", map[string]interface{}{
		"session_id": s.id, "analysis_id": analysisID.String(), "messages": len(conv.Messages),
	})
	return s, nil
}

// rebuildHistory turns stored display texts back into the provider-facing
// transcript: the initial prompt is re-rendered from its template and
// follow-up commands are re-expanded.
func (m *Manager) rebuildHistory(conv *Conversation) []llm.Message {
	history := make([]llm.Message, 0, len(conv.Messages))
	firstUser := true
	for _, msg := range conv.Messages {
		if msg.Sender == SenderAssistant {
			history = append(history, llm.Message{Role: llm.RoleAssistant, Content: msg.Text})
			continue
		}
		content := msg.Text
		if firstUser {
			firstUser = false
			if p, err := m.deps.Prompts.Initial(conv.ReportType, conv.Query, conv.ImageRef != ""); err == nil {
				content = p
			}
		} else if text, command := splitCommand(msg.Text); command != "" {
			if p, err := m.deps.Prompts.Followup(text, command); err == nil {
				content = p
			}
		}
		history = append(history, llm.Message{Role: llm.RoleUser, Content: content})
	}
	return history
}

func (m *Manager) Delete(id string) {
	if s, ok := m.store.Get(id); ok {
		s.cancel()
	}
	m.store.Delete(id)
}

// Shutdown cancels every in-flight generation and waits for the workers,
// bounded by ctx.
func (m *Manager) Shutdown(ctx context.Context) error {
	sessions := m.store.All()
	for _, s := range sessions {
		s.cancel()
	}
	done := make(chan struct{})
	go func() {
		for _, s := range sessions {
			s.Wait()
		}
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
