// Package session drives one analysis conversation: the initial report,
// follow-ups, stop and restart.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"ai-factcheck-be/internal/pkg/logger"
	"ai-factcheck-be/pkg/apperror"
	"ai-factcheck-be/pkg/llm"
	"ai-factcheck-be/pkg/prompt"
	"ai-factcheck-be/pkg/stream"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const module = "SESSION"

// Deps are shared by every session of a Manager.
type Deps struct {
	Adapters  AdapterResolver
	Prompts   *prompt.Resolver
	Persister Persister // nil runs every conversation statelessly
	Logger    logger.ILogger
	Tracer    trace.Tracer

	Relay stream.Options
	// GenerationTimeout bounds one generation. Zero means no deadline.
	GenerationTimeout time.Duration
	// SettleTimeout bounds how long Restart waits for a stopped generation.
	SettleTimeout time.Duration
	// PersistTimeout bounds the durability write after a turn completes.
	PersistTimeout time.Duration
}

func (d *Deps) withDefaults() {
	if d.Prompts == nil {
		d.Prompts = prompt.NewResolver()
	}
	if d.Logger == nil {
		d.Logger = logger.NewNopLogger()
	}
	if d.Tracer == nil {
		d.Tracer = otel.Tracer("ai-factcheck-be/session")
	}
	if d.SettleTimeout <= 0 {
		d.SettleTimeout = 5 * time.Second
	}
	if d.PersistTimeout <= 0 {
		d.PersistTimeout = 10 * time.Second
	}
}

type generation struct {
	id            string
	kind          TurnKind
	ctx           context.Context
	cancel        context.CancelFunc
	relay         *stream.Relay
	placeholderID string
	userText      string
	req           llm.Request
	chat          *ChatHandle
	done          chan struct{}

	// guarded by Session.mu
	committed bool
	text      strings.Builder
	citations []llm.Source
}

type Session struct {
	id      string
	ownerID string
	deps    *Deps

	mu         sync.Mutex
	state      State
	messages   []DisplayMessage
	gen        *generation
	last       *generation
	checkpoint *Checkpoint
	chat       *ChatHandle

	wg sync.WaitGroup
}

func newSession(id, ownerID string, deps *Deps) *Session {
	return &Session{
		id:      id,
		ownerID: ownerID,
		deps:    deps,
		state:   StateIdle,
	}
}

func (s *Session) ID() string      { return s.id }
func (s *Session) OwnerID() string { return s.ownerID }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start begins the initial turn of a new analysis and returns the relay the
// caller must drain. Validation failures are returned before anything changes.
func (s *Session) Start(ctx context.Context, in StartInput) (*stream.Relay, error) {
	in.Query = strings.TrimSpace(in.Query)
	if in.Query == "" && in.Image == nil {
		return nil, apperror.NewValidation("query", "query text or image is required")
	}
	rt, err := prompt.ParseReportType(in.ReportType)
	if err != nil {
		return nil, err
	}
	in.ReportType = string(rt)
	userPrompt, err := s.deps.Prompts.Initial(rt, in.Query, in.Image != nil)
	if err != nil {
		return nil, err
	}
	adapter, err := s.deps.resolve(in.ModelID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != nil {
		return nil, ErrGenerationInFlight
	}

	params := in.Params.WithDefaults()
	chat := &ChatHandle{
		Adapter:    adapter,
		ModelID:    in.ModelID,
		ReportType: rt,
		Params:     params,
		System:     s.deps.Prompts.System(),
	}
	req := llm.Request{
		System: chat.System,
		Prompt: userPrompt,
		Image:  in.Image,
		Params: params,
	}
	cp := &Checkpoint{
		Kind:     TurnInitial,
		Input:    in,
		UserText: initialDisplayText(in),
		Request:  req,
	}

	s.chat = chat
	s.checkpoint = cp
	return s.launchLocked(ctx, TurnInitial, cp.UserText, req, chat), nil
}

// SendFollowup continues the conversation of the last started analysis.
func (s *Session) SendFollowup(ctx context.Context, text, command string) (*stream.Relay, error) {
	userPrompt, err := s.deps.Prompts.Followup(text, command)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chat == nil {
		return nil, ErrNoConversation
	}
	if s.gen != nil {
		return nil, ErrGenerationInFlight
	}

	chat := s.chat
	transcript := copyHistory(chat.History)
	req := llm.Request{
		System:  chat.System,
		Prompt:  userPrompt,
		History: copyHistory(transcript),
		Params:  chat.Params,
	}
	cp := &Checkpoint{
		Kind:         TurnFollowup,
		FollowupText: strings.TrimSpace(text),
		Command:      strings.TrimSpace(command),
		Transcript:   transcript,
		Chat:         chat,
		UserText:     followupDisplayText(text, command),
		Request:      req,
	}

	s.checkpoint = cp
	return s.launchLocked(ctx, TurnFollowup, cp.UserText, req, chat), nil
}

// Stop cancels the in-flight generation, keeping its partial text with the
// stopped marker. It reports whether anything was stopped; calling it again
// is a no-op.
func (s *Session) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	gen := s.gen
	if gen == nil || gen.committed {
		return false
	}
	gen.cancel()
	s.markStoppedLocked(gen)
	return true
}

// Restart regenerates the last turn from its checkpoint. An in-flight
// generation is stopped and awaited first.
func (s *Session) Restart(ctx context.Context) (*stream.Relay, error) {
	s.mu.Lock()
	cp := s.checkpoint
	if cp == nil {
		s.mu.Unlock()
		return nil, ErrNoCheckpoint
	}
	if s.gen != nil && !s.gen.committed {
		s.gen.cancel()
		s.markStoppedLocked(s.gen)
	}
	settling := s.last
	s.mu.Unlock()

	if settling != nil {
		if err := s.await(ctx, settling); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != nil {
		return nil, ErrGenerationInFlight
	}
	if s.checkpoint != cp {
		// Another turn started while we were waiting.
		return nil, ErrGenerationInFlight
	}

	s.removeLastTurnLocked()

	req := cp.Request
	switch cp.Kind {
	case TurnInitial:
		prev := s.chat
		chat := &ChatHandle{
			Adapter:    prev.Adapter,
			ModelID:    prev.ModelID,
			ReportType: prev.ReportType,
			Params:     prev.Params,
			System:     prev.System,
		}
		s.chat = chat
		return s.launchLocked(ctx, TurnInitial, cp.UserText, req, chat), nil
	default:
		chat := cp.Chat
		chat.History = copyHistory(cp.Transcript)
		req.History = copyHistory(cp.Transcript)
		s.chat = chat
		return s.launchLocked(ctx, TurnFollowup, cp.UserText, req, chat), nil
	}
}

// Snapshot copies the client-visible state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:         s.id,
		State:      s.state,
		InFlight:   s.gen != nil,
		CanRestart: s.checkpoint != nil,
		Messages:   make([]DisplayMessage, len(s.messages)),
	}
	for i, m := range s.messages {
		m.Citations = append([]llm.Source(nil), m.Citations...)
		snap.Messages[i] = m
	}
	if s.chat != nil {
		snap.ModelID = s.chat.ModelID
		snap.ReportType = string(s.chat.ReportType)
		if s.chat.AnalysisID != uuid.Nil {
			snap.AnalysisID = s.chat.AnalysisID.String()
		}
	}
	return snap
}

// Wait blocks until every generation started by this session has settled.
func (s *Session) Wait() {
	s.wg.Wait()
}

// resolve looks up the adapter for modelID. Unknown models are validation
// errors.
func (d *Deps) resolve(modelID string) (llm.Adapter, error) {
	if strings.TrimSpace(modelID) == "" {
		return nil, apperror.NewValidation("model_id", "model id is required")
	}
	if d.Adapters == nil {
		return nil, apperror.NewValidation("model_id", "no model backends are configured")
	}
	adapter, err := d.Adapters.Resolve(modelID)
	if err != nil {
		if errors.Is(err, llm.ErrUnknownModel) {
			return nil, apperror.NewValidation("model_id", err.Error())
		}
		return nil, err
	}
	return adapter, nil
}

func (s *Session) generationContext() (context.Context, context.CancelFunc) {
	if s.deps.GenerationTimeout > 0 {
		return context.WithTimeout(context.Background(), s.deps.GenerationTimeout)
	}
	return context.WithCancel(context.Background())
}

// launchLocked appends the user message and the loading placeholder, then
// hands the turn to a worker goroutine. The generation context is detached
// from the request so a dropped request does not outlive its own handling.
func (s *Session) launchLocked(reqCtx context.Context, kind TurnKind, userText string, req llm.Request, chat *ChatHandle) *stream.Relay {
	now := time.Now()
	s.messages = append(s.messages, DisplayMessage{
		ID:        uuid.NewString(),
		Sender:    SenderUser,
		Text:      userText,
		CreatedAt: now,
	})
	placeholder := DisplayMessage{
		ID:        uuid.NewString(),
		Sender:    SenderAssistant,
		ModelID:   chat.ModelID,
		Loading:   true,
		CreatedAt: now,
	}
	s.messages = append(s.messages, placeholder)

	ctx, cancel := s.generationContext()
	ctx = trace.ContextWithSpanContext(ctx, trace.SpanContextFromContext(reqCtx))
	gen := &generation{
		id:            uuid.NewString(),
		kind:          kind,
		ctx:           ctx,
		cancel:        cancel,
		relay:         stream.NewRelay(s.deps.Relay),
		placeholderID: placeholder.ID,
		userText:      userText,
		req:           req,
		chat:          chat,
		done:          make(chan struct{}),
	}
	s.gen = gen
	s.last = gen
	s.state = StateStarting

	s.wg.Add(1)
	go s.run(gen)
	return gen.relay
}

func (s *Session) run(gen *generation) {
	defer s.wg.Done()
	defer close(gen.done)
	defer gen.cancel()
	defer func() {
		if p := recover(); p != nil {
			s.fail(gen, &llm.AdapterError{
				Kind:     llm.KindUnknown,
				Provider: gen.chat.Adapter.Provider(),
				Message:  fmt.Sprintf("generation panicked: %v", p),
			})
		}
	}()

	ctx, span := s.deps.Tracer.Start(gen.ctx, "session.generate",
		trace.WithAttributes(
			attribute.String("session.id", s.id),
			attribute.String("generation.id", gen.id),
			attribute.String("turn.kind", string(gen.kind)),
			attribute.String("model.id", gen.chat.ModelID),
			attribute.String("model.provider", gen.chat.Adapter.Provider()),
		))
	defer span.End()

	s.deps.Logger.Info(module, "Generation started", map[string]interface{}{
		"session_id": s.id, "generation_id": gen.id, "kind": gen.kind, "model_id": gen.chat.ModelID,
	})

	ds, err := gen.chat.Adapter.Generate(ctx, gen.req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.settleStopped(gen)
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.fail(gen, err)
		return
	}

	res := gen.relay.Pump(ctx, gen.chat.Adapter.Provider(), ds, func(d llm.Delta) {
		s.onDelta(gen, d)
	})
	span.SetAttributes(
		attribute.String("generation.outcome", res.Outcome.String()),
		attribute.Int("generation.deltas", res.Deltas),
	)

	switch res.Outcome {
	case stream.Exhausted:
		s.finish(gen)
	case stream.Failed:
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
		s.fail(gen, res.Err)
	case stream.Cancelled:
		if res.Err != nil {
			s.deps.Logger.Warn(module, "Adapter produced a delta after stop", map[string]interface{}{
				"session_id": s.id, "generation_id": gen.id, "error": res.Err.Error(),
			})
		}
		s.settleStopped(gen)
	case stream.PeerGone:
		s.deps.Logger.Info(module, "Client went away, stopping generation", map[string]interface{}{
			"session_id": s.id, "generation_id": gen.id,
		})
		s.settleStopped(gen)
	}
}

func (s *Session) onDelta(gen *generation, d llm.Delta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || gen.committed {
		return
	}
	gen.text.WriteString(d.Text)
	gen.citations = mergeCitations(gen.citations, d.Citations)
	s.state = StateStreaming
	if i := s.indexLocked(gen.placeholderID); i >= 0 {
		s.messages[i].Text = gen.text.String()
		s.messages[i].Citations = append([]llm.Source(nil), gen.citations...)
	}
}

// finish commits a naturally completed turn, persists it and emits the
// closing events.
func (s *Session) finish(gen *generation) {
	s.mu.Lock()
	if s.gen != gen || errors.Is(gen.ctx.Err(), context.Canceled) {
		s.mu.Unlock()
		gen.relay.Close()
		return
	}
	gen.committed = true
	text := gen.text.String()
	citations := append([]llm.Source(nil), gen.citations...)
	if i := s.indexLocked(gen.placeholderID); i >= 0 {
		s.messages[i].Text = text
		s.messages[i].Citations = citations
		s.messages[i].Loading = false
	}
	gen.chat.History = append(gen.chat.History,
		llm.Message{Role: llm.RoleUser, Content: gen.req.Prompt},
		llm.Message{Role: llm.RoleAssistant, Content: text},
	)
	analysisID := gen.chat.AnalysisID
	var input StartInput
	if s.checkpoint != nil {
		input = s.checkpoint.Input
	}
	s.mu.Unlock()

	turn := Turn{
		UserText:      gen.userText,
		AssistantText: text,
		ModelID:       gen.chat.ModelID,
		Citations:     citations,
	}
	newID := s.persist(gen, turn, input, analysisID)

	s.mu.Lock()
	if newID != uuid.Nil && s.chat == gen.chat {
		gen.chat.AnalysisID = newID
	}
	if s.gen == gen {
		s.gen = nil
		s.state = StateCompleted
	}
	s.mu.Unlock()

	if newID != uuid.Nil {
		gen.relay.EmitControl(stream.EventAnalysisID, stream.AnalysisIDPayload{AnalysisID: newID.String()})
	}
	if !gen.relay.Complete(gen.ctx, CompleteMessage) {
		s.deps.Logger.Warn(module, "Complete event was not delivered", map[string]interface{}{
			"session_id": s.id, "generation_id": gen.id, "relay_state": gen.relay.State().String(),
		})
	}
	s.deps.Logger.Info(module, "Generation completed", map[string]interface{}{
		"session_id": s.id, "generation_id": gen.id, "chars": len(text),
	})
}

// persist writes the turn and returns the id of a newly created analysis.
// Failures are logged and never reach the stream.
func (s *Session) persist(gen *generation, turn Turn, input StartInput, analysisID uuid.UUID) uuid.UUID {
	if s.deps.Persister == nil {
		return uuid.Nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(gen.ctx), s.deps.PersistTimeout)
	defer cancel()

	switch gen.kind {
	case TurnInitial:
		initial := InitialTurn{
			Turn:       turn,
			Query:      input.Query,
			ReportType: gen.chat.ReportType,
			OwnerID:    s.ownerID,
		}
		if input.Image != nil {
			initial.ImageRef = input.Image.Name
		}
		id, err := s.deps.Persister.PersistInitialTurn(ctx, initial)
		if err != nil {
			s.deps.Logger.Error(module, "Failed to persist initial turn, continuing statelessly", map[string]interface{}{
				"session_id": s.id, "generation_id": gen.id, "error": err.Error(),
			})
			return uuid.Nil
		}
		return id
	default:
		if analysisID == uuid.Nil {
			return uuid.Nil
		}
		if err := s.deps.Persister.AppendTurn(ctx, analysisID, turn); err != nil {
			s.deps.Logger.Error(module, "Failed to persist follow-up turn", map[string]interface{}{
				"session_id": s.id, "analysis_id": analysisID.String(), "error": err.Error(),
			})
		}
		return uuid.Nil
	}
}

func (s *Session) fail(gen *generation, err error) {
	s.mu.Lock()
	if s.gen != gen || gen.committed {
		s.mu.Unlock()
		gen.relay.Close()
		return
	}
	if i := s.indexLocked(gen.placeholderID); i >= 0 {
		s.messages[i].Text = ErrorMarkerPrefix + errorMessage(err)
		s.messages[i].IsError = true
		s.messages[i].Loading = false
	}
	s.state = StateFailed
	s.gen = nil
	s.mu.Unlock()

	s.deps.Logger.Error(module, "Generation failed", map[string]interface{}{
		"session_id": s.id, "generation_id": gen.id, "error": err.Error(),
	})
	gen.relay.Fail(err)
}

// settleStopped finalizes a generation that ended without completing. When
// Stop already ran this only closes the relay.
func (s *Session) settleStopped(gen *generation) {
	s.mu.Lock()
	if s.gen == gen && !gen.committed {
		gen.cancel()
		s.markStoppedLocked(gen)
	}
	s.mu.Unlock()
	gen.relay.Close()
}

func (s *Session) markStoppedLocked(gen *generation) {
	if i := s.indexLocked(gen.placeholderID); i >= 0 {
		partial := gen.text.String()
		if partial == "" {
			s.messages[i].Text = StoppedMarker
		} else {
			s.messages[i].Text = partial + "\n\n" + StoppedMarker
		}
		s.messages[i].Loading = false
		s.messages[i].Stopped = true
	}
	s.state = StateStopped
	s.gen = nil
}

func (s *Session) await(ctx context.Context, gen *generation) error {
	timer := time.NewTimer(s.deps.SettleTimeout)
	defer timer.Stop()
	select {
	case <-gen.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("restart: generation %s: %w", gen.id, llm.ErrAdapterIgnoredStop)
	}
}

// removeLastTurnLocked drops the last assistant message and the user message
// that triggered it.
func (s *Session) removeLastTurnLocked() {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Sender != SenderAssistant {
			continue
		}
		end := i
		start := i
		if i > 0 && s.messages[i-1].Sender == SenderUser {
			start = i - 1
		}
		s.messages = append(s.messages[:start], s.messages[end+1:]...)
		return
	}
}

func (s *Session) indexLocked(id string) int {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

// cancel stops the in-flight generation without touching the message list.
// Used on eviction and shutdown.
func (s *Session) cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != nil && !s.gen.committed {
		s.gen.cancel()
		s.markStoppedLocked(s.gen)
	}
}

func errorMessage(err error) string {
	if ae, ok := llm.AsAdapterError(err); ok && ae.Message != "" {
		return ae.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "generation timed out"
	}
	return err.Error()
}

func initialDisplayText(in StartInput) string {
	if in.Query != "" {
		return in.Query
	}
	if in.Image != nil && in.Image.Name != "" {
		return "[Image: " + in.Image.Name + "]"
	}
	return "[Image]"
}

func followupDisplayText(text, command string) string {
	text = strings.TrimSpace(text)
	command = strings.TrimSpace(command)
	if command == "" {
		return text
	}
	if !strings.HasPrefix(command, "/") {
		command = "/" + command
	}
	if text == "" {
		return command
	}
	return command + " " + text
}

// splitCommand reverses followupDisplayText.
func splitCommand(display string) (text, command string) {
	if !strings.HasPrefix(display, "/") {
		return display, ""
	}
	command, text, _ = strings.Cut(display, " ")
	return strings.TrimSpace(text), command
}

func copyHistory(h []llm.Message) []llm.Message {
	if len(h) == 0 {
		return nil
	}
	out := make([]llm.Message, len(h))
	copy(out, h)
	return out
}

func mergeCitations(existing, incoming []llm.Source) []llm.Source {
	for _, c := range incoming {
		dup := false
		for _, e := range existing {
			if e.URI == c.URI {
				dup = true
				break
			}
		}
		if !dup {
			existing = append(existing, c)
		}
	}
	return existing
}
