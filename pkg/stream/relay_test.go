package stream

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"ai-factcheck-be/pkg/apperror"
	"ai-factcheck-be/pkg/llm"
	"ai-factcheck-be/pkg/llm/scripted"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func collect(r *Relay) []Event {
	var out []Event
	for ev := range r.Events() {
		out = append(out, ev)
	}
	return out
}

func open(t *testing.T, a llm.Adapter) llm.DeltaStream {
	t.Helper()
	ds, err := a.Generate(context.Background(), llm.Request{Prompt: "p"})
	require.NoError(t, err)
	return ds
}

func TestRelay_NoEventAfterTerminal(t *testing.T) {
	r := NewRelay(DefaultOptions)

	assert.True(t, r.EmitDelta("a"))
	assert.True(t, r.Complete(context.Background(), "done"))
	assert.False(t, r.EmitDelta("late"))
	assert.False(t, r.Fail(errors.New("late")))
	assert.Equal(t, StateComplete, r.State())

	events := collect(r)
	require.Len(t, events, 2)
	assert.Equal(t, DeltaPayload{Delta: "a"}, events[0].Data)
	assert.Equal(t, EventComplete, events[1].Name)
}

func TestRelay_CompleteAfterCancelIsSuppressed(t *testing.T) {
	r := NewRelay(DefaultOptions)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, r.Complete(ctx, "done"))
	assert.Equal(t, StateStopped, r.State())
	assert.Empty(t, collect(r))
}

func TestRelay_FailPayload(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantType string
	}{
		{"adapter error", llm.NewAdapterError("gemini", 429, "quota exceeded", nil), "quota"},
		{"plain error", errors.New("boom"), "unknown"},
		{"deadline", context.DeadlineExceeded, "unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRelay(DefaultOptions)
			assert.True(t, r.Fail(tt.err))

			events := collect(r)
			require.Len(t, events, 1)
			assert.Equal(t, EventError, events[0].Name)
			payload := events[0].Data.(ErrorPayload)
			assert.Equal(t, tt.wantType, payload.Type)
			assert.NotEmpty(t, payload.Message)
			assert.Equal(t, StateError, r.State())
		})
	}
}

func TestRelay_SendTimeoutMarksPeerGone(t *testing.T) {
	r := NewRelay(Options{Buffer: 1, SendTimeout: 20 * time.Millisecond})

	assert.True(t, r.EmitDelta("fills buffer"))
	assert.False(t, r.EmitDelta("blocks"))
	assert.True(t, r.IsPeerGone())

	r.Close()
	assert.Equal(t, StatePeerClosed, r.State())
}

func TestPump(t *testing.T) {
	t.Run("exhausted", func(t *testing.T) {
		r := NewRelay(DefaultOptions)
		var seen []string
		res := r.Pump(context.Background(), "scripted", open(t, scripted.New("m", "Part1", "Part2", "Part3")), func(d llm.Delta) {
			seen = append(seen, d.Text)
		})
		r.Close()

		assert.Equal(t, Exhausted, res.Outcome)
		assert.Equal(t, 3, res.Deltas)
		assert.Equal(t, []string{"Part1", "Part2", "Part3"}, seen)
		assert.Len(t, collect(r), 3)
	})

	t.Run("adapter error", func(t *testing.T) {
		r := NewRelay(DefaultOptions)
		a := scripted.New("m").WithSteps(
			scripted.Step{Text: "x"},
			scripted.Step{Err: llm.NewAdapterError("scripted", 401, "bad key", nil)},
		)
		res := r.Pump(context.Background(), "scripted", open(t, a), func(llm.Delta) {})
		r.Close()

		assert.Equal(t, Failed, res.Outcome)
		ae, ok := llm.AsAdapterError(res.Err)
		require.True(t, ok)
		assert.Equal(t, llm.KindAuth, ae.Kind)
		collect(r)
	})

	t.Run("panic is contained", func(t *testing.T) {
		r := NewRelay(DefaultOptions)
		a := scripted.New("m").WithSteps(scripted.Step{Text: "x"}, scripted.Step{Panic: true})
		res := r.Pump(context.Background(), "scripted", open(t, a), func(llm.Delta) {})
		r.Close()

		assert.Equal(t, Failed, res.Outcome)
		assert.Equal(t, 1, res.Deltas)
		assert.Contains(t, res.Err.Error(), "panicked")
		collect(r)
	})

	t.Run("cancelled", func(t *testing.T) {
		r := NewRelay(DefaultOptions)
		ctx, cancel := context.WithCancel(context.Background())
		wait := make(chan struct{})
		a := scripted.New("m").WithSteps(scripted.Step{Text: "a"}, scripted.Step{Wait: wait, Text: "b"})
		ds, err := a.Generate(ctx, llm.Request{})
		require.NoError(t, err)

		res := r.Pump(ctx, "scripted", ds, func(llm.Delta) { cancel() })
		r.Close()

		assert.Equal(t, Cancelled, res.Outcome)
		assert.NoError(t, res.Err)
		assert.Len(t, collect(r), 1)
	})

	t.Run("peer gone", func(t *testing.T) {
		r := NewRelay(DefaultOptions)
		r.MarkPeerGone()
		res := r.Pump(context.Background(), "scripted", open(t, scripted.New("m", "a")), func(llm.Delta) {
			t.Fatal("no delta expected")
		})
		r.Close()

		assert.Equal(t, PeerGone, res.Outcome)
		assert.Equal(t, StatePeerClosed, r.State())
	})

	t.Run("deadline is a failure", func(t *testing.T) {
		r := NewRelay(DefaultOptions)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		a := scripted.New("m").WithSteps(scripted.Step{Wait: make(chan struct{})})
		ds, err := a.Generate(ctx, llm.Request{})
		require.NoError(t, err)

		res := r.Pump(ctx, "scripted", ds, func(llm.Delta) {})
		r.Close()

		assert.Equal(t, Failed, res.Outcome)
		assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	})
}

func TestSSESink_Framing(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSSESink(bufio.NewWriter(&buf))

	require.NoError(t, sink.Send(Event{Data: DeltaPayload{Delta: "Part1"}}))
	require.NoError(t, sink.Send(Event{Name: EventAnalysisID, Data: AnalysisIDPayload{AnalysisID: "abc"}}))
	require.NoError(t, sink.Send(Event{Name: EventComplete, Data: CompletePayload{Message: "done"}}))

	want := "data: {\"delta\":\"Part1\"}\n\n" +
		"event: analysis_id\ndata: {\"analysis_id\":\"abc\"}\n\n" +
		"event: complete\ndata: {\"message\":\"done\"}\n\n"
	assert.Equal(t, want, buf.String())
}

type failingSink struct{ sends int }

func (s *failingSink) Send(Event) error {
	s.sends++
	return errors.New("broken pipe")
}

func (s *failingSink) Ping() error { return nil }

func TestDrain_WriteFailureMarksPeerGone(t *testing.T) {
	r := NewRelay(DefaultOptions)
	sink := &failingSink{}

	done := make(chan error, 1)
	go func() { done <- Drain(context.Background(), r, sink, 0) }()

	r.EmitDelta("a")
	err := <-done
	assert.ErrorIs(t, err, apperror.ErrPeerGone)
	assert.True(t, r.IsPeerGone())
	assert.False(t, r.EmitDelta("b"))
	r.Close()
	assert.Equal(t, 1, sink.sends)
}

func TestDrain_CopiesUntilClosed(t *testing.T) {
	var buf bytes.Buffer
	r := NewRelay(DefaultOptions)

	done := make(chan error, 1)
	go func() { done <- Drain(context.Background(), r, NewSSESink(bufio.NewWriter(&buf)), time.Hour) }()

	r.EmitDelta("x")
	r.Complete(context.Background(), "ok")
	require.NoError(t, <-done)
	assert.Contains(t, buf.String(), ": ping\n\n")
	assert.Contains(t, buf.String(), "event: complete")
}
