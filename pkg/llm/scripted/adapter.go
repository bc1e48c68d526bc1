// Package scripted provides a deterministic in-process adapter. It backs the
// demo model and the engine tests.
package scripted

import (
	"context"
	"sync"
	"time"

	"ai-factcheck-be/pkg/llm"
)

const ProviderName = "scripted"

// Step is one production step of the scripted stream.
type Step struct {
	Text      string
	Citations []llm.Source

	// Wait, when set, blocks the step until it is closed or ctx is done.
	Wait <-chan struct{}
	// Err ends the stream with this error instead of producing a delta.
	Err error
	// Panic makes the step panic, simulating a broken vendor SDK.
	Panic bool
}

type Adapter struct {
	model   string
	delay   time.Duration
	openErr error

	mu       sync.Mutex
	steps    []Step
	requests []llm.Request
}

var _ llm.Adapter = (*Adapter)(nil)

// New returns an adapter that streams texts one delta per step.
func New(model string, texts ...string) *Adapter {
	steps := make([]Step, len(texts))
	for i, t := range texts {
		steps[i] = Step{Text: t}
	}
	return &Adapter{model: model, steps: steps}
}

// WithSteps replaces the script.
func (a *Adapter) WithSteps(steps ...Step) *Adapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.steps = steps
	return a
}

// WithDelay sleeps between steps.
func (a *Adapter) WithDelay(d time.Duration) *Adapter {
	a.delay = d
	return a
}

// FailOpen makes Generate return err without opening a stream.
func (a *Adapter) FailOpen(err error) *Adapter {
	a.openErr = err
	return a
}

func (a *Adapter) ModelID() string  { return a.model }
func (a *Adapter) Provider() string { return ProviderName }

// Requests returns every request Generate received, oldest first.
func (a *Adapter) Requests() []llm.Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]llm.Request, len(a.requests))
	copy(out, a.requests)
	return out
}

func (a *Adapter) Generate(ctx context.Context, req llm.Request) (llm.DeltaStream, error) {
	a.mu.Lock()
	a.requests = append(a.requests, req)
	steps := make([]Step, len(a.steps))
	copy(steps, a.steps)
	a.mu.Unlock()

	if a.openErr != nil {
		return nil, a.openErr
	}
	return &stream{ctx: ctx, steps: steps, delay: a.delay}, nil
}

type stream struct {
	ctx   context.Context
	steps []Step
	delay time.Duration

	pos     int
	current llm.Delta
	err     error
	closed  bool
}

func (s *stream) Next() bool {
	if s.closed || s.err != nil || s.ctx.Err() != nil || s.pos >= len(s.steps) {
		return false
	}
	step := s.steps[s.pos]
	s.pos++

	if step.Wait != nil {
		select {
		case <-step.Wait:
		case <-s.ctx.Done():
			return false
		}
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-s.ctx.Done():
			return false
		}
	}
	if step.Panic {
		panic("scripted: step panicked")
	}
	if step.Err != nil {
		s.err = step.Err
		return false
	}
	s.current = llm.Delta{Text: step.Text, Citations: step.Citations}
	return true
}

func (s *stream) Current() llm.Delta { return s.current }
func (s *stream) Err() error         { return s.err }

func (s *stream) Close() error {
	s.closed = true
	return nil
}
