// Package stream frames model output and control signals into one ordered
// event sequence for a single outbound channel.
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"ai-factcheck-be/pkg/llm"
)

const (
	EventAnalysisID = "analysis_id"
	EventComplete   = "complete"
	EventError      = "error"
)

// Event is one frame on the wire. An empty Name is an unnamed data event.
type Event struct {
	Name string
	Data any
}

type DeltaPayload struct {
	Delta string `json:"delta"`
}

type AnalysisIDPayload struct {
	AnalysisID string `json:"analysis_id"`
}

type CompletePayload struct {
	Message string `json:"message"`
}

type ErrorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type State int32

const (
	StateOpen State = iota
	StateComplete
	StateError
	StatePeerClosed
	// StateStopped is reached when the generation was cancelled by the user.
	// The channel closes without a terminal event.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateComplete:
		return "COMPLETE"
	case StateError:
		return "ERROR"
	case StatePeerClosed:
		return "PEER_CLOSED"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

func (s State) Terminal() bool {
	return s != StateOpen
}

type Options struct {
	// Buffer is the number of events queued ahead of a slow consumer.
	Buffer int
	// SendTimeout bounds how long an emit waits on a stalled consumer
	// before the peer is considered gone.
	SendTimeout time.Duration
}

var DefaultOptions = Options{
	Buffer:      64,
	SendTimeout: 30 * time.Second,
}

// Relay owns the event channel of one generation. Emits come from a single
// producer goroutine; the consumer side only reads Events and may call
// MarkPeerGone.
type Relay struct {
	events      chan Event
	gone        chan struct{}
	goneOnce    sync.Once
	sendTimeout time.Duration

	mu    sync.Mutex
	state atomic.Int32
}

func NewRelay(opts Options) *Relay {
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultOptions.Buffer
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultOptions.SendTimeout
	}
	return &Relay{
		events:      make(chan Event, opts.Buffer),
		gone:        make(chan struct{}),
		sendTimeout: opts.SendTimeout,
	}
}

// Events is the receive side drained by exactly one sink.
func (r *Relay) Events() <-chan Event {
	return r.events
}

func (r *Relay) State() State {
	return State(r.state.Load())
}

func (r *Relay) IsPeerGone() bool {
	select {
	case <-r.gone:
		return true
	default:
		return false
	}
}

// MarkPeerGone records that nobody is reading anymore. Safe to call from
// any goroutine, any number of times.
func (r *Relay) MarkPeerGone() {
	r.goneOnce.Do(func() { close(r.gone) })
}

// EmitDelta sends an unnamed data event. It reports false when the event was
// not delivered because the relay is terminal or the peer is gone.
func (r *Relay) EmitDelta(text string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.send(Event{Data: DeltaPayload{Delta: text}})
}

// EmitControl sends a named event. Terminal names close the relay.
func (r *Relay) EmitControl(name string, payload any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ok := r.send(Event{Name: name, Data: payload})
	switch name {
	case EventComplete:
		r.closeLocked(StateComplete)
	case EventError:
		r.closeLocked(StateError)
	}
	return ok
}

// Complete emits the terminal complete event unless ctx was cancelled
// first. It reports whether the event was emitted.
func (r *Relay) Complete(ctx context.Context, message string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if errors.Is(ctx.Err(), context.Canceled) {
		r.closeLocked(StateStopped)
		return false
	}
	ok := r.send(Event{Name: EventComplete, Data: CompletePayload{Message: message}})
	r.closeLocked(StateComplete)
	return ok
}

// Fail converts err into the single terminal error event and closes.
func (r *Relay) Fail(err error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ok := r.send(Event{Name: EventError, Data: ErrorPayloadFrom(err)})
	r.closeLocked(StateError)
	return ok
}

// Close ends the channel without a terminal event.
func (r *Relay) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.IsPeerGone() {
		r.closeLocked(StatePeerClosed)
		return
	}
	r.closeLocked(StateStopped)
}

func (r *Relay) send(ev Event) bool {
	if r.State().Terminal() || r.IsPeerGone() {
		return false
	}

	timer := time.NewTimer(r.sendTimeout)
	defer timer.Stop()

	select {
	case r.events <- ev:
		return true
	case <-r.gone:
		return false
	case <-timer.C:
		r.MarkPeerGone()
		return false
	}
}

func (r *Relay) closeLocked(s State) {
	if r.State().Terminal() {
		return
	}
	if r.IsPeerGone() && s != StatePeerClosed {
		s = StatePeerClosed
	}
	r.state.Store(int32(s))
	close(r.events)
}

// ErrorPayloadFrom builds the wire payload of an error event.
func ErrorPayloadFrom(err error) ErrorPayload {
	if ae, ok := llm.AsAdapterError(err); ok {
		details := map[string]any{"provider": ae.Provider}
		if ae.Status != 0 {
			details["status"] = ae.Status
		}
		return ErrorPayload{Type: string(ae.Kind), Message: ae.Message, Details: details}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorPayload{Type: string(llm.KindUnavailable), Message: "generation timed out"}
	}
	return ErrorPayload{Type: string(llm.KindUnknown), Message: err.Error()}
}

// Outcome is how a pumped delta stream ended.
type Outcome int

const (
	Exhausted Outcome = iota
	Failed
	Cancelled
	PeerGone
)

func (o Outcome) String() string {
	switch o {
	case Exhausted:
		return "exhausted"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	case PeerGone:
		return "peer_gone"
	default:
		return "unknown"
	}
}

type Result struct {
	Outcome Outcome
	// Err is the adapter failure for Failed, or llm.ErrAdapterIgnoredStop
	// when a delta arrived after cancellation.
	Err    error
	Deltas int
}

// Pump pulls ds until it ends, forwarding every delta to onDelta and then to
// the peer. Cancellation and the peer are checked on every delta boundary.
// Panics raised by the adapter are recovered into a Failed result.
func (r *Relay) Pump(ctx context.Context, provider string, ds llm.DeltaStream, onDelta func(llm.Delta)) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = Result{
				Outcome: Failed,
				Deltas:  res.Deltas,
				Err: &llm.AdapterError{
					Kind:     llm.KindUnknown,
					Provider: provider,
					Message:  fmt.Sprintf("adapter panicked: %v", p),
				},
			}
		}
	}()
	defer ds.Close()

	for {
		if err := ctx.Err(); err != nil {
			return interrupted(res, err)
		}
		if r.IsPeerGone() {
			res.Outcome = PeerGone
			return res
		}
		if !ds.Next() {
			break
		}

		d := ds.Current()
		if err := ctx.Err(); err != nil {
			res = interrupted(res, err)
			if res.Outcome == Cancelled {
				res.Err = llm.ErrAdapterIgnoredStop
			}
			return res
		}
		res.Deltas++
		onDelta(d)
		if d.Text == "" {
			continue
		}
		if !r.EmitDelta(d.Text) {
			res.Outcome = PeerGone
			return res
		}
	}

	if err := ctx.Err(); err != nil {
		return interrupted(res, err)
	}
	if err := ds.Err(); err != nil {
		res.Outcome = Failed
		res.Err = err
		return res
	}
	res.Outcome = Exhausted
	return res
}

// interrupted maps a done context to an outcome: a user stop is a
// cancellation, an expired deadline is a failure.
func interrupted(res Result, err error) Result {
	if errors.Is(err, context.DeadlineExceeded) {
		res.Outcome = Failed
		res.Err = err
		return res
	}
	res.Outcome = Cancelled
	return res
}
