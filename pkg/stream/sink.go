package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ai-factcheck-be/pkg/apperror"

	"github.com/gofiber/websocket/v2"
)

// Sink writes events to one client connection.
type Sink interface {
	Send(ev Event) error
	// Ping keeps an idle connection alive without producing an event.
	Ping() error
}

// SSESink frames events as text/event-stream onto a buffered writer, the
// shape handed out by fasthttp's SetBodyStreamWriter.
type SSESink struct {
	w *bufio.Writer
}

func NewSSESink(w *bufio.Writer) *SSESink {
	return &SSESink{w: w}
}

func (s *SSESink) Send(ev Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("encode %q event: %w", ev.Name, err)
	}
	if ev.Name != "" {
		if _, err := fmt.Fprintf(s.w, "event: %s\n", ev.Name); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	return s.w.Flush()
}

func (s *SSESink) Ping() error {
	if _, err := s.w.WriteString(": ping\n\n"); err != nil {
		return err
	}
	return s.w.Flush()
}

// WSFrame is the JSON frame carried over WebSocket.
type WSFrame struct {
	Event string `json:"event,omitempty"`
	Data  any    `json:"data"`
}

// WSSink writes events as JSON text frames. Every write carries a deadline so
// a stalled client cannot hold the producer.
type WSSink struct {
	conn          *websocket.Conn
	writeDeadline time.Duration
}

func NewWSSink(conn *websocket.Conn, writeDeadline time.Duration) *WSSink {
	if writeDeadline <= 0 {
		writeDeadline = DefaultOptions.SendTimeout
	}
	return &WSSink{conn: conn, writeDeadline: writeDeadline}
}

func (s *WSSink) Send(ev Event) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeDeadline)); err != nil {
		return err
	}
	return s.conn.WriteJSON(WSFrame{Event: ev.Name, Data: ev.Data})
}

func (s *WSSink) Ping() error {
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeDeadline))
}

// Drain copies relay events to sink until the relay closes. A write failure
// or ctx cancellation marks the peer gone so the producer stops, and the
// returned error wraps apperror.ErrPeerGone. A positive heartbeat pings the
// sink during silences.
func Drain(ctx context.Context, r *Relay, sink Sink, heartbeat time.Duration) error {
	gone := func(err error) error {
		r.MarkPeerGone()
		return fmt.Errorf("%w: %v", apperror.ErrPeerGone, err)
	}

	if err := sink.Ping(); err != nil {
		return gone(err)
	}

	var tick <-chan time.Time
	if heartbeat > 0 {
		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case ev, ok := <-r.Events():
			if !ok {
				return nil
			}
			if err := sink.Send(ev); err != nil {
				return gone(err)
			}
		case <-tick:
			if err := sink.Ping(); err != nil {
				return gone(err)
			}
		case <-ctx.Done():
			return gone(ctx.Err())
		}
	}
}
