package controller

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"ai-factcheck-be/internal/dto"
	"ai-factcheck-be/internal/pkg/serverutils"
	"ai-factcheck-be/pkg/apperror"
	"ai-factcheck-be/pkg/session"
	"ai-factcheck-be/pkg/stream"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// socketCommand is what the client may send once a stream is running.
type socketCommand struct {
	Op string `json:"op"`
}

func upgradeOnly(ctx *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(ctx) {
		return ctx.Next()
	}
	return fiber.ErrUpgradeRequired
}

// socketHandler serves GET /sessions/:id/ws?op=start|followup|restart. The
// first client frame carries the request body for start and followup; later
// frames may send {"op":"stop"}.
func (c *analysisController) socketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		sink := stream.NewWSSink(conn, c.settings.WriteTimeout)
		userId, _ := conn.Locals("user_id").(string)

		s, err := c.manager.Get(conn.Params("id"), userId)
		if err != nil {
			c.rejectSocket(sink, err)
			closeSocket(conn)
			return
		}

		relay, err := c.openSocketStream(conn, s)
		if err != nil {
			c.rejectSocket(sink, err)
			closeSocket(conn)
			return
		}

		done := make(chan struct{})
		go c.readSocketCommands(conn, s, relay, done)

		if err := stream.Drain(context.Background(), relay, sink, c.settings.Heartbeat); err != nil {
			c.logger.Info("WS", "Client left the stream", map[string]interface{}{
				"session_id": s.ID(),
				"error":      err.Error(),
			})
		}

		// The connection goes back to a pool once this handler returns, so
		// the reader must be finished with it first.
		closeSocket(conn)
		<-done
	})
}

func closeSocket(conn *websocket.Conn) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	_ = conn.Close()
}

func (c *analysisController) openSocketStream(conn *websocket.Conn, s *session.Session) (*stream.Relay, error) {
	ctx := context.Background()

	switch conn.Query("op", "start") {
	case "start":
		var req dto.StartAnalysisRequest
		if err := conn.ReadJSON(&req); err != nil {
			return nil, apperror.NewValidation("", "malformed start request")
		}
		if err := serverutils.ValidateRequest(req); err != nil {
			return nil, err
		}
		return s.Start(ctx, toStartInput(&req))
	case "followup":
		var req dto.FollowupRequest
		if err := conn.ReadJSON(&req); err != nil {
			return nil, apperror.NewValidation("", "malformed followup request")
		}
		if err := serverutils.ValidateRequest(req); err != nil {
			return nil, err
		}
		return s.SendFollowup(ctx, req.Text, req.Command)
	case "restart":
		return s.Restart(ctx)
	default:
		return nil, apperror.NewValidation("op", "must be start, followup or restart")
	}
}

// readSocketCommands watches the client side until the first read error.
// A malformed command ends the watch but leaves the stream running; any other
// error means the peer is gone, which stops the producer without emitting
// anything further.
func (c *analysisController) readSocketCommands(conn *websocket.Conn, s *session.Session, relay *stream.Relay, done chan<- struct{}) {
	defer close(done)
	for {
		var cmd socketCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			var syntaxErr *json.SyntaxError
			if !errors.As(err, &syntaxErr) {
				relay.MarkPeerGone()
			}
			return
		}
		if cmd.Op == "stop" {
			s.Stop()
		}
	}
}

func (c *analysisController) rejectSocket(sink *stream.WSSink, err error) {
	payload := stream.ErrorPayload{Type: "validation", Message: err.Error()}
	switch code := serverutils.StatusFor(err); {
	case code == fiber.StatusNotFound:
		payload.Type = "not_found"
	case code == fiber.StatusConflict:
		payload.Type = "conflict"
	case code >= fiber.StatusInternalServerError:
		payload.Type = "unknown"
	}
	_ = sink.Send(stream.Event{Name: stream.EventError, Data: payload})
}
