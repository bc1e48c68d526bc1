package controller

import (
	"encoding/json"
	"net"
	"net/url"
	"strings"
	"testing"
	"time"

	"ai-factcheck-be/internal/pkg/serverutils"
	"ai-factcheck-be/pkg/llm/scripted"
	"ai-factcheck-be/pkg/session"
	"ai-factcheck-be/pkg/stream"

	"github.com/fasthttp/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// listen serves the test app on a real socket, which the upgrade needs.
func (ta *testApp) listen(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = ta.app.Listener(ln) }()
	t.Cleanup(func() { _ = ta.app.Shutdown() })
	return ln.Addr().String()
}

func dialSocket(t *testing.T, addr, id, op string) *websocket.Conn {
	t.Helper()
	u := url.URL{
		Scheme:   "ws",
		Host:     addr,
		Path:     "/api/analysis/v1/sessions/" + id + "/ws",
		RawQuery: "op=" + op,
	}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

// readFrames collects frames until the server ends the socket.
func readFrames(conn *websocket.Conn) ([]stream.WSFrame, error) {
	var frames []stream.WSFrame
	for {
		var f stream.WSFrame
		if err := conn.ReadJSON(&f); err != nil {
			return frames, err
		}
		frames = append(frames, f)
	}
}

func eventNames(frames []stream.WSFrame) []string {
	names := make([]string, len(frames))
	for i, f := range frames {
		names[i] = f.Event
	}
	return names
}

func (ta *testApp) snapshot(t *testing.T, id string) session.Snapshot {
	t.Helper()
	_, raw := ta.doJSON(t, "GET", "/api/analysis/v1/sessions/"+id, nil)
	var snap serverutils.BaseResponse[session.Snapshot]
	require.NoError(t, json.Unmarshal(raw, &snap))
	return snap.Data
}

func TestAnalysisSocket_StreamsTurns(t *testing.T) {
	ta := newTestApp(t)
	addr := ta.listen(t)
	id := ta.createSession(t)

	tests := []struct {
		name      string
		op        string
		firstSend any
		want      []string
	}{
		{"start", "start", startBody("Is the moon cheese?"), []string{"", "", stream.EventAnalysisID, stream.EventComplete}},
		{"followup", "followup", map[string]string{"command": "/summarize"}, []string{"", "", stream.EventComplete}},
		{"restart", "restart", nil, []string{"", "", stream.EventComplete}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := dialSocket(t, addr, id, tt.op)
			if tt.firstSend != nil {
				require.NoError(t, conn.WriteJSON(tt.firstSend))
			}

			frames, err := readFrames(conn)
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
			require.Equal(t, tt.want, eventNames(frames))
			assert.Equal(t, map[string]any{"delta": "Part1"}, frames[0].Data)
			assert.Equal(t, map[string]any{"delta": "Part2"}, frames[1].Data)
			assert.Equal(t, session.StateCompleted, ta.snapshot(t, id).State)
		})
	}
}

func TestAnalysisSocket_Rejects(t *testing.T) {
	ta := newTestApp(t)
	addr := ta.listen(t)
	id := ta.createSession(t)

	tests := []struct {
		name     string
		id       string
		op       string
		wantType string
	}{
		{"unknown session", "does-not-exist", "start", "not_found"},
		{"unknown op", id, "rewind", "validation"},
		{"restart without checkpoint", id, "restart", "conflict"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := dialSocket(t, addr, tt.id, tt.op)
			frames, _ := readFrames(conn)
			require.Len(t, frames, 1)
			assert.Equal(t, stream.EventError, frames[0].Event)
			data, _ := frames[0].Data.(map[string]any)
			assert.Equal(t, tt.wantType, data["type"])
		})
	}
}

func TestAnalysisSocket_StopEndsWithoutTerminalEvent(t *testing.T) {
	ta := newTestApp(t)
	never := make(chan struct{})
	ta.adapter.WithSteps(scripted.Step{Text: "Part1"}, scripted.Step{Text: "late", Wait: never})
	addr := ta.listen(t)

	// Repeated runs reuse pooled connections, so a reader that outlives its
	// handler shows up under -race.
	for i := 0; i < 20; i++ {
		id := ta.createSession(t)
		conn := dialSocket(t, addr, id, "start")
		require.NoError(t, conn.WriteJSON(startBody("claim")))

		var first stream.WSFrame
		require.NoError(t, conn.ReadJSON(&first))
		require.Equal(t, map[string]any{"delta": "Part1"}, first.Data)

		require.NoError(t, conn.WriteJSON(map[string]string{"op": "stop"}))
		_ = conn.WriteMessage(websocket.TextMessage, []byte("{not json"))

		rest, err := readFrames(conn)
		assert.Empty(t, rest, "no event follows a stop")
		assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

		snap := ta.snapshot(t, id)
		assert.Equal(t, session.StateStopped, snap.State)
		require.Len(t, snap.Messages, 2)
		assert.True(t, strings.HasPrefix(snap.Messages[1].Text, "Part1"))
		assert.True(t, snap.Messages[1].Stopped)
		_ = conn.Close()
	}
}
