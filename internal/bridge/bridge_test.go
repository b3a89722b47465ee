package bridge

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "companion/internal/errors"
	"companion/internal/observability"
	"companion/internal/protocol"
)

type recordedEvent struct {
	kind      string
	sessionID string
	out       *Outbox
	msg       protocol.Message
}

type recordingHandler struct {
	events chan recordedEvent
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{events: make(chan recordedEvent, 64)}
}

func (h *recordingHandler) Connected(sessionID string, out *Outbox) {
	h.events <- recordedEvent{kind: "connected", sessionID: sessionID, out: out}
}

func (h *recordingHandler) Message(sessionID string, msg protocol.Message) {
	h.events <- recordedEvent{kind: "message", sessionID: sessionID, msg: msg}
}

func (h *recordingHandler) Disconnected(sessionID string, out *Outbox) {
	h.events <- recordedEvent{kind: "disconnected", sessionID: sessionID, out: out}
}

func (h *recordingHandler) next(t *testing.T) recordedEvent {
	t.Helper()
	select {
	case ev := <-h.events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for bridge event")
		return recordedEvent{}
	}
}

func startBridge(t *testing.T, metrics *observability.Metrics) (*Server, *recordingHandler) {
	t.Helper()
	handler := newRecordingHandler()
	srv := New(Config{ListenAddr: "127.0.0.1:0", Metrics: metrics}, handler)
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Close(ctx)
	})
	return srv, handler
}

func dial(t *testing.T, srv *Server, path string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr()+path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestBridgeDeliversFramesInOrder(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.MustNewMetrics(reg)
	srv, handler := startBridge(t, metrics)
	conn := dial(t, srv, "/ws/cli/sess-1/")

	connected := handler.next(t)
	require.Equal(t, "connected", connected.kind)
	require.Equal(t, "sess-1", connected.sessionID)

	frame := `{"type":"keep_alive"}` + "\n" + `garbage` + "\n" + `{"type":"tool_use_summary","summary":"did things"}` + "\n"
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))

	first := handler.next(t)
	second := handler.next(t)
	assert.Equal(t, protocol.TypeKeepAlive, first.msg.Type())
	assert.Equal(t, "did things", second.msg.(protocol.ToolUseSummaryMessage).Summary)
	assert.Equal(t, 1.0, gatheredValue(t, reg, "companion_bridge_parse_failures_total"))
}

func TestBridgeSkipsMalformedFrameBetweenValidOnes(t *testing.T) {
	reg := prometheus.NewRegistry()
	srv, handler := startBridge(t, observability.MustNewMetrics(reg))
	conn := dial(t, srv, "/ws/cli/sess-4")
	require.Equal(t, "connected", handler.next(t).kind)

	for _, frame := range []string{
		`{"type":"tool_use_summary","summary":"first"}`,
		`{not json at all`,
		`{"type":"tool_use_summary","summary":"third"}`,
	} {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame+"\n")))
	}

	first := handler.next(t)
	require.Equal(t, "message", first.kind)
	assert.Equal(t, "first", first.msg.(protocol.ToolUseSummaryMessage).Summary)
	third := handler.next(t)
	require.Equal(t, "message", third.kind)
	assert.Equal(t, "third", third.msg.(protocol.ToolUseSummaryMessage).Summary)
	assert.Equal(t, 1.0, gatheredValue(t, reg, "companion_bridge_parse_failures_total"))

	select {
	case extra := <-handler.events:
		t.Fatalf("unexpected event after malformed frame: %+v", extra)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestBridgeWritesNewlineTerminatedLines(t *testing.T) {
	srv, handler := startBridge(t, nil)
	conn := dial(t, srv, "/ws/cli/sess-2")
	connected := handler.next(t)

	require.NoError(t, connected.out.Send(`{"type":"user"}`))
	require.NoError(t, connected.out.Send("{\"type\":\"second\"}\n"))

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var received []string
	for len(received) < 2 {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		received = append(received, string(data))
	}
	assert.Equal(t, []string{"{\"type\":\"user\"}\n", "{\"type\":\"second\"}\n"}, received)
}

func TestBridgeReportsDisconnectOnceAndFailsSoftly(t *testing.T) {
	srv, handler := startBridge(t, nil)
	conn := dial(t, srv, "/ws/cli/sess-3")
	connected := handler.next(t)

	require.NoError(t, conn.Close())

	ev := handler.next(t)
	assert.Equal(t, "disconnected", ev.kind)
	assert.Equal(t, "sess-3", ev.sessionID)
	assert.Same(t, connected.out, ev.out)
	assert.ErrorIs(t, connected.out.Send("late"), ErrNotConnected)
	assert.True(t, connected.out.Closed())

	select {
	case extra := <-handler.events:
		t.Fatalf("unexpected extra event %+v", extra)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestBridgeRejectsOtherPaths(t *testing.T) {
	srv, _ := startBridge(t, nil)

	for _, path := range []string{"/", "/ws/cli/", "/metrics", "/ws/other/x"} {
		resp, err := http.Get("http://" + srv.Addr() + path)
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
		assert.Equal(t, "Expected path: /ws/cli/{session_id}", strings.TrimSpace(string(body)), path)
	}
}

func TestBridgeRefusesNonLoopbackAndBusyPort(t *testing.T) {
	err := New(Config{ListenAddr: "0.0.0.0:0"}, newRecordingHandler()).Start()
	require.Error(t, err)
	assert.True(t, cerrors.IsFatal(err))

	srv, _ := startBridge(t, nil)
	err = New(Config{ListenAddr: srv.Addr()}, newRecordingHandler()).Start()
	require.Error(t, err)
	assert.True(t, cerrors.IsFatal(err))
}

func TestSessionIDFromPath(t *testing.T) {
	id, ok := SessionIDFromPath("/ws/cli/abc/")
	assert.True(t, ok)
	assert.Equal(t, "abc", id)

	_, ok = SessionIDFromPath("/ws/cli/")
	assert.False(t, ok)
}

func gatheredValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		var total float64
		for _, metric := range family.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
		return total
	}
	return 0
}
