package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	goleak.VerifyTestMain(m)
}

func recvFrame(t *testing.T, ch <-chan []byte, timeout time.Duration) Message {
	t.Helper()
	select {
	case raw, ok := <-ch:
		require.True(t, ok, "send queue closed")
		var msg Message
		require.NoError(t, json.Unmarshal(raw, &msg))
		return msg
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for frame")
	}
	return Message{}
}

// testClient registers a client with no socket; frames stay in its send queue.
func testClient(h *Hub) *Client {
	c := newClient(h, nil)
	h.register(c)
	return c
}

func TestHubEmitToRoom(t *testing.T) {
	hub := NewHub(nil)
	a := testClient(hub)
	b := testClient(hub)
	hub.Join(a, "session-a")
	hub.Join(b, "session-b")

	n, err := hub.Emit("session-a", EventPredictionResult, map[string]any{"status": "completed"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	msg := recvFrame(t, a.send, time.Second)
	assert.Equal(t, EventPredictionResult, msg.Event)
	assert.Equal(t, map[string]any{"status": "completed"}, msg.Data)
	assert.Empty(t, b.send)

	n, err = hub.Emit("nobody-here", EventPredictionResult, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestHubLeaveAndUnregister(t *testing.T) {
	hub := NewHub(nil)
	c := testClient(hub)
	hub.Join(c, "r1")
	hub.Join(c, "r2")
	assert.Equal(t, 1, hub.RoomSize("r1"))

	hub.Leave(c, "r1")
	assert.Zero(t, hub.RoomSize("r1"))
	assert.Equal(t, 1, hub.RoomSize("r2"))

	hub.unregister(c)
	hub.unregister(c)
	assert.Zero(t, hub.RoomSize("r2"))
	assert.Zero(t, hub.ClientCount())
	_, ok := <-c.send
	assert.False(t, ok, "send queue closed on unregister")

	// joining after disconnect is ignored
	hub.Join(c, "r3")
	assert.Zero(t, hub.RoomSize("r3"))
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := NewHub(nil)
	c := testClient(hub)
	hub.Join(c, "busy")

	for i := 0; i < sendQueueSize; i++ {
		n := hub.EmitFrame("busy", []byte(`{}`))
		require.Equal(t, 1, n)
	}
	assert.Zero(t, hub.EmitFrame("busy", []byte(`{}`)))
	assert.Zero(t, hub.ClientCount())
}

func TestClientHandle(t *testing.T) {
	hub := NewHub(nil)
	c := testClient(hub)

	c.handle([]byte(`{"event":"join","data":{"sessionId":" abc "}}`))
	msg := recvFrame(t, c.send, time.Second)
	assert.Equal(t, EventJoined, msg.Event)
	assert.Equal(t, map[string]any{"room": "abc"}, msg.Data)
	assert.Equal(t, 1, hub.RoomSize("abc"))

	c.handle([]byte(`{"event":"join","data":{"session_id":"def"}}`))
	recvFrame(t, c.send, time.Second)
	assert.Equal(t, 1, hub.RoomSize("def"))

	c.handle([]byte(`{"event":"leave","data":{"sessionId":"abc"}}`))
	assert.Equal(t, EventLeft, recvFrame(t, c.send, time.Second).Event)
	assert.Zero(t, hub.RoomSize("abc"))

	for _, raw := range []string{
		`{"event":"join","data":{}}`,
		`{"event":"join"}`,
		`{"event":"dance"}`,
		`not json`,
	} {
		c.handle([]byte(raw))
		assert.Equal(t, EventError, recvFrame(t, c.send, time.Second).Event, raw)
	}
}

func TestRedisPublisherDispatch(t *testing.T) {
	hub := NewHub(nil)
	c := testClient(hub)
	hub.Join(c, "s1")

	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = rdb.Close() })
	p, err := NewRedisPublisher(rdb, "", hub, nil)
	require.NoError(t, err)

	raw, err := encodeEnvelope("s1", EventPredictionResult, map[string]any{"prediction": "Brown Spot"})
	require.NoError(t, err)
	p.dispatch(raw)

	msg := recvFrame(t, c.send, time.Second)
	assert.Equal(t, EventPredictionResult, msg.Event)
	assert.Equal(t, map[string]any{"prediction": "Brown Spot"}, msg.Data)

	p.dispatch([]byte(`{"room":"","event":"x"}`))
	p.dispatch([]byte(`garbage`))
	assert.Empty(t, c.send)

	_, err = NewRedisPublisher(nil, "", hub, nil)
	assert.Error(t, err)
}

func dialTestServer(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocketJoinAndReceive(t *testing.T) {
	hub := NewHub(nil)
	r := gin.New()
	r.GET("/ws", NewHandler(hub, []string{"*"}).Serve)
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn := dialTestServer(t, srv, "")
	assert.Equal(t, EventConnected, readMessage(t, conn).Event)
	require.NoError(t, conn.WriteJSON(map[string]any{"event": "join", "data": map[string]string{"sessionId": "sess-1"}}))
	joined := readMessage(t, conn)
	assert.Equal(t, EventJoined, joined.Event)

	pub := NewLocalPublisher(hub)
	require.NoError(t, pub.Publish(context.Background(), "sess-1", EventPredictionResult, map[string]any{
		"status":     "completed",
		"session_id": "sess-1",
	}))
	got := readMessage(t, conn)
	assert.Equal(t, EventPredictionResult, got.Event)
	assert.Equal(t, "sess-1", got.Data.(map[string]any)["session_id"])

	// query parameter join
	conn2 := dialTestServer(t, srv, "?session_id=sess-2")
	assert.Equal(t, EventConnected, readMessage(t, conn2).Event)
	assert.Equal(t, EventJoined, readMessage(t, conn2).Event)
	assert.Equal(t, 1, hub.RoomSize("sess-2"))

	require.NoError(t, conn.Close())
	require.NoError(t, conn2.Close())
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketConnectedIDIsARoom(t *testing.T) {
	hub := NewHub(nil)
	r := gin.New()
	r.GET("/ws", NewHandler(hub, nil).Serve)
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn := dialTestServer(t, srv, "")
	defer conn.Close()
	hello := readMessage(t, conn)
	require.Equal(t, EventConnected, hello.Event)
	id, _ := hello.Data.(map[string]any)["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, 1, hub.RoomSize(id))

	// no join sent
	require.NoError(t, NewLocalPublisher(hub).Publish(context.Background(), id, EventPredictionResult, map[string]any{"session_id": id}))
	got := readMessage(t, conn)
	assert.Equal(t, EventPredictionResult, got.Event)
	assert.Equal(t, id, got.Data.(map[string]any)["session_id"])
}

func TestWebSocketHubCloseDisconnects(t *testing.T) {
	hub := NewHub(nil)
	r := gin.New()
	r.GET("/ws", NewHandler(hub, nil).Serve)
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn := dialTestServer(t, srv, "?session_id=x")
	defer conn.Close()
	assert.Equal(t, EventConnected, readMessage(t, conn).Event)
	assert.Equal(t, EventJoined, readMessage(t, conn).Event)

	hub.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	hub := NewHub(nil)
	r := gin.New()
	r.GET("/ws", NewHandler(hub, []string{"https://app.example"}).Serve)
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
