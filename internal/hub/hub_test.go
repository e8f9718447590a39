package hub

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type recordingLifecycle struct {
	connected    chan string
	registered   chan [2]string
	disconnected chan string
}

func newRecordingLifecycle() *recordingLifecycle {
	return &recordingLifecycle{
		connected:    make(chan string, 8),
		registered:   make(chan [2]string, 8),
		disconnected: make(chan string, 8),
	}
}

func (l *recordingLifecycle) OnConnect(channel string) { l.connected <- channel }
func (l *recordingLifecycle) OnRegisterUser(channel, userID string) {
	l.registered <- [2]string{channel, userID}
}
func (l *recordingLifecycle) OnDisconnect(channel string) { l.disconnected <- channel }

func waitFor[T any](t *testing.T, ch chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		panic("unreachable")
	}
}

func newTestHub(t *testing.T) (*Hub, *recordingLifecycle, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	lc := newRecordingLifecycle()
	h := New(lc, nil)

	r := gin.New()
	r.GET("/ws", h.ServeWS)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	t.Cleanup(h.Close)

	return h, lc, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func TestConnectRegisterSend(t *testing.T) {
	h, lc, url := newTestHub(t)

	ws := dial(t, url)
	channel := waitFor(t, lc.connected, "connect")

	require.NoError(t, ws.WriteJSON(map[string]string{"event": "registerUser", "userId": "alice"}))
	reg := waitFor(t, lc.registered, "register")
	require.Equal(t, channel, reg[0])
	require.Equal(t, "alice", reg[1])

	require.NoError(t, h.Send(channel, "newEmail", map[string]any{"userId": "alice"}))

	var frame serverFrame
	require.NoError(t, ws.ReadJSON(&frame))
	require.Equal(t, "newEmail", frame.Event)
}

func TestSendToUnknownChannel(t *testing.T) {
	h, _, _ := newTestHub(t)
	require.Error(t, h.Send("no-such-channel", "newEmail", nil))
}

func TestBroadcastReachesAllConnections(t *testing.T) {
	h, lc, url := newTestHub(t)

	ws1 := dial(t, url)
	waitFor(t, lc.connected, "connect 1")
	ws2 := dial(t, url)
	waitFor(t, lc.connected, "connect 2")

	require.Equal(t, 2, h.Len())

	h.Broadcast("inboxSync", map[string]any{"threads": []any{}})

	for _, ws := range []*websocket.Conn{ws1, ws2} {
		var frame serverFrame
		require.NoError(t, ws.ReadJSON(&frame))
		require.Equal(t, "inboxSync", frame.Event)
	}
}

func TestDisconnectRemovesChannel(t *testing.T) {
	h, lc, url := newTestHub(t)

	ws := dial(t, url)
	channel := waitFor(t, lc.connected, "connect")

	ws.Close()
	gone := waitFor(t, lc.disconnected, "disconnect")
	require.Equal(t, channel, gone)

	require.Eventually(t, func() bool { return h.Len() == 0 },
		time.Second, 10*time.Millisecond)
}
