package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/apiary-engine/pkg/notify"
)

func queenDied(guildID int64, bee string) notify.Event {
	return notify.Event{
		Type:       notify.EventQueenDied,
		GuildID:    guildID,
		UserID:     7,
		HiveName:   "Alpha",
		BeeName:    bee,
		BroodCount: 2,
	}
}

func TestHub_FiltersByGuild(t *testing.T) {
	hub := NewHub(4, zap.NewNop())
	all := hub.Subscribe(0)
	one := hub.Subscribe(100)

	require.NoError(t, hub.Notify(context.Background(), queenDied(100, "Mab")))
	require.NoError(t, hub.Notify(context.Background(), queenDied(200, "Titania")))

	assert.Len(t, all.Events(), 2)
	require.Len(t, one.Events(), 1)
	assert.Equal(t, "Mab", (<-one.Events()).BeeName)
}

func TestHub_DropsWhenFull(t *testing.T) {
	hub := NewHub(1, zap.NewNop())
	sub := hub.Subscribe(0)

	for i := 0; i < 3; i++ {
		require.NoError(t, hub.Notify(context.Background(), queenDied(1, "Mab")))
	}

	assert.Len(t, sub.Events(), 1)
	assert.Equal(t, int64(2), sub.Dropped())
}

func TestHub_UnsubscribeClosesOnce(t *testing.T) {
	hub := NewHub(0, zap.NewNop())
	sub := hub.Subscribe(0)
	require.Equal(t, 1, hub.Len())

	hub.Unsubscribe(sub)
	hub.Unsubscribe(sub)

	assert.Zero(t, hub.Len())
	_, open := <-sub.Events()
	assert.False(t, open)
	require.NoError(t, hub.Notify(context.Background(), queenDied(1, "Mab")))
}

// newRelayServer serves hub sessions on an httptest server and returns a
// ws:// URL for it.
func newRelayServer(t *testing.T, hub *Hub) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Logf("WebSocket accept error: %v", err)
			return
		}
		_ = hub.ServeConn(r.Context(), conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialAndSubscribe(t *testing.T, ctx context.Context, url string, guildID int64) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })

	data, err := json.Marshal(SubscribeMessage{Type: TypeSubscribe, GuildID: guildID})
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))

	_, reply, err := conn.Read(ctx)
	require.NoError(t, err)
	msg, err := ParseMessage(reply)
	require.NoError(t, err)
	subscribed, ok := msg.(*SubscribedMessage)
	require.True(t, ok, "got %T", msg)
	assert.Equal(t, guildID, subscribed.GuildID)
	return conn
}

func TestHub_ServeConn_StreamsEvents(t *testing.T) {
	hub := NewHub(8, zap.NewNop())
	url := newRelayServer(t, hub)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialAndSubscribe(t, ctx, url, 100)
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Notify(ctx, queenDied(200, "Elsewhere")))
	require.NoError(t, hub.Notify(ctx, queenDied(100, "Mab")))

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	msg, err := ParseMessage(data)
	require.NoError(t, err)
	ev, ok := msg.(*EventMessage)
	require.True(t, ok, "got %T", msg)
	assert.Equal(t, "Mab", ev.Event.BeeName)
	assert.Equal(t, int64(100), ev.Event.GuildID)
}

func TestHub_ServeConn_RequiresSubscribe(t *testing.T) {
	hub := NewHub(8, zap.NewNop())
	url := newRelayServer(t, hub)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"type":"event"}`)))

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	msg, err := ParseMessage(data)
	require.NoError(t, err)
	errMsg, ok := msg.(*ErrorMessage)
	require.True(t, ok, "got %T", msg)
	assert.Contains(t, errMsg.Message, "expected subscribe")

	_, _, err = conn.Read(ctx)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
	assert.Zero(t, hub.Len())
}

func TestHub_ServeConn_UnsubscribesOnDisconnect(t *testing.T) {
	hub := NewHub(8, zap.NewNop())
	url := newRelayServer(t, hub)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialAndSubscribe(t, ctx, url, 0)
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	assert.Eventually(t, func() bool { return hub.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}
