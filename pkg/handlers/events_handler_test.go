package handlers

import (
	"context"
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
	"github.com/ekaya-inc/apiary-engine/pkg/relay"
)

func TestEventsHandler_Stream(t *testing.T) {
	hub := relay.NewHub(8, zap.NewNop())
	mux := http.NewServeMux()
	NewEventsHandler(hub, nil, zap.NewNop()).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/api/events", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"type":"subscribe","guild_id":100}`)))
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	msg, err := relay.ParseMessage(data)
	require.NoError(t, err)
	require.IsType(t, &relay.SubscribedMessage{}, msg)

	require.NoError(t, hub.Notify(ctx, notify.Event{Type: notify.EventQueenDied, GuildID: 100, UserID: 7, BeeName: "Mab"}))

	_, data, err = conn.Read(ctx)
	require.NoError(t, err)
	msg, err = relay.ParseMessage(data)
	require.NoError(t, err)
	ev, ok := msg.(*relay.EventMessage)
	require.True(t, ok, "got %T", msg)
	assert.Equal(t, "Mab", ev.Event.BeeName)
}

func TestEventsHandler_RejectsPlainHTTP(t *testing.T) {
	hub := relay.NewHub(8, zap.NewNop())

	rec := serve(t, NewEventsHandler(hub, nil, zap.NewNop()).RegisterRoutes, http.MethodGet, "/api/events", nil)

	assert.Equal(t, http.StatusUpgradeRequired, rec.Code)
	assert.Zero(t, hub.Len())
}
