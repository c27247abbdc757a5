package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	datasync "github.com/xelth-com/datalake/internal/sync"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	hub := NewHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	}))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]interface{}
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func event(connectionID string, t datasync.EventType) datasync.Event {
	return datasync.Event{ID: "e-" + connectionID, Type: t, ConnectionID: connectionID, OccurredAt: time.Now()}
}

func TestHubFansOutToSubscribers(t *testing.T) {
	hub, url := startHub(t)

	all := dial(t, url)
	filtered := dial(t, url)
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, filtered.WriteJSON(ClientMessage{Type: "SUBSCRIBE", MsgID: "m1", ConnectionID: "conn-2"}))
	ack := readJSON(t, filtered)
	assert.Equal(t, "ACK", ack["type"])
	assert.Equal(t, "m1", ack["msgId"])
	assert.Equal(t, []interface{}{"conn-2"}, ack["connectionIds"])

	hub.Publish(event("conn-1", datasync.EventTierCompleted))
	hub.Publish(event("conn-2", datasync.EventTierFailed))

	first := readJSON(t, all)
	second := readJSON(t, all)
	assert.Equal(t, "SYNC_EVENT", first["type"])
	assert.Equal(t, "conn-1", first["event"].(map[string]interface{})["connectionId"])
	assert.Equal(t, "conn-2", second["event"].(map[string]interface{})["connectionId"])

	only := readJSON(t, filtered)
	ev := only["event"].(map[string]interface{})
	assert.Equal(t, "conn-2", ev["connectionId"])
	assert.Equal(t, string(datasync.EventTierFailed), ev["type"])
}

func TestQueryParameterPreSubscribes(t *testing.T) {
	hub, url := startHub(t)

	conn := dial(t, url+"?connectionId=conn-1")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish(event("conn-9", datasync.EventTierCompleted))
	hub.Publish(event("conn-1", datasync.EventTierCompleted))

	msg := readJSON(t, conn)
	assert.Equal(t, "conn-1", msg["event"].(map[string]interface{})["connectionId"])
}

func TestProtocolMessages(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "PING", MsgID: "p"}))
	pong := readJSON(t, conn)
	assert.Equal(t, "PONG", pong["type"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"SCAN"}`)))
	bad := readJSON(t, conn)
	assert.Equal(t, "ERROR", bad["type"])
}

func TestClientDisconnectUnregisters(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestEventMessageShape(t *testing.T) {
	raw, err := json.Marshal(EventMessage{Type: "SYNC_EVENT", Event: datasync.Event{
		Type:    datasync.EventTierCompleted,
		Tier:    datasync.TierIncremental,
		Changed: []datasync.EntityKind{datasync.EntityTransports},
	}})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"changed":["transports"]`)
	assert.Contains(t, string(raw), `"tier":"incremental"`)
}
