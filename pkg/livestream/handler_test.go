package livestream

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracelight/tracelight/pkg/broadcaster"
	"github.com/tracelight/tracelight/pkg/models"
	"github.com/tracelight/tracelight/pkg/monitors"
)

func newTestHub(t *testing.T) *broadcaster.Broadcaster {
	t.Helper()

	reg := monitors.NewRegistry(
		&monitors.NetworkMonitor{},
		&monitors.StorageMonitor{},
		&monitors.InteractionMonitor{},
		&monitors.WindowPropertyMonitor{},
	)

	hub := broadcaster.New("cap-ws", "20260101-000000", nil, nil, reg,
		broadcaster.WithBroadcastInterval(0),
		broadcaster.WithFlushInterval(time.Hour))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		hub.Shutdown(ctx, "test done", nil)
	})

	return hub
}

func dialTestServer(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + query

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	defer resp.Body.Close()

	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	return conn
}

type liveMessage struct {
	Type       string               `json:"type"`
	CapturesID string               `json:"captures_id"`
	Stats      models.Stats         `json:"stats"`
	Events     []models.UpdateEvent `json:"events"`
}

func readMessage(t *testing.T, conn *websocket.Conn) liveMessage {
	t.Helper()

	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg liveMessage
	require.NoError(t, json.Unmarshal(payload, &msg))

	return msg
}

func TestHandler_SnapshotOnConnect(t *testing.T) {
	hub := newTestHub(t)
	server := httptest.NewServer(NewHandler(hub))

	defer server.Close()

	conn := dialTestServer(t, server, "")

	snapshot := readMessage(t, conn)
	assert.Equal(t, models.MessageSnapshot, snapshot.Type)
	assert.Equal(t, "cap-ws", snapshot.CapturesID)
	assert.Zero(t, snapshot.Stats.TotalEvents)
}

func TestHandler_UpdatesFlowToClient(t *testing.T) {
	hub := newTestHub(t)
	server := httptest.NewServer(NewHandler(hub))

	defer server.Close()

	conn := dialTestServer(t, server, "")
	readMessage(t, conn)

	hub.HandleEvent(models.CategoryNetwork, models.NetworkTransaction{
		URL: "https://example.com/api/users", Method: "GET", Status: 200,
	})

	update := readMessage(t, conn)
	assert.Equal(t, models.MessageUpdate, update.Type)
	assert.Equal(t, 1, update.Stats.TotalEvents)
	require.Len(t, update.Events, 1)
	assert.Equal(t, models.CategoryNetwork, update.Events[0].Category)
	assert.Equal(t, "GET", update.Events[0].Summary["method"])
}

func TestHandler_CategoryQueryFilter(t *testing.T) {
	hub := newTestHub(t)
	server := httptest.NewServer(NewHandler(hub))

	defer server.Close()

	conn := dialTestServer(t, server, "?categories=storage")
	readMessage(t, conn)

	// Filtered updates still carry stats so observers see overall progress.
	hub.HandleEvent(models.CategoryNetwork, models.NetworkTransaction{
		URL: "https://example.com/x", Method: "GET",
	})

	update := readMessage(t, conn)
	assert.Equal(t, models.MessageUpdate, update.Type)
	assert.Empty(t, update.Events)
	assert.Equal(t, 1, update.Stats.TotalEvents)

	hub.HandleEvent(models.CategoryStorage, models.StorageEvent{
		Type: models.StorageCookieChange, TotalCount: 3,
	})

	update = readMessage(t, conn)
	require.Len(t, update.Events, 1)
	assert.Equal(t, models.CategoryStorage, update.Events[0].Category)
}

func TestHandler_SubscribeControlMessage(t *testing.T) {
	hub := newTestHub(t)
	server := httptest.NewServer(NewHandler(hub))

	defer server.Close()

	conn := dialTestServer(t, server, "")
	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(models.SubscribeRequest{
		Action:     "subscribe",
		Categories: []string{"interaction"},
	}))

	// The filter swap happens in the server's read loop; give it a moment.
	time.Sleep(200 * time.Millisecond)

	hub.HandleEvent(models.CategoryNetwork, models.NetworkTransaction{
		URL: "https://example.com/x", Method: "GET",
	})

	update := readMessage(t, conn)
	assert.Empty(t, update.Events)

	hub.HandleEvent(models.CategoryInteraction, models.Interaction{
		Type: "click", URL: "https://example.com",
	})

	update = readMessage(t, conn)
	require.Len(t, update.Events, 1)
	assert.Equal(t, models.CategoryInteraction, update.Events[0].Category)
}

func TestHandler_DisconnectUnregisters(t *testing.T) {
	hub := newTestHub(t)
	server := httptest.NewServer(NewHandler(hub))

	defer server.Close()

	conn := dialTestServer(t, server, "")
	readMessage(t, conn)
	require.Equal(t, 1, hub.ClientCount())

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		return hub.ClientCount() == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestParseCategoryFilter(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []models.Category
	}{
		{name: "empty means all", raw: "", want: nil},
		{name: "single", raw: "network", want: []models.Category{models.CategoryNetwork}},
		{
			name: "multiple with spaces",
			raw:  "network, storage",
			want: []models.Category{models.CategoryNetwork, models.CategoryStorage},
		},
		{name: "unknown names dropped", raw: "network,bogus", want: []models.Category{models.CategoryNetwork}},
		{name: "only unknown", raw: "bogus", want: []models.Category{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseCategoryFilter(tt.raw)

			if tt.want == nil {
				assert.Nil(t, got)
				return
			}

			require.Len(t, got, len(tt.want))

			for _, category := range tt.want {
				assert.Contains(t, got, category)
			}
		})
	}
}
