package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alanyoungcy/solanabot/internal/cache/local"
	"github.com/alanyoungcy/solanabot/internal/domain"
)

func startHub(t *testing.T) (*local.Bus, string) {
	t.Helper()
	bus := local.NewBus()
	hub := NewHub(bus, Config{
		Mode:          "preview",
		OpenPositions: func(context.Context) int { return 2 },
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = hub.Run(ctx) }()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", hub.HandleWS)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return bus, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

// publishUntil republishes until the hub's relay goroutines have subscribed
// and the client sees a frame.
func publishUntil(t *testing.T, bus *local.Bus, channel string, payload []byte, conn *websocket.Conn) (int, []byte) {
	t.Helper()
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			_ = bus.Publish(context.Background(), channel, payload)
			select {
			case <-done:
				return
			case <-time.After(20 * time.Millisecond):
			}
		}
	}()
	mt, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return mt, data
}

func TestHubJSONFrames(t *testing.T) {
	bus, url := startHub(t)
	conn := dial(t, url+"/ws")

	mt, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, mt)
	var status struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &status))
	assert.Equal(t, "bot_status", status.Type)
	assert.Equal(t, "preview", status.Payload["mode"])
	assert.Equal(t, 2.0, status.Payload["open_positions"])

	mt, data = publishUntil(t, bus, domain.ChannelPositions, []byte(`{"event":"position_opened","size":100}`), conn)
	assert.Equal(t, websocket.TextMessage, mt)
	assert.JSONEq(t, `{"type":"positions","payload":{"event":"position_opened","size":100}}`, string(data))
}

func TestHubProtoFrames(t *testing.T) {
	bus, url := startHub(t)
	conn := dial(t, url+"/ws?format=proto")

	mt, _, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, mt)

	mt, data := publishUntil(t, bus, domain.ChannelPrices, []byte(`{"token":"MintA","price_usd":0.5}`), conn)
	assert.Equal(t, websocket.BinaryMessage, mt)

	var st structpb.Struct
	require.NoError(t, proto.Unmarshal(data, &st))
	m := st.AsMap()
	assert.Equal(t, "prices", m["type"])
	payload, ok := m["payload"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 0.5, payload["price_usd"])
}

func TestEncodeNonJSONPayload(t *testing.T) {
	frame, err := encode(FormatJSON, "actions", []byte("not json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"actions","payload":"not json"}`, string(frame))
}
