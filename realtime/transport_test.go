package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWebsocketTransportURL(t *testing.T) {
	tests := []struct {
		name      string
		serverURL string
		instance  string
		want      string
		wantErr   bool
	}{
		{
			name:      "http to ws",
			serverURL: "http://yamcs.local:8090",
			instance:  "simulator",
			want:      "ws://yamcs.local:8090/_websocket/simulator",
		},
		{
			name:      "https to wss",
			serverURL: "https://yamcs.local",
			instance:  "flight",
			want:      "wss://yamcs.local/_websocket/flight",
		},
		{
			name:      "ws passthrough",
			serverURL: "ws://yamcs.local:8090",
			instance:  "simulator",
			want:      "ws://yamcs.local:8090/_websocket/simulator",
		},
		{
			name:      "trailing slash collapsed",
			serverURL: "http://yamcs.local:8090/",
			instance:  "simulator",
			want:      "ws://yamcs.local:8090/_websocket/simulator",
		},
		{
			name:      "unsupported scheme",
			serverURL: "ftp://yamcs.local",
			instance:  "simulator",
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport, err := NewWebsocketTransport(tt.serverURL, tt.instance)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, transport.URL())
		})
	}
}

func TestWebsocketTransportDial(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan []byte, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/_websocket/simulator", r.URL.Path)
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer func() { _ = conn.Close() }()

		msgType, data, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.TextMessage, msgType)
		received <- data

		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`[1,2,3,{"dt":"PARAMETER","data":{}}]`)))
	}))
	defer server.Close()

	transport, err := NewWebsocketTransport(server.URL, "simulator")
	require.NoError(t, err)

	conn, err := transport.Dial(context.Background())
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	require.NoError(t, conn.WriteMessage([]byte("hello")))
	assert.Equal(t, []byte("hello"), <-received)

	data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), "PARAMETER")
}
