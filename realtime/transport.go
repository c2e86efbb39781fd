package realtime

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/groundlink/errors"
)

// Conn is one established realtime connection.
type Conn interface {
	// ReadMessage blocks for the next inbound frame.
	ReadMessage() ([]byte, error)
	// WriteMessage writes one outbound frame.
	WriteMessage(data []byte) error
	// Close tears the connection down.
	Close() error
}

// Transport opens realtime connections. The engine owns reconnection
// policy; a Transport only knows how to dial once.
type Transport interface {
	Dial(ctx context.Context) (Conn, error)
}

// WebsocketTransport dials the server's realtime websocket endpoint.
type WebsocketTransport struct {
	url    string
	dialer *websocket.Dialer
}

// NewWebsocketTransport derives the websocket endpoint from the server
// base URL and instance name: http(s)://host -> ws(s)://host/_websocket/{instance}.
func NewWebsocketTransport(serverURL, instance string) (*WebsocketTransport, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, errors.WrapInvalid(err, "WebsocketTransport", "NewWebsocketTransport", "parse server url")
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("unsupported scheme %q", u.Scheme),
			"WebsocketTransport", "NewWebsocketTransport", "derive websocket url")
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/_websocket/" + url.PathEscape(instance)

	return &WebsocketTransport{
		url: u.String(),
		dialer: &websocket.Dialer{
			HandshakeTimeout: 45 * time.Second,
		},
	}, nil
}

// URL returns the derived websocket endpoint.
func (t *WebsocketTransport) URL() string {
	return t.url
}

// Dial opens one websocket connection.
func (t *WebsocketTransport) Dial(ctx context.Context) (Conn, error) {
	conn, _, err := t.dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return nil, errors.WrapTransient(err, "WebsocketTransport", "Dial", "open websocket")
	}
	return &wsConn{conn: conn}, nil
}

// wsConn adapts a gorilla websocket connection to Conn.
type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) WriteMessage(data []byte) error {
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
