package ws

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/bridge"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20
)

// Transport dials a peer's websocket endpoint for a bridge
type Transport struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
}

// NewTransport creates a transport for url (ws:// or wss://). header is sent
// with every handshake and may be nil.
func NewTransport(url string, header http.Header) *Transport {
	return &Transport{
		url:    url,
		header: header,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// URL returns the peer endpoint
func (t *Transport) URL() string {
	return t.url
}

// Dial opens one connection
func (t *Transport) Dial(ctx context.Context) (bridge.Conn, error) {
	ws, resp, err := t.dialer.DialContext(ctx, t.url, t.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", t.url, err)
	}
	ws.SetReadLimit(maxMessageSize)
	return &conn{ws: ws}, nil
}

// conn adapts a gorilla connection to bridge.Conn
type conn struct {
	ws        *websocket.Conn
	closeOnce sync.Once
	closeErr  error
}

func (c *conn) WriteMessage(data []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *conn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

// Close sends a close frame and releases the socket
func (c *conn) Close() error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}
