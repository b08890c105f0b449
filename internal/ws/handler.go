package ws

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/bridge"
	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/infrastructure/logging"
	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/shared/id"
)

// Responder computes the payload of the reply to a request
type Responder func(ctx context.Context, req *bridge.Message) (any, error)

// Echo replies with the request payload
func Echo(_ context.Context, req *bridge.Message) (any, error) {
	return map[string]any{"echo": req.Payload}, nil
}

// PeerHandler is the server side of a bridge connection
type PeerHandler struct {
	nodeID   string
	logger   *logging.Logger
	ids      *id.Generator
	respond  Responder
	observe  func(*bridge.Message)
	upgrader websocket.Upgrader
	active   atomic.Int64
}

// PeerOption configures a PeerHandler
type PeerOption func(*PeerHandler)

// WithResponder replaces the default Echo responder
func WithResponder(r Responder) PeerOption {
	return func(h *PeerHandler) { h.respond = r }
}

// WithObserver is called with every decoded inbound message
func WithObserver(fn func(*bridge.Message)) PeerOption {
	return func(h *PeerHandler) { h.observe = fn }
}

// NewPeerHandler creates a peer endpoint that answers as nodeID
func NewPeerHandler(nodeID string, logger *logging.Logger, opts ...PeerOption) *PeerHandler {
	if logger == nil {
		logger = logging.NewNop()
	}
	h := &PeerHandler{
		nodeID:  nodeID,
		logger:  logger.Named("ws"),
		ids:     id.Default(),
		respond: Echo,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Peers are not browsers
			},
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Active returns the number of open peer connections
func (h *PeerHandler) Active() int {
	return int(h.active.Load())
}

// HandleConnection upgrades the request and serves bridge messages until the
// peer goes away. Requests get a correlated response; heartbeats and other
// messages get none.
func (h *PeerHandler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	h.active.Add(1)
	defer h.active.Add(-1)

	ctx := c.Request.Context()
	remote := c.ClientIP()
	h.logger.Debug("peer connected", zap.String("remote", remote))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("peer read failed", zap.String("remote", remote), zap.Error(err))
			}
			return
		}

		msg, err := bridge.DecodeMessage(data)
		if err != nil {
			h.logger.Debug("dropping malformed message", zap.String("remote", remote), zap.Error(err))
			continue
		}
		if h.observe != nil {
			h.observe(msg)
		}

		if msg.Type != bridge.TypeRequest {
			continue
		}
		if err := h.reply(ctx, conn, msg); err != nil {
			h.logger.Warn("peer write failed", zap.String("remote", remote), zap.Error(err))
			return
		}
	}
}

func (h *PeerHandler) reply(ctx context.Context, conn *websocket.Conn, req *bridge.Message) error {
	payload, err := h.respond(ctx, req)
	if err != nil {
		payload = map[string]any{"error": err.Error()}
	}

	resp := req.Reply(
		h.ids.GenerateWithPrefix(id.MessagePrefix),
		h.ids.SpanID().String(),
		h.nodeID,
		payload,
		time.Now().UnixMilli(),
	)
	data, err := bridge.EncodeMessage(resp)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}
