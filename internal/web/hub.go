package web

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vitos/ha_trader/internal/domain"
)

const (
	clientBuffer = 32
	writeWait    = 5 * time.Second
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// DecisionHub fans every published decision out to the connected websocket clients.
// A client that cannot keep up is disconnected rather than slowing the engine.
type DecisionHub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
	logger  *zap.Logger
}

func NewDecisionHub(logger *zap.Logger) *DecisionHub {
	return &DecisionHub{
		clients: make(map[*wsClient]struct{}),
		logger:  logger,
	}
}

// Publish implements domain.DecisionSink. It never blocks.
func (h *DecisionHub) Publish(decision domain.TradeDecision) {
	msg, err := json.Marshal(decision)
	if err != nil {
		h.logger.Error("Failed to encode decision", zap.String("pair", decision.Pair), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("Dropping slow websocket client", zap.String("remote", c.conn.RemoteAddr().String()))
			delete(h.clients, c)
			close(c.send)
		}
	}
}

func (h *DecisionHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *DecisionHub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *DecisionHub) unregister(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// ServeWS upgrades the request and streams decisions until the client goes away.
func (h *DecisionHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, clientBuffer)}
	h.register(c)
	h.logger.Info("Websocket client connected", zap.String("remote", conn.RemoteAddr().String()))

	// Reads only detect the close; clients never send anything meaningful.
	go func() {
		defer h.unregister(c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer conn.Close()
	for msg := range c.send {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Debug("Websocket write failed", zap.Error(err))
			h.unregister(c)
			return
		}
	}
}
