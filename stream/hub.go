// Package stream 将仿真事件通过 WebSocket 推送给外部订阅者。
package stream

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"dealer-market-go/infrastructure/logger"
	"dealer-market-go/market"
)

// Envelope 推送消息的统一外层。
type Envelope struct {
	Type string      `json:"type"` // step 或 trade
	Data interface{} `json:"data"`
}

const clientBuffer = 64

// Hub 管理 WebSocket 客户端并广播事件。
// 写不进缓冲的慢客户端直接断开，广播路径从不阻塞。
type Hub struct {
	log      *logger.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub 创建空的广播中心。
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP 升级连接并注册客户端，实现 http.Handler。
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Info("stream client connected", zap.Int("clients", n))

	go h.writeLoop(c)
	go h.readLoop(c)
}

// BroadcastStep 推送单步汇总。
func (h *Hub) BroadcastStep(e market.StepEvent) {
	h.broadcast(Envelope{Type: "step", Data: e})
}

// BroadcastTrade 推送单笔成交。
func (h *Hub) BroadcastTrade(e market.TradeEvent) {
	h.broadcast(Envelope{Type: "trade", Data: e})
}

func (h *Hub) broadcast(env Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		h.log.Error("stream marshal failed", zap.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			// 慢客户端：断开而不是拖慢仿真。
			delete(h.clients, c)
			close(c.send)
			h.log.Warn("stream client dropped: send buffer full")
		}
	}
}

// Pump 消费发布器的事件直到两个通道都关闭。
func (h *Hub) Pump(steps <-chan market.StepEvent, trades <-chan market.TradeEvent) {
	for steps != nil || trades != nil {
		select {
		case e, ok := <-steps:
			if !ok {
				steps = nil
				continue
			}
			h.BroadcastStep(e)
		case e, ok := <-trades:
			if !ok {
				trades = nil
				continue
			}
			h.BroadcastTrade(e)
		}
	}
}

// ClientCount 当前在线客户端数。
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close 断开全部客户端并拒绝新连接。
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.remove(c)
			return
		}
	}
}

// readLoop 只为感知断开，丢弃入站消息。
func (h *Hub) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.remove(c)
			return
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}
