package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/qs3c/tos_scan_server/internal/pkg/metrics"
	"github.com/qs3c/tos_scan_server/internal/pkg/pubsub"
)

const writeTimeout = 5 * time.Second

// Hub 按用户分组的进度推送连接，同一用户可以同时打开多个页面
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]map[*Client]struct{}
}

type Client struct {
	UserID int64
	Conn   *websocket.Conn

	writeMu sync.Mutex
}

func (c *Client) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

func NewHub() *Hub {
	return &Hub{clients: make(map[int64]map[*Client]struct{})}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	conns := h.clients[client.UserID]
	if conns == nil {
		conns = make(map[*Client]struct{})
		h.clients[client.UserID] = conns
	}
	conns[client] = struct{}{}
	n := len(conns)
	h.mu.Unlock()

	metrics.WSConnections.Inc()
	log.WithFields(log.Fields{"user_id": client.UserID, "user_conns": n}).Debug("ws: progress client connected")
}

// Unregister 可重复调用
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	conns, ok := h.clients[client.UserID]
	if ok {
		_, ok = conns[client]
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.clients, client.UserID)
		}
	}
	h.mu.Unlock()

	if ok {
		metrics.WSConnections.Dec()
		log.WithField("user_id", client.UserID).Debug("ws: progress client disconnected")
	}
}

func (h *Hub) snapshot(userID int64) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := h.clients[userID]
	out := make([]*Client, 0, len(conns))
	for c := range conns {
		out = append(out, c)
	}
	return out
}

// SendToUser 推送给用户的全部连接，写失败的连接直接摘除
func (h *Hub) SendToUser(userID int64, v interface{}) error {
	clients := h.snapshot(userID)
	if len(clients) == 0 {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	for _, c := range clients {
		if err := c.write(data); err != nil {
			log.WithError(err).WithField("user_id", userID).Warn("ws: write failed, dropping connection")
			h.Unregister(c)
			_ = c.Conn.Close()
		}
	}
	return nil
}

// HandleProgress 转发一条分析进度
func (h *Hub) HandleProgress(msg *pubsub.ProgressMessage) {
	_ = h.SendToUser(msg.UserID, msg)
}

// Forward 把 Redis 上的分析进度转发给本进程的连接，阻塞直到 ctx 结束
func (h *Hub) Forward(ctx context.Context, sub *pubsub.Subscriber) error {
	return sub.Subscribe(ctx, h.HandleProgress)
}

// PublishProgress 单实例部署时直接推送，不经过 Redis
func (h *Hub) PublishProgress(_ context.Context, msg *pubsub.ProgressMessage) error {
	pubsub.Fill(msg)
	h.HandleProgress(msg)
	return nil
}

func (h *Hub) IsOnline(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, conns := range h.clients {
		total += len(conns)
	}
	return total
}
