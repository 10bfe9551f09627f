// Package push 把订单生命周期事件实时推送给在线的顾客和商家。
package push

import (
	"context"
	"sync"

	"tiffin/internal/pkg/logger"
)

// Hub 维护所有活跃的连接。同一个订阅键（用户或商家 ID）可以有多台设备在线。
type Hub struct {
	nodeID     string
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	lock       sync.RWMutex
}

func NewHub(nodeID string) *Hub {
	return &Hub{
		nodeID:     nodeID,
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run 处理注册与注销，ctx 结束时关闭所有连接。
func (h *Hub) Run(ctx context.Context) error {
	log := logger.Ctx(ctx)
	for {
		select {
		case client := <-h.register:
			h.lock.Lock()
			for _, key := range client.keys {
				if h.clients[key] == nil {
					h.clients[key] = make(map[*Client]struct{})
				}
				h.clients[key][client] = struct{}{}
			}
			h.lock.Unlock()
			log.Info().Strs("keys", client.keys).Str("node", h.nodeID).Msg("Client registered")
		case client := <-h.unregister:
			h.remove(client)
			log.Info().Strs("keys", client.keys).Msg("Client unregistered")
		case <-ctx.Done():
			close(h.done)
			h.lock.Lock()
			for _, set := range h.clients {
				for c := range set {
					c.closeSend()
				}
			}
			h.clients = make(map[string]map[*Client]struct{})
			h.lock.Unlock()
			return nil
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.lock.Lock()
	defer h.lock.Unlock()
	for _, key := range client.keys {
		if set, ok := h.clients[key]; ok {
			delete(set, client)
			if len(set) == 0 {
				delete(h.clients, key)
			}
		}
	}
	client.closeSend()
}

// Deliver 把消息投递给订阅键下的所有连接，返回投递成功的连接数。
// 发送缓冲已满的慢连接会被丢弃，由客户端重连后重新拉取订单状态。
func (h *Hub) Deliver(key string, payload []byte) int {
	if key == "" {
		return 0
	}
	h.lock.RLock()
	targets := make([]*Client, 0, len(h.clients[key]))
	for c := range h.clients[key] {
		targets = append(targets, c)
	}
	h.lock.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.enqueue(payload) {
			delivered++
			continue
		}
		go h.leave(c)
	}
	return delivered
}

// Online 返回订阅键下的在线连接数。
func (h *Hub) Online(key string) int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.clients[key])
}

// join 注册连接，Hub 已停止时返回 false。
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
