package ws

import (
	"sync"
	"sync/atomic"

	"github.com/magdyzaki/Karas-Chat-sub000/internal/metrics"
)

// Hub 同时承担两个角色：按用户的会话注册表（unicast 寻址）和
// 按会话懒加载的房间集合（broadcast 扇出）。房间事件由单 goroutine
// 顺序投递，保证同一会话内事件有序；跨会话不保证顺序。
type Hub struct {
	mu        sync.RWMutex
	rooms     map[string]*RoomHub
	sessions  map[uint]map[*Client]bool
	onOffline []func(userID uint)
}

func NewHub() *Hub {
	return &Hub{
		rooms:    make(map[string]*RoomHub),
		sessions: make(map[uint]map[*Client]bool),
	}
}

// OnUserOffline 注册回调：某用户最后一个会话断开时触发。
// 呼叫中继用它合成 call_ended。必须在接入流量前注册完毕。
func (h *Hub) OnUserOffline(fn func(userID uint)) {
	h.mu.Lock()
	h.onOffline = append(h.onOffline, fn)
	h.mu.Unlock()
}

// Register 将一个新连接登记到用户的会话集合。
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	set := h.sessions[c.userID]
	if set == nil {
		set = make(map[*Client]bool)
		h.sessions[c.userID] = set
	}
	set[c] = true
	h.mu.Unlock()
	metrics.WsConnections.Inc()
}

// Unregister 原子地把连接从注册表和它加入过的所有房间移除。
// 已被存储接受的消息不受影响。
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	var lastSession bool
	if set, ok := h.sessions[c.userID]; ok && set[c] {
		delete(set, c)
		if len(set) == 0 {
			delete(h.sessions, c.userID)
			lastSession = true
		}
		metrics.WsConnections.Dec()
	}
	joined := make([]*RoomHub, 0, len(c.rooms))
	for _, rh := range c.rooms {
		joined = append(joined, rh)
	}
	c.rooms = nil
	hooks := h.onOffline
	h.mu.Unlock()

	for _, rh := range joined {
		rh.leave <- c
	}
	c.closeOnce.Do(func() { close(c.done) })
	if lastSession {
		for _, fn := range hooks {
			fn(c.userID)
		}
	}
}

// SessionCount 返回用户当前打开的会话数，0 表示离线。
func (h *Hub) SessionCount(userID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[userID])
}

// JoinRoom 让单个连接订阅某会话的广播。订阅按连接计，
// 同一用户的多个连接需各自加入。
func (h *Hub) JoinRoom(c *Client, conversationID string) {
	rh := h.getRoom(conversationID)
	h.mu.Lock()
	if c.rooms == nil {
		c.rooms = make(map[string]*RoomHub)
	}
	if _, ok := c.rooms[conversationID]; ok {
		h.mu.Unlock()
		return
	}
	c.rooms[conversationID] = rh
	h.mu.Unlock()
	rh.join <- c
}

// LeaveRoom 取消单个连接对某会话的订阅。
func (h *Hub) LeaveRoom(c *Client, conversationID string) {
	h.mu.Lock()
	rh, ok := c.rooms[conversationID]
	if ok {
		delete(c.rooms, conversationID)
	}
	h.mu.Unlock()
	if ok {
		rh.leave <- c
	}
}

// BroadcastToConversation 投递给当前订阅该会话房间的全部连接。
// 无人订阅时直接丢弃：掉线成员经追赶读取恢复。
func (h *Hub) BroadcastToConversation(conversationID string, event []byte) {
	if event == nil {
		return
	}
	h.mu.RLock()
	rh := h.rooms[conversationID]
	h.mu.RUnlock()
	if rh == nil {
		return
	}
	rh.broadcast <- event
}

// UnicastToUser 投递给某用户的全部连接，用于按人寻址的信令。
func (h *Hub) UnicastToUser(userID uint, event []byte) {
	if event == nil {
		return
	}
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.sessions[userID]))
	for c := range h.sessions[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	for _, c := range targets {
		c.deliver(event)
	}
}

// Online 返回房间当前订阅连接数。
func (h *Hub) Online(conversationID string) int {
	h.mu.RLock()
	rh := h.rooms[conversationID]
	h.mu.RUnlock()
	if rh == nil {
		return 0
	}
	return rh.Online()
}

// getRoom 懒加载房间并启动其投递 goroutine。
func (h *Hub) getRoom(conversationID string) *RoomHub {
	h.mu.RLock()
	rh := h.rooms[conversationID]
	h.mu.RUnlock()
	if rh != nil {
		return rh
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	rh = h.rooms[conversationID]
	if rh != nil {
		return rh
	}
	rh = NewRoomHub(conversationID)
	h.rooms[conversationID] = rh
	go rh.run()
	return rh
}

// RoomHub 是单个会话的投递单元，join/leave/broadcast 都经同一个
// goroutine 串行处理。
type RoomHub struct {
	conversationID string
	clients        map[*Client]bool
	join           chan *Client
	leave          chan *Client
	broadcast      chan []byte
	online         int32
}

func NewRoomHub(conversationID string) *RoomHub {
	return &RoomHub{
		conversationID: conversationID,
		clients:        make(map[*Client]bool),
		join:           make(chan *Client),
		leave:          make(chan *Client),
		broadcast:      make(chan []byte, 256),
	}
}

func (rh *RoomHub) run() {
	for {
		select {
		case c := <-rh.join:
			rh.clients[c] = true
			atomic.StoreInt32(&rh.online, int32(len(rh.clients)))
		case c := <-rh.leave:
			if rh.clients[c] {
				delete(rh.clients, c)
				atomic.StoreInt32(&rh.online, int32(len(rh.clients)))
			}
		case msg := <-rh.broadcast:
			for c := range rh.clients {
				c.deliver(msg)
			}
		}
	}
}

// Online 返回房间订阅数，供 REST 与指标复用。
func (rh *RoomHub) Online() int { return int(atomic.LoadInt32(&rh.online)) }
