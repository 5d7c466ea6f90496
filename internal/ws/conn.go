package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/magdyzaki/Karas-Chat-sub000/internal/auth"
	"github.com/magdyzaki/Karas-Chat-sub000/internal/call"
	"github.com/magdyzaki/Karas-Chat-sub000/internal/config"
	"github.com/magdyzaki/Karas-Chat-sub000/internal/metrics"
	"github.com/magdyzaki/Karas-Chat-sub000/internal/models"
	"github.com/magdyzaki/Karas-Chat-sub000/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Client 是一个已认证用户的单条活动连接。同一用户可以同时
// 持有多个 Client（多设备/多标签页）。
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	userID    uint
	uname     string
	rooms     map[string]*RoomHub
}

// deliver 尽力投递：发送缓冲满则丢弃，慢客户端经追赶读取恢复。
func (c *Client) deliver(event []byte) {
	select {
	case c.send <- event:
	default:
		metrics.WsEventsDroppedTotal.Inc()
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// inboundFrame 是客户端经活动连接提交的意图，按 Type 路由。
type inboundFrame struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id"`
	Kind           string          `json:"kind"`
	Content        string          `json:"content"`
	FileName       string          `json:"file_name"`
	ReplyToID      *uint           `json:"reply_to_id"`
	ReplySnippet   string          `json:"reply_snippet"`
	ClientTag      string          `json:"client_tag"`
	LastMessageID  uint            `json:"last_message_id"`
	To             uint            `json:"to"`
	Payload        json.RawMessage `json:"payload"`
}

// Deps 汇集连接处理所需的协作方。
type Deps struct {
	Cfg      config.Config
	DB       *gorm.DB
	Dir      *service.DirectoryService
	Messages *service.MessageService
	Receipts *service.ReceiptService
	Relay    *call.Relay
}

// Serve 完成 ws 握手：校验 token、解析用户、升级连接并启动读写泵。
func Serve(h *Hub, deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		// token 来自 Authorization 头或 query 参数（浏览器 ws 无法带头）
		authz := c.GetHeader("Authorization")
		token := c.Query("token")
		if token == "" && len(authz) > 7 && (authz[:7] == "Bearer " || authz[:7] == "bearer ") {
			token = authz[7:]
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		claims, err := auth.ParseAccessToken(token, deps.Cfg.JWTSecret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		var user models.User
		if err := deps.DB.First(&user, claims.UserID).Error; err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		client := &Client{
			hub:    h,
			conn:   conn,
			send:   make(chan []byte, 256),
			done:   make(chan struct{}),
			userID: user.ID,
			uname:  user.Username,
			rooms:  make(map[string]*RoomHub),
		}
		h.Register(client)

		go client.writePump()
		client.readPump(deps)
	}
}

func (c *Client) readPump(deps Deps) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(1 << 20) // 1MB
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var in inboundFrame
		if err := json.Unmarshal(data, &in); err != nil || in.ConversationID == "" {
			continue
		}
		c.route(deps, in)
	}
}

// route 按帧类型分发。所有失败只反馈给调用方自己的连接，
// 不向房间泄露任何信息。
func (c *Client) route(deps Deps, in inboundFrame) {
	switch in.Type {
	case "join":
		if !c.requireMember(deps, in.ConversationID) {
			return
		}
		c.hub.JoinRoom(c, in.ConversationID)
	case "leave":
		c.hub.LeaveRoom(c, in.ConversationID)
	case "send":
		c.handleSend(deps, in)
	case "typing":
		if !c.requireMember(deps, in.ConversationID) {
			return
		}
		c.hub.BroadcastToConversation(in.ConversationID, typingEvent(EventTyping, in.ConversationID, c.userID, c.uname))
	case "stop_typing":
		if !c.requireMember(deps, in.ConversationID) {
			return
		}
		c.hub.BroadcastToConversation(in.ConversationID, typingEvent(EventStopTyping, in.ConversationID, c.userID, c.uname))
	case "read":
		c.handleRead(deps, in)
	case "call_start":
		c.relayResult(in.ConversationID, deps.Relay.Start(in.ConversationID, c.userID))
	case "signal":
		c.relayResult(in.ConversationID, deps.Relay.Signal(in.ConversationID, c.userID, in.To, in.Payload))
	case "call_reject":
		c.relayResult(in.ConversationID, deps.Relay.Reject(in.ConversationID, c.userID, in.To))
	case "call_hangup":
		c.relayResult(in.ConversationID, deps.Relay.Hangup(in.ConversationID, c.userID))
	}
}

func (c *Client) handleSend(deps Deps, in inboundFrame) {
	if !c.requireMember(deps, in.ConversationID) {
		return
	}
	msg, err := deps.Messages.Append(service.AppendInput{
		ConversationID: in.ConversationID,
		SenderID:       c.userID,
		Kind:           in.Kind,
		Content:        in.Content,
		FileName:       in.FileName,
		ReplyToID:      in.ReplyToID,
		ReplySnippet:   in.ReplySnippet,
		ClientTag:      in.ClientTag,
	})
	if err != nil {
		c.deliver(errorEvent(in.ConversationID, errCode(err), "send rejected"))
		if !errors.Is(err, service.ErrInvalid) {
			log.Error().Err(err).Uint("user_id", c.userID).Str("conversation_id", in.ConversationID).Msg("append message")
		}
		return
	}
	metrics.WsMessagesTotal.Inc()
	c.hub.BroadcastToConversation(in.ConversationID, newMessageEvent(msg))
}

func (c *Client) handleRead(deps Deps, in inboundFrame) {
	if !c.requireMember(deps, in.ConversationID) {
		return
	}
	wm, err := deps.Receipts.SetRead(in.ConversationID, c.userID, in.LastMessageID)
	if err != nil {
		c.deliver(errorEvent(in.ConversationID, errCode(err), "read watermark rejected"))
		return
	}
	c.hub.BroadcastToConversation(in.ConversationID, readReceiptEvent(wm))
}

// requireMember 校验成员资格；失败时只向调用方连接回 error 事件。
func (c *Client) requireMember(deps Deps, conversationID string) bool {
	ok, err := deps.Dir.IsMember(conversationID, c.userID)
	if err != nil {
		log.Error().Err(err).Str("conversation_id", conversationID).Msg("membership lookup")
		c.deliver(errorEvent(conversationID, "internal", "membership lookup failed"))
		return false
	}
	if !ok {
		c.deliver(errorEvent(conversationID, "authorization_denied", "not a conversation member"))
		return false
	}
	return true
}

func (c *Client) relayResult(conversationID string, err error) {
	if err != nil {
		c.deliver(errorEvent(conversationID, errCode(err), "call signaling rejected"))
	}
}

func errCode(err error) string {
	switch {
	case errors.Is(err, service.ErrAuthorizationDenied):
		return "authorization_denied"
	case errors.Is(err, service.ErrNotFound):
		return "not_found"
	case errors.Is(err, service.ErrForbidden):
		return "forbidden"
	case errors.Is(err, service.ErrInvalid):
		return "invalid"
	default:
		return "internal"
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			_ = w.Close()
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
