package ws

import (
	"encoding/json"

	"github.com/magdyzaki/Karas-Chat-sub000/internal/service"
)

// 引擎向客户端推送的事件类型。
const (
	EventNewMessage  = "new_message"
	EventDeleted     = "message_deleted"
	EventTyping      = "user_typing"
	EventStopTyping  = "user_stop_typing"
	EventReadReceipt = "read_receipt"
	EventError       = "error"
)

// Event 是统一的出站事件信封，未用到的字段在序列化时省略。
type Event struct {
	Type           string              `json:"type"`
	ConversationID string              `json:"conversation_id,omitempty"`
	Message        *service.MessageDTO `json:"message,omitempty"`
	MessageID      uint                `json:"message_id,omitempty"`
	UserID         uint                `json:"user_id,omitempty"`
	Username       string              `json:"username,omitempty"`
	LastMessageID  uint                `json:"last_message_id,omitempty"`
	Code           string              `json:"code,omitempty"`
	Detail         string              `json:"detail,omitempty"`
}

func (e Event) encode() []byte {
	b, err := json.Marshal(e)
	if err != nil {
		return nil
	}
	return b
}

func newMessageEvent(msg *service.MessageDTO) []byte {
	return Event{Type: EventNewMessage, ConversationID: msg.ConversationID, Message: msg}.encode()
}

// DeletedEvent 由 REST 删除入口复用：广播（delete for everyone）
// 或只发给删除者本人的连接（delete for me）。
func DeletedEvent(conversationID string, messageID uint) []byte {
	return Event{Type: EventDeleted, ConversationID: conversationID, MessageID: messageID}.encode()
}

func typingEvent(typ, conversationID string, userID uint, username string) []byte {
	return Event{Type: typ, ConversationID: conversationID, UserID: userID, Username: username}.encode()
}

func readReceiptEvent(wm *service.WatermarkDTO) []byte {
	return Event{
		Type:           EventReadReceipt,
		ConversationID: wm.ConversationID,
		UserID:         wm.UserID,
		LastMessageID:  wm.LastMessageID,
	}.encode()
}

func errorEvent(conversationID, code, detail string) []byte {
	return Event{Type: EventError, ConversationID: conversationID, Code: code, Detail: detail}.encode()
}
