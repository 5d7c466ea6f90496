package call

import (
	"encoding/json"
	"sync"

	"github.com/magdyzaki/Karas-Chat-sub000/internal/metrics"
	"github.com/magdyzaki/Karas-Chat-sub000/internal/service"

	"github.com/rs/zerolog/log"
)

// 呼叫信令事件类型。
const (
	EventIncomingCall = "incoming_call"
	EventWebRTCSignal = "webrtc_signal"
	EventCallRejected = "call_rejected"
	EventCallEnded    = "call_ended"
)

// Hub 是中继对实时层的最小依赖：按人单播、按会话广播。
type Hub interface {
	UnicastToUser(userID uint, event []byte)
	BroadcastToConversation(conversationID string, event []byte)
}

// Directory 是中继对会话目录的最小依赖。
type Directory interface {
	IsMember(conversationID string, userID uint) (bool, error)
	IsDirect(conversationID string) (bool, error)
	MemberIDs(conversationID string) ([]uint, error)
	DisplayName(userID uint) (string, error)
}

// 一次呼叫的双方，按会话 ID 登记。登记只为断线合成 call_ended，
// 信令本身不经过任何校验或排队，转发即忘。
type active struct {
	a, b uint
}

// Relay 在恰好两名成员的单聊里转发 WebRTC 握手载荷。载荷对中继
// 不透明（SDP/ICE 语义由两端负责），唯一的不变量是寻址：发给
// toUserID 的信令只会到达该用户的连接。
type Relay struct {
	hub Hub
	dir Directory

	mu    sync.Mutex
	calls map[string]active
}

func NewRelay(hub Hub, dir Directory) *Relay {
	return &Relay{hub: hub, dir: dir, calls: make(map[string]active)}
}

// event 是呼叫信令的出站信封。
type event struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id"`
	FromUserID     uint            `json:"from_user_id,omitempty"`
	CallerName     string          `json:"caller_name,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

func (e event) encode() []byte {
	b, err := json.Marshal(e)
	if err != nil {
		return nil
	}
	return b
}

// Start 发起呼叫：登记双方并向被叫的全部连接推送 incoming_call。
// 只允许在恰好两人的单聊中发起。
func (r *Relay) Start(conversationID string, callerID uint) error {
	calleeID, err := r.peer(conversationID, callerID)
	if err != nil {
		return err
	}
	name, err := r.dir.DisplayName(callerID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	if _, ok := r.calls[conversationID]; !ok {
		r.calls[conversationID] = active{a: callerID, b: calleeID}
		metrics.CallsActive.Inc()
	}
	r.mu.Unlock()
	r.hub.UnicastToUser(calleeID, event{
		Type:           EventIncomingCall,
		ConversationID: conversationID,
		FromUserID:     callerID,
		CallerName:     name,
	}.encode())
	return nil
}

// Signal 把一条握手载荷（offer/answer/ICE candidate）转发给目标用户。
// 不保证多条 candidate 之间的顺序。
func (r *Relay) Signal(conversationID string, fromID, toID uint, payload json.RawMessage) error {
	if toID == 0 || len(payload) == 0 {
		return service.ErrInvalid
	}
	if expect, err := r.peer(conversationID, fromID); err != nil {
		return err
	} else if toID != expect {
		return service.ErrAuthorizationDenied
	}
	r.hub.UnicastToUser(toID, event{
		Type:           EventWebRTCSignal,
		ConversationID: conversationID,
		FromUserID:     fromID,
		Payload:        payload,
	}.encode())
	return nil
}

// Reject 被叫拒接：只通知主叫，目标由拒接方提供。
func (r *Relay) Reject(conversationID string, fromID, toID uint) error {
	if expect, err := r.peer(conversationID, fromID); err != nil {
		return err
	} else if toID != expect {
		return service.ErrAuthorizationDenied
	}
	r.clear(conversationID)
	r.hub.UnicastToUser(toID, event{
		Type:           EventCallRejected,
		ConversationID: conversationID,
		FromUserID:     fromID,
	}.encode())
	return nil
}

// Hangup 任一方挂断即对双方结束，广播到会话房间。
func (r *Relay) Hangup(conversationID string, fromID uint) error {
	if _, err := r.peer(conversationID, fromID); err != nil {
		return err
	}
	r.clear(conversationID)
	r.hub.BroadcastToConversation(conversationID, event{
		Type:           EventCallEnded,
		ConversationID: conversationID,
		FromUserID:     fromID,
	}.encode())
	return nil
}

// HandleUserOffline 在用户最后一个会话断开时合成 call_ended，
// 避免对端停留在已死亡的通话里。注册为 Hub 的离线回调。
func (r *Relay) HandleUserOffline(userID uint) {
	r.mu.Lock()
	ended := make([]string, 0, 1)
	for convID, call := range r.calls {
		if call.a == userID || call.b == userID {
			delete(r.calls, convID)
			metrics.CallsActive.Dec()
			ended = append(ended, convID)
		}
	}
	r.mu.Unlock()
	for _, convID := range ended {
		log.Info().Uint("user_id", userID).Str("conversation_id", convID).Msg("call ended by disconnect")
		r.hub.BroadcastToConversation(convID, event{
			Type:           EventCallEnded,
			ConversationID: convID,
			FromUserID:     userID,
		}.encode())
	}
}

// Active 报告会话当前是否有登记中的呼叫。
func (r *Relay) Active(conversationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.calls[conversationID]
	return ok
}

// peer 校验会话是两人单聊且 from 是成员，返回另一名成员。
func (r *Relay) peer(conversationID string, fromID uint) (uint, error) {
	ok, err := r.dir.IsMember(conversationID, fromID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, service.ErrAuthorizationDenied
	}
	direct, err := r.dir.IsDirect(conversationID)
	if err != nil {
		return 0, err
	}
	if !direct {
		return 0, service.ErrInvalid
	}
	ids, err := r.dir.MemberIDs(conversationID)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if id != fromID {
			return id, nil
		}
	}
	return 0, service.ErrNotFound
}

func (r *Relay) clear(conversationID string) {
	r.mu.Lock()
	if _, ok := r.calls[conversationID]; ok {
		delete(r.calls, conversationID)
		metrics.CallsActive.Dec()
	}
	r.mu.Unlock()
}
