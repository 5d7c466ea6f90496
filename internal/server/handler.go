package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/magdyzaki/Karas-Chat-sub000/internal/auth"
	"github.com/magdyzaki/Karas-Chat-sub000/internal/service"
	"github.com/magdyzaki/Karas-Chat-sub000/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Handler 聚合引擎的 REST 入口：追赶读取、回执查询、两种删除。
// 发送与已读走 ws 通道，权威记录经广播回到发送者（见 ws 包）。
type Handler struct {
	dir      *service.DirectoryService
	messages *service.MessageService
	receipts *service.ReceiptService
	hub      *ws.Hub
	pageMax  int
}

func NewHandler(dir *service.DirectoryService, messages *service.MessageService, receipts *service.ReceiptService, hub *ws.Hub, pageMax int) *Handler {
	if pageMax <= 0 {
		pageMax = 200
	}
	return &Handler{dir: dir, messages: messages, receipts: receipts, hub: hub, pageMax: pageMax}
}

// ListConversations 返回调用方所在的全部会话。
func (h *Handler) ListConversations(c *gin.Context) {
	userID := auth.GetUserID(c)
	convs, err := h.dir.ListForUser(userID)
	if err != nil {
		log.Error().Err(err).Uint("user_id", userID).Msg("list conversations")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

// ListMessages 追赶读取：分页返回消息并套用调用方视角的删除遮罩。
// 这是错过实时事件后的唯一恢复路径。
func (h *Handler) ListMessages(c *gin.Context) {
	convID := c.Param("id")
	userID := auth.GetUserID(c)
	if !h.member(c, convID, userID) {
		return
	}
	limit := 50
	if v, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil && v > 0 {
		limit = v
	}
	if limit > h.pageMax {
		limit = h.pageMax
	}
	var beforeID uint
	if bid := c.Query("before_id"); bid != "" {
		if v, err := strconv.Atoi(bid); err == nil && v > 0 {
			beforeID = uint(v)
		}
	}
	msgs, err := h.messages.List(convID, limit, beforeID, userID)
	if err != nil {
		log.Error().Err(err).Str("conversation_id", convID).Msg("list messages")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// ListReceipts 返回会话内全部成员的已读水位线。
func (h *Handler) ListReceipts(c *gin.Context) {
	convID := c.Param("id")
	if !h.member(c, convID, auth.GetUserID(c)) {
		return
	}
	wms, err := h.receipts.GetAll(convID)
	if err != nil {
		log.Error().Err(err).Str("conversation_id", convID).Msg("list receipts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list receipts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"receipts": wms})
}

// DeleteForMe 把消息对调用方隐藏，事件只发给调用方自己的连接。
func (h *Handler) DeleteForMe(c *gin.Context) {
	convID, msgID, userID, ok := h.deleteArgs(c)
	if !ok {
		return
	}
	if err := h.messages.DeleteForMe(msgID, convID, userID); err != nil {
		h.deleteError(c, err, convID, msgID)
		return
	}
	h.hub.UnicastToUser(userID, ws.DeletedEvent(convID, msgID))
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// DeleteForEveryone 破坏性删除，成功后广播到会话房间。
func (h *Handler) DeleteForEveryone(c *gin.Context) {
	convID, msgID, userID, ok := h.deleteArgs(c)
	if !ok {
		return
	}
	if err := h.messages.DeleteForEveryone(msgID, convID, userID); err != nil {
		h.deleteError(c, err, convID, msgID)
		return
	}
	h.hub.BroadcastToConversation(convID, ws.DeletedEvent(convID, msgID))
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (h *Handler) deleteArgs(c *gin.Context) (string, uint, uint, bool) {
	convID := c.Param("id")
	mid, err := strconv.Atoi(c.Param("mid"))
	if err != nil || mid <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return "", 0, 0, false
	}
	userID := auth.GetUserID(c)
	if !h.member(c, convID, userID) {
		return "", 0, 0, false
	}
	return convID, uint(mid), userID, true
}

func (h *Handler) deleteError(c *gin.Context, err error, convID string, msgID uint) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "only the sender can delete for everyone"})
	default:
		log.Error().Err(err).Str("conversation_id", convID).Uint("message_id", msgID).Msg("delete message")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete message"})
	}
}

// member 校验调用方是会话成员；非成员收到显式 403，不泄露会话内容。
func (h *Handler) member(c *gin.Context, convID string, userID uint) bool {
	ok, err := h.dir.IsMember(convID, userID)
	if err != nil {
		log.Error().Err(err).Str("conversation_id", convID).Msg("membership lookup")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership lookup failed"})
		return false
	}
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "authorization denied"})
		return false
	}
	return true
}
