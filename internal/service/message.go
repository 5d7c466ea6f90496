package service

import (
	"errors"
	"strings"
	"time"

	"github.com/magdyzaki/Karas-Chat-sub000/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageService 封装消息日志的全部读写：追加、分页读取、两种软删除。
// 成员鉴权由调用方完成，这里不再重复检查。
type MessageService struct {
	db *gorm.DB
}

func NewMessageService(db *gorm.DB) *MessageService {
	return &MessageService{db: db}
}

// AppendInput 是一次发送意图携带的字段，Content 对引擎是不透明的。
type AppendInput struct {
	ConversationID string
	SenderID       uint
	Kind           string
	Content        string
	FileName       string
	ReplyToID      *uint
	ReplySnippet   string
	ClientTag      string
}

// MessageDTO 是对外输出的消息数据。被删除的消息保持形状不变：
// 内容与文件名置空、类型回退为 text、Deleted 置位。
type MessageDTO struct {
	Type           string    `json:"type"`
	ID             uint      `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       uint      `json:"sender_id"`
	Kind           string    `json:"kind"`
	Content        string    `json:"content"`
	FileName       string    `json:"file_name,omitempty"`
	ReplyToID      *uint     `json:"reply_to_id,omitempty"`
	ReplySnippet   string    `json:"reply_snippet,omitempty"`
	ClientTag      string    `json:"client_tag,omitempty"`
	Deleted        bool      `json:"deleted"`
	CreatedAt      time.Time `json:"created_at"`
}

var validKinds = map[string]bool{
	models.MessageText:     true,
	models.MessageImage:    true,
	models.MessageFile:     true,
	models.MessageVoice:    true,
	models.MessageLocation: true,
}

// Append 持久化一条消息并返回权威记录。ID 由主键自增分配，
// 同一会话内严格递增，水位线比较依赖该性质。
func (s *MessageService) Append(in AppendInput) (*MessageDTO, error) {
	if !validKinds[in.Kind] {
		return nil, ErrInvalid
	}
	if in.Kind == models.MessageText && strings.TrimSpace(in.Content) == "" {
		return nil, ErrInvalid
	}
	msg := models.Message{
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		Kind:           in.Kind,
		Content:        in.Content,
		FileName:       in.FileName,
		ReplyToID:      in.ReplyToID,
		ReplySnippet:   snippet(in.ReplySnippet, 100),
		ClientTag:      in.ClientTag,
	}
	if err := s.db.Create(&msg).Error; err != nil {
		return nil, err
	}
	dto := toDTO(msg, false)
	return &dto, nil
}

// List 按升序返回至多 limit 条消息，beforeID 用于向前翻页，
// viewerID 用于逐条套用删除遮罩。
func (s *MessageService) List(conversationID string, limit int, beforeID uint, viewerID uint) ([]MessageDTO, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := s.db.Where("conversation_id = ?", conversationID)
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}
	var msgs []models.Message
	if err := q.Order("id desc").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, err
	}

	// 反转为升序
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	hidden, err := s.hiddenFor(msgs, viewerID)
	if err != nil {
		return nil, err
	}
	out := make([]MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toDTO(m, hidden[m.ID]))
	}
	return out, nil
}

// hiddenFor 批量查询这批消息里对 viewer 单方面隐藏的 ID 集合。
func (s *MessageService) hiddenFor(msgs []models.Message, viewerID uint) (map[uint]bool, error) {
	hidden := make(map[uint]bool)
	if viewerID == 0 || len(msgs) == 0 {
		return hidden, nil
	}
	ids := make([]uint, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	var rows []models.MessageHidden
	err := s.db.Where("message_id IN ? AND user_id = ?", ids, viewerID).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		hidden[r.MessageID] = true
	}
	return hidden, nil
}

// DeleteForMe 将消息对调用者隐藏。幂等：重复调用与一次效果相同。
func (s *MessageService) DeleteForMe(messageID uint, conversationID string, callerID uint) error {
	var msg models.Message
	err := s.db.Where("id = ? AND conversation_id = ?", messageID, conversationID).First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	row := models.MessageHidden{MessageID: messageID, UserID: callerID}
	return s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}

// DeleteForEveryone 由原发送者触发的破坏性删除：清空内容并置位标记，单向不可逆。
// 非发送者调用返回 ErrForbidden，内容保持原样。
func (s *MessageService) DeleteForEveryone(messageID uint, conversationID string, callerID uint) error {
	var msg models.Message
	err := s.db.Where("id = ? AND conversation_id = ?", messageID, conversationID).First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	if msg.SenderID != callerID {
		return ErrForbidden
	}
	return s.db.Model(&models.Message{}).Where("id = ?", messageID).
		Updates(map[string]interface{}{
			"content":         "",
			"file_name":       "",
			"deleted_for_all": true,
		}).Error
}

func toDTO(m models.Message, hiddenForViewer bool) MessageDTO {
	dto := MessageDTO{
		Type:           "message",
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Kind:           m.Kind,
		Content:        m.Content,
		FileName:       m.FileName,
		ReplyToID:      m.ReplyToID,
		ReplySnippet:   m.ReplySnippet,
		ClientTag:      m.ClientTag,
		CreatedAt:      m.CreatedAt,
	}
	if m.DeletedForAll || hiddenForViewer {
		dto.Kind = models.MessageText
		dto.Content = ""
		dto.FileName = ""
		dto.Deleted = true
	}
	return dto
}

func snippet(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
