package service

import (
	"errors"
	"time"

	"github.com/magdyzaki/Karas-Chat-sub000/internal/models"

	"gorm.io/gorm"
)

// ReceiptService 维护每个 (会话, 用户) 的已读水位线。
type ReceiptService struct {
	db *gorm.DB
}

func NewReceiptService(db *gorm.DB) *ReceiptService {
	return &ReceiptService{db: db}
}

// WatermarkDTO 是对外输出的水位线数据。
type WatermarkDTO struct {
	ConversationID string    `json:"conversation_id"`
	UserID         uint      `json:"user_id"`
	LastMessageID  uint      `json:"last_message_id"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SetRead 更新已读水位线。水位线单调不回退：落后的 lastMessageID
// 不生效，直接返回当前行。多设备乱序上报因此是安全的。
func (s *ReceiptService) SetRead(conversationID string, userID uint, lastMessageID uint) (*WatermarkDTO, error) {
	if lastMessageID == 0 {
		return nil, ErrInvalid
	}
	var out WatermarkDTO
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var wm models.ReadWatermark
		err := tx.Where("conversation_id = ? AND user_id = ?", conversationID, userID).First(&wm).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			wm = models.ReadWatermark{ConversationID: conversationID, UserID: userID, LastMessageID: lastMessageID}
			if err := tx.Create(&wm).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		case lastMessageID > wm.LastMessageID:
			wm.LastMessageID = lastMessageID
			if err := tx.Save(&wm).Error; err != nil {
				return err
			}
		}
		out = WatermarkDTO{ConversationID: wm.ConversationID, UserID: wm.UserID, LastMessageID: wm.LastMessageID, UpdatedAt: wm.UpdatedAt}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAll 返回会话内全部成员的水位线，供客户端计算 "seen by" 指示。
func (s *ReceiptService) GetAll(conversationID string) ([]WatermarkDTO, error) {
	var rows []models.ReadWatermark
	err := s.db.Where("conversation_id = ?", conversationID).Order("user_id").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]WatermarkDTO, 0, len(rows))
	for _, r := range rows {
		out = append(out, WatermarkDTO{ConversationID: r.ConversationID, UserID: r.UserID, LastMessageID: r.LastMessageID, UpdatedAt: r.UpdatedAt})
	}
	return out, nil
}
