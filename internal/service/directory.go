package service

import (
	"errors"

	"github.com/magdyzaki/Karas-Chat-sub000/internal/models"

	"gorm.io/gorm"
)

// DirectoryService 提供会话与成员关系的只读视图。
// 成员的增删由外部协作方负责，引擎只做查询与鉴权。
type DirectoryService struct {
	db *gorm.DB
}

func NewDirectoryService(db *gorm.DB) *DirectoryService {
	return &DirectoryService{db: db}
}

// Get 按 ID 查询会话。
func (s *DirectoryService) Get(conversationID string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := s.db.First(&conv, "id = ?", conversationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &conv, nil
}

// IsMember 判断用户是否为会话成员。
func (s *DirectoryService) IsMember(conversationID string, userID uint) (bool, error) {
	var count int64
	err := s.db.Model(&models.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// MemberIDs 返回会话全部成员的用户 ID。
func (s *DirectoryService) MemberIDs(conversationID string) ([]uint, error) {
	var ids []uint
	err := s.db.Model(&models.ConversationMember{}).
		Where("conversation_id = ?", conversationID).
		Order("user_id").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// IsDirect 判断会话是否为恰好两人的单聊，呼叫信令只允许在此类会话中发起。
func (s *DirectoryService) IsDirect(conversationID string) (bool, error) {
	conv, err := s.Get(conversationID)
	if err != nil {
		return false, err
	}
	if conv.Kind != models.ConversationDirect {
		return false, nil
	}
	ids, err := s.MemberIDs(conversationID)
	if err != nil {
		return false, err
	}
	return len(ids) == 2, nil
}

// DisplayName 返回用户的展示名，缺省回退到用户名。
func (s *DirectoryService) DisplayName(userID uint) (string, error) {
	var user models.User
	if err := s.db.Select("username", "display_name").First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	if user.DisplayName != "" {
		return user.DisplayName, nil
	}
	return user.Username, nil
}

// ConversationDTO 是会话列表接口的输出数据。
type ConversationDTO struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Name        string `json:"name"`
	MemberIDs   []uint `json:"member_ids"`
	LastMessage string `json:"last_message,omitempty"`
	Unread      int64  `json:"unread"`
}

// ListForUser 返回用户所在的全部会话，附带最后一条可见消息摘要与未读数。
func (s *DirectoryService) ListForUser(userID uint) ([]ConversationDTO, error) {
	var memberships []models.ConversationMember
	if err := s.db.Where("user_id = ?", userID).Find(&memberships).Error; err != nil {
		return nil, err
	}
	out := make([]ConversationDTO, 0, len(memberships))
	for _, m := range memberships {
		conv, err := s.Get(m.ConversationID)
		if err != nil {
			return nil, err
		}
		ids, err := s.MemberIDs(m.ConversationID)
		if err != nil {
			return nil, err
		}
		dto := ConversationDTO{ID: conv.ID, Kind: conv.Kind, Name: conv.Name, MemberIDs: ids}

		var last models.Message
		err = s.db.Where("conversation_id = ? AND deleted_for_all = ?", conv.ID, false).
			Order("id desc").First(&last).Error
		if err == nil {
			dto.LastMessage = snippet(last.Content, 100)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}

		var wm models.ReadWatermark
		var seen uint
		err = s.db.Where("conversation_id = ? AND user_id = ?", conv.ID, userID).First(&wm).Error
		if err == nil {
			seen = wm.LastMessageID
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		err = s.db.Model(&models.Message{}).
			Where("conversation_id = ? AND id > ? AND sender_id <> ?", conv.ID, seen, userID).
			Count(&dto.Unread).Error
		if err != nil {
			return nil, err
		}
		out = append(out, dto)
	}
	return out, nil
}
