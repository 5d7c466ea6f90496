package models

import "time"

// 会话类型与消息类型常量。
const (
	ConversationDirect = "direct"
	ConversationGroup  = "group"

	MessageText     = "text"
	MessageImage    = "image"
	MessageFile     = "file"
	MessageVoice    = "voice"
	MessageLocation = "location"
)

type User struct {
	ID          uint   `gorm:"primaryKey"`
	Username    string `gorm:"uniqueIndex;size:64;not null"`
	DisplayName string `gorm:"size:128"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Conversation 由外部协作方创建和维护成员关系，引擎只读取。
type Conversation struct {
	ID        string `gorm:"primaryKey;size:36"`
	Kind      string `gorm:"size:16;not null"`
	Name      string `gorm:"size:128"`
	CreatorID uint   `gorm:"not null"`
	CreatedAt time.Time
}

type ConversationMember struct {
	ConversationID string `gorm:"primaryKey;size:36"`
	UserID         uint   `gorm:"primaryKey"`
	JoinedAt       time.Time
}

// Message 创建后只有删除标记会被修改，记录本身永不物理删除。
// DeletedForAll 置位时 Content/FileName 被清空，不可恢复。
type Message struct {
	ID             uint   `gorm:"primaryKey"`
	ConversationID string `gorm:"index:idx_msg_conversation;size:36;not null"`
	SenderID       uint   `gorm:"index;not null"`
	Kind           string `gorm:"size:16;not null"`
	Content        string `gorm:"type:text"`
	FileName       string `gorm:"size:255"`
	ReplyToID      *uint
	ReplySnippet   string `gorm:"size:100"`
	ClientTag      string `gorm:"size:36"`
	DeletedForAll  bool   `gorm:"not null;default:false"`
	CreatedAt      time.Time
}

// MessageHidden 记录某条消息对某个用户单方面隐藏（delete for me）。
type MessageHidden struct {
	MessageID uint `gorm:"primaryKey"`
	UserID    uint `gorm:"primaryKey"`
	CreatedAt time.Time
}

// ReadWatermark 每个 (会话, 用户) 至多一行，记录已读的最高消息 ID。
type ReadWatermark struct {
	ConversationID string `gorm:"primaryKey;size:36"`
	UserID         uint   `gorm:"primaryKey"`
	LastMessageID  uint   `gorm:"not null"`
	UpdatedAt      time.Time
}
