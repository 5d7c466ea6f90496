package service

import (
	"testing"
	"time"

	"github.com/magdyzaki/Karas-Chat-sub000/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// testDB opens an isolated in-memory sqlite database with the full schema.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	// a pooled second connection would see a different :memory: database
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, gdb.AutoMigrate(
		&models.User{},
		&models.Conversation{},
		&models.ConversationMember{},
		&models.Message{},
		&models.MessageHidden{},
		&models.ReadWatermark{},
	))
	return gdb
}

// seedConversation creates a conversation with the given members.
func seedConversation(t *testing.T, gdb *gorm.DB, id, kind string, members ...uint) {
	t.Helper()
	require.NoError(t, gdb.Create(&models.Conversation{ID: id, Kind: kind, CreatorID: members[0], CreatedAt: time.Now()}).Error)
	for _, uid := range members {
		require.NoError(t, gdb.Create(&models.ConversationMember{ConversationID: id, UserID: uid, JoinedAt: time.Now()}).Error)
	}
}

func seedUser(t *testing.T, gdb *gorm.DB, id uint, username, display string) {
	t.Helper()
	require.NoError(t, gdb.Create(&models.User{ID: id, Username: username, DisplayName: display}).Error)
}
