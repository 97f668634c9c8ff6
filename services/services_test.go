package services

import (
	"log/slog"
	"path/filepath"
	"testing"

	"merry-chat/config"
	"merry-chat/repository"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type stores struct {
	users    *repository.GormUserRepo
	chats    *repository.BadgerChatRepo
	messages *repository.BadgerMessageRepo
}

func newStores(t *testing.T) stores {
	t.Helper()
	req := require.New(t)

	kv, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	t.Cleanup(func() { _ = kv.Close() })

	sql, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "users.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	req.NoError(err)
	req.NoError(repository.Migrate(sql))
	t.Cleanup(func() {
		if sqlDB, err := sql.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	return stores{
		users:    repository.NewGormUserRepo(sql),
		chats:    repository.NewBadgerChatRepo(kv, slog.Default()),
		messages: repository.NewBadgerMessageRepo(kv, slog.Default(), nil),
	}
}

func testConfig() *config.Config {
	return &config.Config{JWTSecret: "test-secret", JWTExpiry: 1}
}
