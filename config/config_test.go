package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	req := require.New(t)

	cfg, err := Load()
	req.NoError(err)
	req.Equal("8081", cfg.Port)
	req.Equal(EchoAll, cfg.EchoPolicy)
	req.Equal(PersistAsync, cfg.PersistMode)
	req.Equal(1000, cfg.MaxMessageLength)
	req.Nil(cfg.HistoryLimit)
	req.False(cfg.EnforceRoomMembership)
	req.Equal(30*time.Second, cfg.ShutdownTimeout)
	req.Equal(24*time.Hour, cfg.JWTTTL())
}

func TestLoad_FromEnvironment(t *testing.T) {
	req := require.New(t)
	t.Setenv("PORT", "9000")
	t.Setenv("ECHO_POLICY", "others")
	t.Setenv("PERSIST_MODE", "sync")
	t.Setenv("HISTORY_LIMIT", "50")
	t.Setenv("ENFORCE_ROOM_MEMBERSHIP", "true")
	t.Setenv("SHUTDOWN_TIMEOUT", "5s")

	cfg, err := Load()
	req.NoError(err)
	req.Equal("9000", cfg.Port)
	req.Equal(EchoOthers, cfg.EchoPolicy)
	req.Equal(PersistSync, cfg.PersistMode)
	req.NotNil(cfg.HistoryLimit)
	req.Equal(50, *cfg.HistoryLimit)
	req.True(cfg.EnforceRoomMembership)
	req.Equal(5*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_RejectsUnknownPolicy(t *testing.T) {
	t.Setenv("ECHO_POLICY", "nobody")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadClient(t *testing.T) {
	req := require.New(t)
	t.Setenv("CHAT_ROOM_ID", "r1")
	t.Setenv("CHAT_COLOURS", "false")

	cfg, err := LoadClient()
	req.NoError(err)
	req.Equal("http://localhost:8081", cfg.ServerURL)
	req.Equal("r1", cfg.RoomID)
	req.False(cfg.Colours)
}
