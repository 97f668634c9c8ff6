package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJWT_Generate_And_Parse(t *testing.T) {
	req := require.New(t)

	token, err := GenerateJWT("secret", "user-1", "alice", time.Hour)
	req.NoError(err)
	req.NotEmpty(token)

	uid, uname, err := ParseJWT("secret", token)
	req.NoError(err)
	req.Equal("user-1", uid)
	req.Equal("alice", uname)

	uid, uname, err = PeekJWT(token)
	req.NoError(err)
	req.Equal("user-1", uid)
	req.Equal("alice", uname)
}

func TestJWT_Wrong_Secret(t *testing.T) {
	token, err := GenerateJWT("secret", "user-1", "alice", time.Hour)
	require.NoError(t, err)

	_, _, err = ParseJWT("other", token)
	require.Error(t, err)
}

func TestJWT_Expired(t *testing.T) {
	token, err := GenerateJWT("secret", "user-1", "alice", -time.Minute)
	require.NoError(t, err)

	_, _, err = ParseJWT("secret", token)
	require.Error(t, err)
}

func TestJWT_Empty(t *testing.T) {
	_, _, err := ParseJWT("secret", "")
	require.Error(t, err)
}
