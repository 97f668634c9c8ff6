package services

import (
	"log/slog"
	"testing"
	"time"

	chaterrors "merry-chat/errors"
	"merry-chat/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func createUser(t *testing.T, s stores, username string) *models.User {
	t.Helper()
	u := &models.User{ID: uuid.NewString(), Username: username, Password: "x", Name: username}
	require.NoError(t, s.users.Create(u))
	return u
}

func TestChatService_CreateRoom_Is_Idempotent_Per_Pair(t *testing.T) {
	req := require.New(t)
	s := newStores(t)
	svc := NewChatService(s.chats, s.users, s.messages, slog.Default())
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")

	room, created, err := svc.CreateRoom(alice.ID, bob.ID)
	req.NoError(err)
	req.True(created)

	again, created, err := svc.CreateRoom(bob.ID, alice.ID)
	req.NoError(err)
	req.False(created)
	req.Equal(room.ID, again.ID)
}

func TestChatService_CreateRoom_Rejects(t *testing.T) {
	req := require.New(t)
	s := newStores(t)
	svc := NewChatService(s.chats, s.users, s.messages, slog.Default())
	alice := createUser(t, s, "alice")

	_, _, err := svc.CreateRoom(alice.ID, alice.ID)
	req.ErrorIs(err, chaterrors.ErrSelfMatch)

	_, _, err = svc.CreateRoom(alice.ID, "ghost")
	req.ErrorIs(err, chaterrors.ErrUserNotFound)

	_, _, err = svc.CreateRoom(alice.ID, "")
	req.ErrorIs(err, chaterrors.ErrInvalidRequest)
}

func TestChatService_Access(t *testing.T) {
	req := require.New(t)
	s := newStores(t)
	svc := NewChatService(s.chats, s.users, s.messages, slog.Default())
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")
	clara := createUser(t, s, "clara")

	room, _, err := svc.CreateRoom(alice.ID, bob.ID)
	req.NoError(err)

	ok, err := svc.CanJoin(room.ID, bob.ID)
	req.NoError(err)
	req.True(ok)

	ok, err = svc.CanJoin(room.ID, clara.ID)
	req.NoError(err)
	req.False(ok)

	_, err = svc.GetRoom(room.ID, clara.ID)
	req.ErrorIs(err, chaterrors.ErrForbidden)

	rooms, err := svc.ListRooms(alice.ID)
	req.NoError(err)
	req.Len(rooms, 1)
}

func TestChatService_DeleteRoom_Removes_History(t *testing.T) {
	req := require.New(t)
	s := newStores(t)
	svc := NewChatService(s.chats, s.users, s.messages, slog.Default())
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")
	clara := createUser(t, s, "clara")

	room, _, err := svc.CreateRoom(alice.ID, bob.ID)
	req.NoError(err)
	req.NoError(s.messages.Append(room.ID, models.StoredMessage{ID: uuid.NewString(), SenderID: alice.ID, Content: "hi", CreatedAt: time.Now()}))

	req.ErrorIs(svc.DeleteRoom(room.ID, clara.ID), chaterrors.ErrForbidden)
	req.NoError(svc.DeleteRoom(room.ID, bob.ID))

	_, err = s.messages.ListByRoom(room.ID)
	req.ErrorIs(err, chaterrors.ErrRoomNotFound)

	// The pair can match again into a fresh, empty room
	fresh, created, err := svc.CreateRoom(alice.ID, bob.ID)
	req.NoError(err)
	req.True(created)
	history, err := s.messages.ListByRoom(fresh.ID)
	req.NoError(err)
	req.Empty(history)
}
