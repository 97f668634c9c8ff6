package services

import (
	"errors"
	"fmt"
	"log/slog"

	chaterrors "merry-chat/errors"
	"merry-chat/models"
	"merry-chat/repository"
)

type ChatService struct {
	chats    repository.ChatRepository
	users    repository.UserRepository
	messages repository.MessageRepository
	log      *slog.Logger
}

func NewChatService(cr repository.ChatRepository, ur repository.UserRepository, mr repository.MessageRepository, log *slog.Logger) *ChatService {
	return &ChatService{chats: cr, users: ur, messages: mr, log: log}
}

// CreateRoom opens the chat room of a matched pair. Calling it again for
// the same pair returns the existing room.
func (s *ChatService) CreateRoom(userID, otherUserID string) (*models.ChatRoom, bool, error) {
	if otherUserID == "" {
		return nil, false, fmt.Errorf("%w: other_user_id is required", chaterrors.ErrInvalidRequest)
	}
	if userID == otherUserID {
		return nil, false, chaterrors.ErrSelfMatch
	}
	if _, err := s.users.FindByID(otherUserID); err != nil {
		return nil, false, err
	}

	existing, err := s.chats.FindByParticipants(userID, otherUserID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, chaterrors.ErrRoomNotFound) {
		return nil, false, err
	}

	room, err := s.chats.Create([]string{userID, otherUserID})
	if err != nil {
		return nil, false, err
	}
	s.log.Info("Chat room opened", "room_id", room.ID, "user_id", userID, "other_user_id", otherUserID)
	return room, true, nil
}

func (s *ChatService) ListRooms(userID string) ([]models.ChatRoom, error) {
	return s.chats.ListByParticipant(userID)
}

// GetRoom returns the room if userID takes part in it.
func (s *ChatService) GetRoom(roomID, userID string) (*models.ChatRoom, error) {
	room, err := s.chats.FindByID(roomID)
	if err != nil {
		return nil, err
	}
	if !room.HasParticipant(userID) {
		return nil, chaterrors.ErrForbidden
	}
	return room, nil
}

// CanJoin reports whether userID is a participant of roomID. The relay uses
// it when room membership is enforced.
func (s *ChatService) CanJoin(roomID, userID string) (bool, error) {
	room, err := s.chats.FindByID(roomID)
	if err != nil {
		return false, err
	}
	return room.HasParticipant(userID), nil
}

// DeleteRoom is the unmatch operation: history goes first, then the room.
func (s *ChatService) DeleteRoom(roomID, userID string) error {
	if _, err := s.GetRoom(roomID, userID); err != nil {
		return err
	}
	if err := s.messages.DeleteByRoom(roomID); err != nil {
		return fmt.Errorf("failed to delete messages from room: %w", err)
	}
	if err := s.chats.Delete(roomID); err != nil {
		return err
	}
	s.log.Info("Chat room deleted", "room_id", roomID, "user_id", userID)
	return nil
}
