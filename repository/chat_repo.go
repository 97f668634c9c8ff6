package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	chaterrors "merry-chat/errors"
	"merry-chat/models"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type ChatRepository interface {
	Create(participants []string) (*models.ChatRoom, error)
	FindByID(id string) (*models.ChatRoom, error)
	FindByParticipants(a, b string) (*models.ChatRoom, error)
	ListByParticipant(userID string) ([]models.ChatRoom, error)
	Delete(id string) error
}

// BadgerChatRepo keeps one JSON document per chat room under "room:{id}"
// and a pair index "pair:{min}:{max}" -> room id for matched users.
type BadgerChatRepo struct {
	db  *badger.DB
	log *slog.Logger
}

func NewBadgerChatRepo(db *badger.DB, log *slog.Logger) *BadgerChatRepo {
	return &BadgerChatRepo{db: db, log: log}
}

func roomKey(id string) []byte {
	return []byte("room:" + id)
}

func pairKey(a, b string) []byte {
	if b < a {
		a, b = b, a
	}
	return []byte(fmt.Sprintf("pair:%s:%s", a, b))
}

func (r *BadgerChatRepo) Create(participants []string) (*models.ChatRoom, error) {
	if len(participants) != 2 {
		return nil, fmt.Errorf("%w: a chat room needs exactly two participants", chaterrors.ErrInvalidRequest)
	}
	room := &models.ChatRoom{
		ID:           uuid.NewString(),
		Participants: participants,
		CreatedAt:    time.Now().UTC(),
	}
	doc, err := json.Marshal(room)
	if err != nil {
		return nil, err
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(roomKey(room.ID), doc); err != nil {
			return err
		}
		return txn.Set(pairKey(participants[0], participants[1]), []byte(room.ID))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}
	r.log.Debug("Chat room created", "room_id", room.ID, "participants", participants)
	return room, nil
}

func (r *BadgerChatRepo) FindByID(id string) (*models.ChatRoom, error) {
	var room models.ChatRoom
	err := r.db.View(func(txn *badger.Txn) error {
		return getRoom(txn, id, &room)
	})
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *BadgerChatRepo) FindByParticipants(a, b string) (*models.ChatRoom, error) {
	var room models.ChatRoom
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(pairKey(a, b))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return chaterrors.ErrRoomNotFound
		}
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return getRoom(txn, string(id), &room)
	})
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// ListByParticipant scans every room document; newest rooms first.
func (r *BadgerChatRepo) ListByParticipant(userID string) ([]models.ChatRoom, error) {
	rooms := make([]models.ChatRoom, 0)
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte("room:")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var room models.ChatRoom
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &room)
			})
			if err != nil {
				return err
			}
			if room.HasParticipant(userID) {
				rooms = append(rooms, room)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
	})
	return rooms, nil
}

func (r *BadgerChatRepo) Delete(id string) error {
	return r.db.Update(func(txn *badger.Txn) error {
		var room models.ChatRoom
		if err := getRoom(txn, id, &room); err != nil {
			return err
		}
		if len(room.Participants) == 2 {
			if err := txn.Delete(pairKey(room.Participants[0], room.Participants[1])); err != nil {
				return err
			}
		}
		return txn.Delete(roomKey(id))
	})
}

func getRoom(txn *badger.Txn, id string, room *models.ChatRoom) error {
	item, err := txn.Get(roomKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return chaterrors.ErrRoomNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, room)
	})
}
