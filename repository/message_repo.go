package repository

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"merry-chat/models"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

type MessageRepository interface {
	Append(roomID string, msg models.StoredMessage) error
	ListByRoom(roomID string) ([]models.StoredMessage, error)
	DeleteByRoom(roomID string) error
}

type BadgerMessageRepo struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewBadgerMessageRepo(db *badger.DB, log *slog.Logger, limitMessages *int) *BadgerMessageRepo {
	return &BadgerMessageRepo{db: db, log: log, limitMessages: limitMessages}
}

func messagePrefix(roomID string) []byte {
	return []byte(fmt.Sprintf("msg:%s:", roomID))
}

// Append stores a message under "msg:{room}:{unixnano padded to 19}:{id}" so a
// prefix scan returns the room's history in send order. The room document
// must exist.
func (r *BadgerMessageRepo) Append(roomID string, msg models.StoredMessage) error {
	key := fmt.Sprintf("msg:%s:%019d:%s", roomID, msg.CreatedAt.UnixNano(), msg.ID)
	bytes, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		var room models.ChatRoom
		if err := getRoom(txn, roomID, &room); err != nil {
			return err
		}
		return txn.Set([]byte(key), bytes)
	})
}

// ListByRoom returns the stored history oldest first, keeping only the last
// limitMessages entries when a limit is configured.
func (r *BadgerMessageRepo) ListByRoom(roomID string) ([]models.StoredMessage, error) {
	messages := make([]models.StoredMessage, 0)
	err := r.db.View(func(txn *badger.Txn) error {
		var room models.ChatRoom
		if err := getRoom(txn, roomID, &room); err != nil {
			return err
		}

		prefix := messagePrefix(roomID)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		// Reverse iteration starts from the greatest key under the prefix.
		seekKey := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if r.limitMessages != nil && len(messages) == *r.limitMessages {
				r.log.Debug(fmt.Sprintf("Maximum of %d message reached", *r.limitMessages))
				break
			}
			var msg models.StoredMessage
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			})
			if err != nil {
				return err
			}
			messages = append(messages, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lo.Reverse(messages), nil
}

func (r *BadgerMessageRepo) DeleteByRoom(roomID string) error {
	prefix := messagePrefix(roomID)
	return r.db.DropPrefix(prefix)
}
