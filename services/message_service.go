package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"merry-chat/config"
	chaterrors "merry-chat/errors"
	"merry-chat/models"
	"merry-chat/repository"
)

// MessageRecorder is how the relay hands a broadcast message over for
// durability.
type MessageRecorder interface {
	Record(msg models.Message) error
}

// StoreRecorder writes through to the history store on the caller's
// goroutine.
type StoreRecorder struct {
	msgs repository.MessageRepository
}

func NewStoreRecorder(mr repository.MessageRepository) *StoreRecorder {
	return &StoreRecorder{msgs: mr}
}

func (r *StoreRecorder) Record(msg models.Message) error {
	if err := r.msgs.Append(msg.RoomID, msg.Stored()); err != nil {
		return fmt.Errorf("failed to store message %s: %w", msg.ID, err)
	}
	return nil
}

// AsyncRecorder queues messages for a background worker so the relay never
// waits on the store. A full queue drops the write.
type AsyncRecorder struct {
	next  MessageRecorder
	queue chan models.Message
	log   *slog.Logger

	stopOnce sync.Once
	stopped  chan struct{}
	done     chan struct{}
	cancel   context.CancelFunc
}

func NewAsyncRecorder(next MessageRecorder, size int, log *slog.Logger) *AsyncRecorder {
	return &AsyncRecorder{
		next:    next,
		queue:   make(chan models.Message, size),
		log:     log,
		stopped: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (r *AsyncRecorder) Record(msg models.Message) error {
	select {
	case <-r.stopped:
		return chaterrors.ErrRecorderStopped
	default:
	}
	select {
	case r.queue <- msg:
		return nil
	default:
		return chaterrors.ErrQueueFull
	}
}

func (r *AsyncRecorder) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	go r.run(ctx)
}

func (r *AsyncRecorder) run(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return
		case msg := <-r.queue:
			r.write(msg)
		}
	}
}

// drain flushes whatever was queued before the stop signal.
func (r *AsyncRecorder) drain() {
	for {
		select {
		case msg := <-r.queue:
			r.write(msg)
		default:
			return
		}
	}
}

func (r *AsyncRecorder) write(msg models.Message) {
	if err := r.next.Record(msg); err != nil {
		r.log.Error("Failed to persist message", "room_id", msg.RoomID, "message_id", msg.ID, "error", err)
	}
}

// Stop refuses new records, flushes the queue and waits for the worker.
func (r *AsyncRecorder) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopped)
		if r.cancel != nil {
			r.cancel()
			<-r.done
		}
	})
}

// NewRecorder picks the recorder matching PERSIST_MODE. It returns nil for
// "off": the relay then never writes history.
func NewRecorder(mode string, mr repository.MessageRepository, queueSize int, log *slog.Logger) (MessageRecorder, *AsyncRecorder) {
	switch mode {
	case config.PersistSync:
		return NewStoreRecorder(mr), nil
	case config.PersistAsync:
		async := NewAsyncRecorder(NewStoreRecorder(mr), queueSize, log)
		return async, async
	default:
		return nil, nil
	}
}
