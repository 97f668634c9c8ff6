package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"merry-chat/config"
	chaterrors "merry-chat/errors"
	"merry-chat/models"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

const waitFor = time.Second

type recorderStub struct {
	mu       sync.Mutex
	messages []models.Message
	err      error
}

func (r *recorderStub) Record(msg models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return r.err
}

func (r *recorderStub) recorded() []models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Message(nil), r.messages...)
}

type gateStub map[string][]string

func (g gateStub) CanJoin(roomID, userID string) (bool, error) {
	participants, ok := g[roomID]
	if !ok {
		return false, fmt.Errorf("room %s: %w", roomID, chaterrors.ErrRoomNotFound)
	}
	for _, p := range participants {
		if p == userID {
			return true, nil
		}
	}
	return false, nil
}

func startHub(t *testing.T, recorder *recorderStub, opts Options) *Hub {
	t.Helper()
	var h *Hub
	if recorder != nil {
		h = NewHub(slog.Default(), recorder, opts)
	} else {
		h = NewHub(slog.Default(), nil, opts)
	}
	h.Start(context.Background())
	t.Cleanup(h.Stop)
	return h
}

func connect(t *testing.T, h *Hub, userID string) *Client {
	t.Helper()
	c := newClient(h, nil, userID, userID)
	require.NoError(t, h.OnConnect(c))
	return c
}

// join waits until the loop has registered c so that later sends from other
// connections observe the membership.
func join(t *testing.T, h *Hub, c *Client, roomID string) {
	t.Helper()
	require.NoError(t, h.OnJoinRoom(c, roomID))
	require.Eventually(t, func() bool {
		return lo.Contains(h.registry.RoomsOf(c), roomID)
	}, waitFor, time.Millisecond)
}

func send(t *testing.T, h *Hub, c *Client, roomID, content string) {
	t.Helper()
	require.NoError(t, h.OnSendMessage(c, models.SendPayload{RoomID: roomID, Content: content}))
}

func nextFrame(t *testing.T, c *Client) models.Envelope {
	t.Helper()
	select {
	case frame, ok := <-c.send:
		require.True(t, ok, "connection %s was closed", c.userID)
		var env models.Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		return env
	case <-time.After(waitFor):
		t.Fatalf("no frame for %s", c.userID)
		return models.Envelope{}
	}
}

func nextMessage(t *testing.T, c *Client) models.Message {
	t.Helper()
	env := nextFrame(t, c)
	require.Equal(t, models.EventReceiveMessage, env.Type)
	var msg models.Message
	require.NoError(t, json.Unmarshal(env.Data, &msg))
	return msg
}

func nextError(t *testing.T, c *Client) models.ErrorPayload {
	t.Helper()
	env := nextFrame(t, c)
	require.Equal(t, models.EventError, env.Type)
	var payload models.ErrorPayload
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	return payload
}

func TestHub_Both_Participants_Receive_Message(t *testing.T) {
	req := require.New(t)
	h := startHub(t, nil, Options{})

	// Given A and B in r1
	alice := connect(t, h, "alice")
	bob := connect(t, h, "bob")
	join(t, h, alice, "r1")
	join(t, h, bob, "r1")

	// When A sends "hi"
	before := time.Now().UTC()
	send(t, h, alice, "r1", "hi")

	// Then both get exactly one message attributed to A
	for _, c := range []*Client{alice, bob} {
		msg := nextMessage(t, c)
		req.Equal("hi", msg.Content)
		req.Equal("alice", msg.SenderID)
		req.Equal(alice.ID(), msg.ConnectionID)
		req.Equal("r1", msg.RoomID)
		req.Equal([]string{models.TypeText}, msg.Type)
		req.NotEmpty(msg.ID)
		req.False(msg.Timestamp.Before(before.Add(-time.Second)))
		req.Empty(c.send)
	}
}

func TestHub_Preserves_Send_Order(t *testing.T) {
	req := require.New(t)
	h := startHub(t, nil, Options{})
	alice := connect(t, h, "alice")
	bob := connect(t, h, "bob")
	join(t, h, alice, "r1")
	join(t, h, bob, "r1")

	for i := 0; i < 50; i++ {
		send(t, h, alice, "r1", fmt.Sprintf("m%d", i))
	}

	for i := 0; i < 50; i++ {
		req.Equal(fmt.Sprintf("m%d", i), nextMessage(t, bob).Content)
	}
}

func TestHub_Rooms_Are_Isolated(t *testing.T) {
	req := require.New(t)
	h := startHub(t, nil, Options{})

	// Given A in r1 and C in r2
	alice := connect(t, h, "alice")
	carol := connect(t, h, "carol")
	join(t, h, alice, "r1")
	join(t, h, carol, "r2")

	// When A sends to r1 and then C sends to r2
	send(t, h, alice, "r1", "for r1")
	send(t, h, carol, "r2", "barrier")

	// Then the first thing C sees is its own message
	req.Equal("barrier", nextMessage(t, carol).Content)
	req.Equal("for r1", nextMessage(t, alice).Content)
}

func TestHub_Echo_Policy_Others_Skips_Sender(t *testing.T) {
	req := require.New(t)
	h := startHub(t, nil, Options{EchoPolicy: config.EchoOthers})
	alice := connect(t, h, "alice")
	bob := connect(t, h, "bob")
	join(t, h, alice, "r1")
	join(t, h, bob, "r1")

	send(t, h, alice, "r1", "hi")
	send(t, h, bob, "r1", "hello")

	// A only sees B's reply, B only sees A's message
	msg := nextMessage(t, alice)
	req.Equal("hello", msg.Content)
	req.Equal("bob", msg.SenderID)
	msg = nextMessage(t, bob)
	req.Equal("hi", msg.Content)
	req.Empty(alice.send)
	req.Empty(bob.send)
}

func TestHub_Join_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	h := startHub(t, nil, Options{})
	alice := connect(t, h, "alice")
	bob := connect(t, h, "bob")
	join(t, h, alice, "r1")
	join(t, h, alice, "r1")
	join(t, h, bob, "r1")

	send(t, h, bob, "r1", "once")

	req.Equal("once", nextMessage(t, alice).Content)
	req.Equal("once", nextMessage(t, bob).Content)
	req.Empty(alice.send)
	req.Equal(2, h.GetUserCount("r1"))
}

func TestHub_Disconnected_Client_Receives_Nothing(t *testing.T) {
	req := require.New(t)
	h := startHub(t, nil, Options{})
	alice := connect(t, h, "alice")
	bob := connect(t, h, "bob")
	join(t, h, alice, "r1")
	join(t, h, bob, "r1")

	// When B disconnects
	req.NoError(h.OnDisconnect(bob))
	req.Eventually(func() bool { return h.GetUserCount("r1") == 1 }, waitFor, time.Millisecond)
	send(t, h, alice, "r1", "while away")
	req.Equal("while away", nextMessage(t, alice).Content)

	// Then B's channel is closed without the message
	_, ok := <-bob.send
	req.False(ok)

	// And a new connection for the same user only sees later messages
	again := connect(t, h, "bob")
	join(t, h, again, "r1")
	send(t, h, alice, "r1", "welcome back")
	req.Equal("welcome back", nextMessage(t, again).Content)
}

func TestHub_Disconnect_Drops_Empty_Room(t *testing.T) {
	req := require.New(t)
	h := startHub(t, nil, Options{})
	alice := connect(t, h, "alice")
	join(t, h, alice, "r1")
	join(t, h, alice, "r2")

	req.NoError(h.OnDisconnect(alice))

	req.Eventually(func() bool { return h.registry.Rooms() == 0 }, waitFor, time.Millisecond)
}

func TestHub_Invalid_Payload_Is_Not_Broadcast(t *testing.T) {
	req := require.New(t)
	h := startHub(t, nil, Options{})
	alice := connect(t, h, "alice")
	bob := connect(t, h, "bob")
	join(t, h, alice, "r1")
	join(t, h, bob, "r1")

	err := h.OnSendMessage(alice, models.SendPayload{RoomID: "r1", Content: "  "})
	req.ErrorIs(err, chaterrors.ErrInvalidPayload)
	err = h.OnSendMessage(alice, models.SendPayload{Content: "no room"})
	req.ErrorIs(err, chaterrors.ErrInvalidPayload)

	send(t, h, alice, "r1", "valid")
	req.Equal("valid", nextMessage(t, bob).Content)
}

func TestHub_Send_Before_Join_Reaches_Room_Only(t *testing.T) {
	req := require.New(t)
	h := startHub(t, nil, Options{})
	alice := connect(t, h, "alice")
	bob := connect(t, h, "bob")
	join(t, h, bob, "r1")

	// A never joined r1 but may still post to it
	send(t, h, alice, "r1", "drive-by")

	req.Equal("drive-by", nextMessage(t, bob).Content)
	req.Empty(alice.send)
}

func TestHub_Records_Before_Broadcast(t *testing.T) {
	req := require.New(t)
	recorder := &recorderStub{}
	h := startHub(t, recorder, Options{})
	alice := connect(t, h, "alice")
	join(t, h, alice, "r1")

	send(t, h, alice, "r1", "keep me")

	msg := nextMessage(t, alice)
	recorded := recorder.recorded()
	req.Len(recorded, 1)
	req.Equal(msg.ID, recorded[0].ID)
	req.Equal("keep me", recorded[0].Content)
}

func TestHub_Broadcasts_When_Recorder_Fails(t *testing.T) {
	req := require.New(t)
	recorder := &recorderStub{err: errors.New("disk full")}
	h := startHub(t, recorder, Options{})
	alice := connect(t, h, "alice")
	join(t, h, alice, "r1")

	send(t, h, alice, "r1", "still here")

	req.Equal("still here", nextMessage(t, alice).Content)
}

func TestHub_Evicts_Stalled_Client(t *testing.T) {
	req := require.New(t)
	h := startHub(t, nil, Options{EchoPolicy: config.EchoOthers, ClientBufferSize: 1})
	alice := connect(t, h, "alice")
	slow := connect(t, h, "slow")
	join(t, h, alice, "r1")
	join(t, h, slow, "r1")

	// slow never reads, its buffer holds one frame
	send(t, h, alice, "r1", "one")
	send(t, h, alice, "r1", "two")

	req.Eventually(func() bool { return h.GetUserCount("r1") == 1 }, waitFor, time.Millisecond)
	req.Equal("one", nextMessage(t, slow).Content)
	_, ok := <-slow.send
	req.False(ok)
}

func TestHub_Stop_Closes_Clients_And_Refuses_Work(t *testing.T) {
	req := require.New(t)
	h := NewHub(slog.Default(), nil, Options{})
	h.Start(context.Background())
	alice := connect(t, h, "alice")
	join(t, h, alice, "r1")

	h.Stop()

	_, ok := <-alice.send
	req.False(ok)
	req.ErrorIs(h.OnConnect(newClient(h, nil, "bob", "bob")), chaterrors.ErrRelayStopped)
	req.ErrorIs(h.OnJoinRoom(alice, "r1"), chaterrors.ErrRelayStopped)
	h.Stop()
}

func TestHub_Stop_Without_Start(t *testing.T) {
	h := NewHub(slog.Default(), nil, Options{})
	h.Stop()
	require.ErrorIs(t, h.OnConnect(newClient(h, nil, "alice", "alice")), chaterrors.ErrRelayStopped)
}
