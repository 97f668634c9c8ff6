package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"merry-chat/services"
)

// Relay is the part of the WebSocket hub the HTTP layer needs.
type Relay interface {
	ServeWS(w http.ResponseWriter, r *http.Request, userID, username string)
	GetUserCount(roomID string) int
}

type ChatHandler struct {
	relay   Relay
	chatSvc *services.ChatService
	log     *slog.Logger
}

func NewChatHandler(relay Relay, c *services.ChatService, log *slog.Logger) *ChatHandler {
	return &ChatHandler{relay: relay, chatSvc: c, log: log}
}

// Rooms lists the caller's chat rooms.
func (h *ChatHandler) Rooms(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	rooms, err := h.chatSvc.ListRooms(id.UserID)
	if err != nil {
		respondWithServiceError(w, h.log, "Failed to list rooms", err)
		return
	}
	for i := range rooms {
		rooms[i].Online = h.relay.GetUserCount(rooms[i].ID)
	}
	respondWithSuccess(w, rooms)
}

// Create opens the chat room of the caller and a matched user.
func (h *ChatHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	var req struct {
		OtherUserID string `json:"other_user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, "Invalid JSON", "Bad request format", http.StatusBadRequest)
		return
	}

	room, created, err := h.chatSvc.CreateRoom(id.UserID, req.OtherUserID)
	if err != nil {
		respondWithServiceError(w, h.log, "Room creation failed", err)
		return
	}
	room.Online = h.relay.GetUserCount(room.ID)
	if created {
		respondWithJSON(w, http.StatusCreated, room)
		return
	}
	respondWithSuccess(w, room)
}

func (h *ChatHandler) Room(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	room, err := h.chatSvc.GetRoom(r.PathValue("id"), id.UserID)
	if err != nil {
		respondWithServiceError(w, h.log, "Room not available", err)
		return
	}
	room.Online = h.relay.GetUserCount(room.ID)
	respondWithSuccess(w, room)
}

// Delete unmatches: the room and its history are removed.
func (h *ChatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	roomID := r.PathValue("id")
	if err := h.chatSvc.DeleteRoom(roomID, id.UserID); err != nil {
		respondWithServiceError(w, h.log, "Room deletion failed", err)
		return
	}
	respondWithSuccess(w, map[string]string{"id": roomID})
}

// WS upgrades the request into the relay. Rooms are joined over the socket.
func (h *ChatHandler) WS(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	h.log.Debug("WebSocket connection attempt", "remote_addr", r.RemoteAddr, "user_id", id.UserID)
	h.relay.ServeWS(w, r, id.UserID, id.Username)
}
