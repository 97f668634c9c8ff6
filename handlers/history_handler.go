package handlers

import (
	"log/slog"
	"net/http"

	"merry-chat/services"
)

type HistoryHandler struct {
	svc *services.HistoryService
	log *slog.Logger
}

func NewHistoryHandler(s *services.HistoryService, log *slog.Logger) *HistoryHandler {
	return &HistoryHandler{svc: s, log: log}
}

// ChatHistory serves GET /api/chat/chatHistory?chatRoomId=<id>. roomId is
// accepted as well.
func (h *HistoryHandler) ChatHistory(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("chatRoomId")
	if roomID == "" {
		roomID = r.URL.Query().Get("roomId")
	}
	if roomID == "" {
		respondWithError(w, "Missing parameter", "chatRoomId query parameter is required", http.StatusBadRequest)
		return
	}

	id, _ := IdentityFrom(r.Context())
	history, err := h.svc.ChatHistory(roomID, id.UserID)
	if err != nil {
		respondWithServiceError(w, h.log, "Chat history unavailable", err)
		return
	}
	respondWithSuccess(w, history)
}
