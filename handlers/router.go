package handlers

import (
	"net/http"
	"time"
)

// Routes registers every HTTP endpoint of the chat backend.
func Routes(authH *AuthHandler, chatH *ChatHandler, historyH *HistoryHandler, authn *Authenticator) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","timestamp":"` + time.Now().Format(time.RFC3339) + `"}`))
	})

	mux.HandleFunc("POST /api/register", authH.Register)
	mux.HandleFunc("POST /api/login", authH.Login)
	mux.HandleFunc("GET /api/rooms", authn.WithAuth(chatH.Rooms))
	mux.HandleFunc("POST /api/rooms", authn.WithAuth(chatH.Create))
	mux.HandleFunc("GET /api/rooms/{id}", authn.WithAuth(chatH.Room))
	mux.HandleFunc("DELETE /api/rooms/{id}", authn.WithAuth(chatH.Delete))
	mux.HandleFunc("GET /api/chat/chatHistory", authn.WithAuth(historyH.ChatHistory)) // ?chatRoomId=<id>
	mux.HandleFunc("GET /ws", authn.WithAuth(chatH.WS))                               // ?token=<jwt>

	return mux
}
