package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	chaterrors "merry-chat/errors"
	"merry-chat/services"
)

type AuthHandler struct {
	svc *services.AuthService
	log *slog.Logger
}

func NewAuthHandler(s *services.AuthService, log *slog.Logger) *AuthHandler {
	return &AuthHandler{svc: s, log: log}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, "Invalid JSON", "Bad request format", http.StatusBadRequest)
		return
	}

	user, err := h.svc.Register(req)
	if err != nil {
		respondWithServiceError(w, h.log, "Registration failed", err)
		return
	}

	token, err := h.svc.CreateToken(user.ID, user.Username)
	if err != nil {
		h.log.Error("Token creation failed", "user_id", user.ID, "error", err)
		respondWithError(w, "Token creation failed", "Could not create authentication token", http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, http.StatusCreated, map[string]any{
		"token": token,
		"user":  user,
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, "Invalid JSON", "Bad request format", http.StatusBadRequest)
		return
	}

	token, user, err := h.svc.Login(req.Username, req.Password)
	if err != nil {
		respondWithServiceError(w, h.log, "Authentication failed", err)
		return
	}

	respondWithSuccess(w, map[string]any{
		"token": token,
		"user":  user,
	})
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, chaterrors.ErrRoomNotFound), errors.Is(err, chaterrors.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, chaterrors.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, chaterrors.ErrInvalidCredentials), errors.Is(err, chaterrors.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, chaterrors.ErrUsernameTaken):
		return http.StatusConflict
	case errors.Is(err, chaterrors.ErrInvalidRequest), errors.Is(err, chaterrors.ErrSelfMatch),
		errors.Is(err, chaterrors.ErrInvalidPayload):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondWithServiceError(w http.ResponseWriter, log *slog.Logger, title string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error(title, "error", err)
		respondWithError(w, "Internal error", "Something went wrong", status)
		return
	}
	respondWithError(w, title, err.Error(), status)
}

func respondWithError(w http.ResponseWriter, error, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}

func respondWithSuccess(w http.ResponseWriter, data any) {
	respondWithJSON(w, http.StatusOK, data)
}

func respondWithJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(SuccessResponse{
		Success: true,
		Data:    data,
	})
}
