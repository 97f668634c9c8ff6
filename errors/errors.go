package errors

import "fmt"

var (
	ErrRoomNotFound       = fmt.Errorf("room not found")
	ErrUserNotFound       = fmt.Errorf("user not found")
	ErrUsernameTaken      = fmt.Errorf("username already exists")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrInvalidToken       = fmt.Errorf("invalid token")
	ErrInvalidRequest     = fmt.Errorf("invalid request")
	ErrInvalidPayload     = fmt.Errorf("invalid payload")
	ErrForbidden          = fmt.Errorf("forbidden")
	ErrSelfMatch          = fmt.Errorf("cannot open a chat room with yourself")
	ErrRelayStopped       = fmt.Errorf("relay stopped")
	ErrQueueFull          = fmt.Errorf("persist queue full")
	ErrRecorderStopped    = fmt.Errorf("recorder stopped")
	ErrSessionClosed      = fmt.Errorf("session closed")
)
