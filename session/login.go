package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	chaterrors "merry-chat/errors"
)

// Login exchanges credentials for a session token.
func Login(ctx context.Context, client *http.Client, serverURL, username, password string) (string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(serverURL, "/")+"/api/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return "", chaterrors.ErrInvalidCredentials
	default:
		return "", fmt.Errorf("login failed: %s", resp.Status)
	}

	var envelope struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", fmt.Errorf("bad login body: %w", err)
	}
	if envelope.Data.Token == "" {
		return "", fmt.Errorf("%w: empty token", chaterrors.ErrInvalidToken)
	}
	return envelope.Data.Token, nil
}
