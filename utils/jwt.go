package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "merry-chat"

// Claims carried by every session token.
type Claims struct {
	UserID   string `json:"uid"`
	Username string `json:"uname"`
	jwt.RegisteredClaims
}

func GenerateJWT(secret string, userID, username string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   "user-auth",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseJWT(secret, tokenStr string) (string, string, error) {
	if tokenStr == "" {
		return "", "", errors.New("token is empty")
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(issuer))
	if err != nil || !token.Valid {
		return "", "", errors.New("invalid token")
	}
	if claims.UserID == "" || claims.Username == "" {
		return "", "", errors.New("bad claims")
	}
	return claims.UserID, claims.Username, nil
}

// PeekJWT reads the claims without checking the signature. Clients use it
// to learn their own identity from a token the server handed them.
func PeekJWT(tokenStr string) (string, string, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, &claims); err != nil {
		return "", "", err
	}
	if claims.UserID == "" {
		return "", "", errors.New("bad claims")
	}
	return claims.UserID, claims.Username, nil
}
