// Package token mints and verifies the host capability token a game creator
// receives. It is scoped to one room code and one session, so a token from an
// earlier game cannot control a room whose code was reused.
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// HostTokenDuration comfortably outlives any single game.
const HostTokenDuration = 24 * time.Hour

type Claims struct {
	RoomID    string `json:"room_id"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

func GenerateHostToken(roomID, sessionID, secret string) (string, error) {
	claims := &Claims{
		RoomID:    roomID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(HostTokenDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign host token: %w", err)
	}
	return signed, nil
}

func ValidateHostToken(tokenString, secret string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse host token: %w", err)
	}

	if claims, ok := tok.Claims.(*Claims); ok && tok.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid host token")
}
