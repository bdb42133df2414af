package http

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const participantTokenDuration = 12 * time.Hour

// ParticipantClaims ties a websocket connection to one participant slot in
// one competition. The token is issued at join time and carries everything
// the gateway needs; guests have no backing user account.
type ParticipantClaims struct {
	CompetitionID string `json:"competitionId"`
	ParticipantID string `json:"participantId"`
	// UserID is the authenticated account behind the participant; empty for
	// guests. Creator-only operations check it against the competition.
	UserID      string `json:"userId,omitempty"`
	DisplayName string `json:"displayName"`
	Guest       bool   `json:"guest"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and validates participant tokens with HS256.
type TokenIssuer struct {
	secret []byte
}

func NewTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret)}
}

func (i *TokenIssuer) Issue(competitionID, participantID, userID, displayName string, guest bool) (string, error) {
	claims := &ParticipantClaims{
		CompetitionID: competitionID,
		ParticipantID: participantID,
		UserID:        userID,
		DisplayName:   displayName,
		Guest:         guest,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(participantTokenDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign participant token: %w", err)
	}
	return signed, nil
}

func (i *TokenIssuer) Parse(tokenString string) (*ParticipantClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ParticipantClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse participant token: %w", err)
	}

	claims, ok := token.Claims.(*ParticipantClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid participant token")
	}
	return claims, nil
}
