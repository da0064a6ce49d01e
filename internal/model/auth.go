package model

import "github.com/golang-jwt/jwt/v5"

// ParticipantClaims are JWT claims binding a token to one participant.
type ParticipantClaims struct {
	ParticipantID string `json:"participantId"`
	Grade         string `json:"grade"`
	jwt.RegisteredClaims
}

// TokenRequest is the request body for participant token issuance
type TokenRequest struct {
	Participant Participant `json:"participant"`
}

// TokenResponse is returned after successful token issuance
type TokenResponse struct {
	Token         string `json:"token"`
	ParticipantID string `json:"participantId"`
}
