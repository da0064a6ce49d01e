package service

import (
	"testing"
	"time"

	"quizduel/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidateParticipantToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	svc := NewAuthService()

	token, err := svc.IssueParticipantToken(model.Participant{ID: "p1", Grade: "5"})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateParticipantToken(token)
	require.NoError(t, err)
	assert.Equal(t, "p1", claims.ParticipantID)
	assert.Equal(t, "5", claims.Grade)
	require.NotNil(t, claims.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(participantTokenTTL), claims.ExpiresAt.Time, time.Minute)
}

func TestValidateParticipantTokenRejectsGarbage(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	svc := NewAuthService()

	_, err := svc.ValidateParticipantToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.ValidateParticipantToken("")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateParticipantTokenRejectsForeignSignature(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret-one")
	issuer := NewAuthService()
	token, err := issuer.IssueParticipantToken(model.Participant{ID: "p1", Grade: "5"})
	require.NoError(t, err)

	t.Setenv("JWT_SECRET", "secret-two")
	verifier := NewAuthService()
	_, err = verifier.ValidateParticipantToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
