package handler

import (
	"encoding/json"
	"net/http"

	"quizduel/internal/model"
	"quizduel/internal/service"
)

// AuthHandler issues participant tokens
type AuthHandler struct {
	authSvc *service.AuthService
}

func NewAuthHandler(authSvc *service.AuthService) *AuthHandler {
	return &AuthHandler{authSvc: authSvc}
}

// Token handles POST /v1/auth/token
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req model.TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Participant.ID == "" || req.Participant.Grade == "" {
		http.Error(w, "participant id and grade are required", http.StatusBadRequest)
		return
	}

	token, err := h.authSvc.IssueParticipantToken(req.Participant)
	if err != nil {
		http.Error(w, "failed to issue token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, model.TokenResponse{
		Token:         token,
		ParticipantID: req.Participant.ID,
	})
}
