package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"quizduel/internal/model"
	"quizduel/internal/service"
	"quizduel/internal/transport/rest/middleware"
)

// MatchHandler exposes the matchmaker over REST. Progress and results are
// pushed over the participant's WebSocket; these endpoints only trigger
// actions and report immediate failures.
type MatchHandler struct {
	sessions *service.Sessions
}

func NewMatchHandler(sessions *service.Sessions) *MatchHandler {
	return &MatchHandler{sessions: sessions}
}

type searchRequest struct {
	Participant model.Participant `json:"participant"`
	Subject     string            `json:"subject"`
	Type        string            `json:"type"`
	Mode        string            `json:"mode"`
}

type answerRequest struct {
	ParticipantID string `json:"participantId"`
	QuestionIndex int    `json:"questionIndex"`
	Value         string `json:"value"`
}

type cancelRequest struct {
	ParticipantID string `json:"participantId"`
}

// Search handles POST /v1/matches/search
func (h *MatchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Participant.ID == "" || req.Participant.Grade == "" || req.Subject == "" {
		http.Error(w, "participant, grade and subject are required", http.StatusBadRequest)
		return
	}
	if req.Participant.ID != middleware.GetParticipantID(r.Context()) {
		http.Error(w, "token does not match participant", http.StatusForbidden)
		return
	}
	if req.Mode == "" {
		req.Mode = service.ModeOnline
	}

	mm := h.sessions.Get(req.Participant.ID)
	if err := mm.FindMatch(r.Context(), req.Participant, req.Subject, req.Type, req.Mode); err != nil {
		if errors.Is(err, service.ErrInsufficientQuestions) {
			http.Error(w, "not enough questions for this subject", http.StatusConflict)
			return
		}
		http.Error(w, "failed to start search", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "searching"})
}

// Answer handles POST /v1/matches/answer
func (h *MatchHandler) Answer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ParticipantID == "" {
		http.Error(w, "participantId is required", http.StatusBadRequest)
		return
	}
	if req.ParticipantID != middleware.GetParticipantID(r.Context()) {
		http.Error(w, "token does not match participant", http.StatusForbidden)
		return
	}

	mm := h.sessions.Get(req.ParticipantID)
	if err := mm.SubmitAnswer(r.Context(), req.QuestionIndex, req.Value); err != nil {
		http.Error(w, "failed to record answer", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

// Cancel handles POST /v1/matches/cancel
func (h *MatchHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ParticipantID == "" {
		http.Error(w, "participantId is required", http.StatusBadRequest)
		return
	}
	if req.ParticipantID != middleware.GetParticipantID(r.Context()) {
		http.Error(w, "token does not match participant", http.StatusForbidden)
		return
	}

	h.sessions.Get(req.ParticipantID).CancelSearch(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// Current handles GET /v1/matches/current?participantId=...
func (h *MatchHandler) Current(w http.ResponseWriter, r *http.Request) {
	participantID := r.URL.Query().Get("participantId")
	if participantID == "" {
		participantID = middleware.GetParticipantID(r.Context())
	}
	if participantID != middleware.GetParticipantID(r.Context()) {
		http.Error(w, "token does not match participant", http.StatusForbidden)
		return
	}

	match, err := h.sessions.Get(participantID).Current(r.Context())
	if err != nil {
		http.Error(w, "failed to load match", http.StatusInternalServerError)
		return
	}
	if match == nil {
		http.Error(w, "no match in progress", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, match)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
