package model

import "time"

type MatchStatus string

const (
	MatchWaiting   MatchStatus = "waiting"
	MatchActive    MatchStatus = "active"
	MatchCompleted MatchStatus = "completed"
	MatchCancelled MatchStatus = "cancelled"
)

// Terminal reports whether a match can no longer change status.
func (s MatchStatus) Terminal() bool {
	return s == MatchCompleted || s == MatchCancelled
}

// PlayerSlot is one participant's seat on the shared match record. Each
// participant only ever writes its own slot.
type PlayerSlot struct {
	ID        string `json:"id" bson:"id"`
	Name      string `json:"name" bson:"name"`
	Photo     string `json:"photo" bson:"photo"`
	Grade     string `json:"grade" bson:"grade"`
	Score     int    `json:"score" bson:"score"`
	Connected bool   `json:"connected" bson:"connected"`
	LastPing  int64  `json:"lastPing" bson:"lastPing"` // unix millis
}

// AnswerEvent is one entry in the append-only answer log.
type AnswerEvent struct {
	PlayerID      string `json:"playerId" bson:"playerId"`
	QuestionIndex int    `json:"questionIndex" bson:"questionIndex"`
	Value         string `json:"value" bson:"value"`
	Timestamp     int64  `json:"timestamp" bson:"timestamp"` // unix millis
}

// Match is the single shared mutable record both participants read and
// write. There is no arbiter process; all coordination happens through
// field-scoped updates on this document.
type Match struct {
	ID              string        `json:"id" bson:"_id,omitempty"`
	Group           string        `json:"group" bson:"group"`
	Status          MatchStatus   `json:"status" bson:"status"`
	Player1         *PlayerSlot   `json:"player1" bson:"player1"`
	Player2         *PlayerSlot   `json:"player2" bson:"player2"`
	Questions       []Question    `json:"questions" bson:"questions"`
	CurrentQuestion int           `json:"currentQuestion" bson:"currentQuestion"`
	Answers         []AnswerEvent `json:"answers" bson:"answers"`
	Subject         string        `json:"subject" bson:"subject"`
	Type            string        `json:"type" bson:"type"`
	Grade           string        `json:"grade" bson:"grade"`
	CreatedAt       time.Time     `json:"createdAt" bson:"createdAt"`
	LastActivity    int64         `json:"lastActivity" bson:"lastActivity"` // unix millis
	ExpiresAt       int64         `json:"expiresAt" bson:"expiresAt"`       // unix millis, advisory TTL
}

// SlotFor returns the field name of the slot the given participant occupies,
// or "" if the participant is not seated on this match.
func (m *Match) SlotFor(playerID string) string {
	if m.Player1 != nil && m.Player1.ID == playerID {
		return "player1"
	}
	if m.Player2 != nil && m.Player2.ID == playerID {
		return "player2"
	}
	return ""
}

// AnswerCount counts distinct participants with an answer recorded for the
// given question index. Duplicate submissions from one participant count
// once.
func (m *Match) AnswerCount(questionIndex int) int {
	seen := make(map[string]bool)
	for _, a := range m.Answers {
		if a.QuestionIndex == questionIndex {
			seen[a.PlayerID] = true
		}
	}
	return len(seen)
}
