package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGroupKey(t *testing.T) {
	tests := []struct {
		name    string
		grade   string
		subject string
		want    string
	}{
		{"regular subject regular grade", "5", "math", "5_math"},
		{"shared subject regular grade", "5", "arabic", "5_arabic"},
		{"regular subject sixth science", "6sci", "math", "6sci_math"},
		{"shared subject sixth science", "6sci", "arabic", "6shared_arabic"},
		{"shared subject sixth literary", "6lit", "arabic", "6shared_arabic"},
		{"islamic sixth literary", "6lit", "islamic", "6shared_islamic"},
		{"english sixth science", "6sci", "english", "6shared_english"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GroupKey(tt.grade, tt.subject))
		})
	}
}

func TestGroupKeyStable(t *testing.T) {
	// Same inputs always land in the same queue.
	for i := 0; i < 10; i++ {
		assert.Equal(t, GroupKey("6sci", "english"), GroupKey("6sci", "english"))
	}
}

func TestGradePool(t *testing.T) {
	assert.Equal(t, []string{"5"}, GradePool("5", "arabic"))
	assert.Equal(t, []string{"6sci"}, GradePool("6sci", "math"))
	assert.ElementsMatch(t, []string{"6sci", "6lit"}, GradePool("6lit", "english"))
}

func TestAnswerCountDistinctParticipants(t *testing.T) {
	m := &Match{
		Answers: []AnswerEvent{
			{PlayerID: "a", QuestionIndex: 0, Value: "x"},
			{PlayerID: "a", QuestionIndex: 0, Value: "x"}, // duplicate submission
			{PlayerID: "a", QuestionIndex: 1, Value: "y"},
		},
	}

	assert.Equal(t, 1, m.AnswerCount(0), "duplicates from one participant count once")
	assert.Equal(t, 1, m.AnswerCount(1))
	assert.Equal(t, 0, m.AnswerCount(2))

	m.Answers = append(m.Answers, AnswerEvent{PlayerID: "b", QuestionIndex: 0, Value: "z"})
	assert.Equal(t, 2, m.AnswerCount(0))
}

func TestSlotFor(t *testing.T) {
	m := &Match{
		Player1: &PlayerSlot{ID: "host"},
		Player2: &PlayerSlot{ID: "guest"},
	}
	assert.Equal(t, "player1", m.SlotFor("host"))
	assert.Equal(t, "player2", m.SlotFor("guest"))
	assert.Equal(t, "", m.SlotFor("stranger"))

	waiting := &Match{Player1: &PlayerSlot{ID: "host"}}
	assert.Equal(t, "", waiting.SlotFor("guest"))
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, MatchWaiting.Terminal())
	assert.False(t, MatchActive.Terminal())
	assert.True(t, MatchCompleted.Terminal())
	assert.True(t, MatchCancelled.Terminal())
}
