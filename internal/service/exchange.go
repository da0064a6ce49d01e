package service

import (
	"context"
	"log"
	"time"

	"quizduel/internal/model"

	"github.com/google/uuid"
)

// advanceGrace is how long both clients get to render feedback for an
// answered question before the index moves.
const advanceGrace = 2 * time.Second

// handleSnapshot is the reaction to every push notification: decide from
// the latest observed record, never from assumed prior state.
func (m *Matchmaker) handleSnapshot(s *session, match *model.Match, exists bool) {
	m.mu.Lock()
	if m.current != s {
		m.mu.Unlock()
		return
	}

	if !exists {
		pid := m.resetLocked()
		m.mu.Unlock()
		m.presenter.SearchEnded(pid)
		m.presenter.Error(pid, "The match no longer exists.")
		return
	}

	switch {
	case match.Status == model.MatchActive && match.Player2 != nil && !s.started:
		// Fires once; repeated notifications with the same composition are
		// absorbed by the started flag.
		s.started = true
		s.searching = false
		m.mu.Unlock()
		m.presenter.MatchStarted(s.participant.ID, match)

	case match.Status == model.MatchCompleted:
		pid := m.resetLocked()
		m.mu.Unlock()
		m.presenter.SearchEnded(pid)
		m.presenter.MatchEnded(pid, match)

	case match.Status == model.MatchCancelled:
		pid := m.resetLocked()
		m.mu.Unlock()
		m.presenter.SearchEnded(pid)
		m.presenter.Error(pid, "The match was cancelled.")

	default:
		m.mu.Unlock()
	}
}

// SubmitAnswer records the local participant's answer for the record's
// authoritative current question. localIndex is only the caller's belief;
// the record is re-read so a stale submission cannot target the wrong
// question after a concurrent advance.
func (m *Matchmaker) SubmitAnswer(ctx context.Context, localIndex int, value string) error {
	m.mu.Lock()
	s := m.current
	m.mu.Unlock()
	if s == nil || s.id == "" {
		return nil
	}
	if s.practice != nil {
		return m.practiceAnswer(s, value)
	}

	match, err := m.matches.Get(ctx, s.id)
	if err != nil {
		m.handleDisconnection(s, err)
		return err
	}
	if match == nil {
		m.handleSnapshot(s, nil, false)
		return nil
	}

	slot := match.SlotFor(s.participant.ID)
	if slot == "" {
		return nil
	}
	if localIndex != match.CurrentQuestion {
		log.Printf("matchmaker: stale answer index %d from %s, recording for %d",
			localIndex, s.participant.ID, match.CurrentQuestion)
	}

	ev := model.AnswerEvent{
		PlayerID:      s.participant.ID,
		QuestionIndex: match.CurrentQuestion,
		Value:         value,
		Timestamp:     m.clock.Now().UnixMilli(),
	}
	if err := m.matches.AppendAnswer(ctx, s.id, slot, ev); err != nil {
		m.handleDisconnection(s, err)
		return err
	}

	return m.checkAdvance(ctx, s)
}

// checkAdvance re-reads the record after the append and advances once both
// participants have answered the current question. Both sides may run this
// concurrently: completion is an idempotent status write, and the index
// advance is conditional so the loser of the race becomes a no-op instead
// of a double advance.
func (m *Matchmaker) checkAdvance(ctx context.Context, s *session) error {
	match, err := m.matches.Get(ctx, s.id)
	if err != nil {
		m.handleDisconnection(s, err)
		return err
	}
	if match == nil {
		return nil
	}

	idx := match.CurrentQuestion
	if match.AnswerCount(idx) < 2 {
		return nil
	}

	if idx+1 >= len(match.Questions) {
		if err := m.matches.SetStatus(ctx, s.id, model.MatchCompleted); err != nil {
			m.handleDisconnection(s, err)
			return err
		}
		return nil
	}

	go func() {
		<-m.clock.After(advanceGrace)
		m.mu.Lock()
		live := m.current == s
		m.mu.Unlock()
		if !live {
			return
		}
		advanced, err := m.matches.AdvanceQuestion(context.Background(), s.id, idx)
		if err != nil {
			log.Printf("matchmaker: advance write for match %s failed: %v", s.id, err)
			return
		}
		if !advanced {
			// The other participant advanced first.
			return
		}
	}()
	return nil
}

// practiceAnswer plays the bot's turn locally: it answers every question
// immediately, so each submission advances the match.
func (m *Matchmaker) practiceAnswer(s *session, value string) error {
	m.mu.Lock()
	if m.current != s || s.practice == nil {
		m.mu.Unlock()
		return nil
	}
	match := s.practice
	idx := match.CurrentQuestion
	now := m.clock.Now().UnixMilli()

	botValue := ""
	if idx < len(match.Questions) {
		botValue = match.Questions[idx].Answer
	}
	match.Answers = append(match.Answers,
		model.AnswerEvent{PlayerID: s.participant.ID, QuestionIndex: idx, Value: value, Timestamp: now},
		model.AnswerEvent{PlayerID: match.Player2.ID, QuestionIndex: idx, Value: botValue, Timestamp: now},
	)

	if idx+1 >= len(match.Questions) {
		match.Status = model.MatchCompleted
		snapshot := *match
		pid := m.resetLocked()
		m.mu.Unlock()
		m.presenter.SearchEnded(pid)
		m.presenter.MatchEnded(pid, &snapshot)
		return nil
	}

	match.CurrentQuestion = idx + 1
	m.mu.Unlock()
	return nil
}

func botSlot(grade string, now time.Time) *model.PlayerSlot {
	return &model.PlayerSlot{
		ID:        "bot-" + uuid.NewString(),
		Name:      "Computer",
		Grade:     grade,
		Connected: true,
		LastPing:  now.UnixMilli(),
	}
}
