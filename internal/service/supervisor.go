package service

import (
	"context"
	"log"
	"time"

	"quizduel/internal/model"
)

const (
	searchTimeout = 60 * time.Second
	maxReconnects = 3
	reconnectStep = 2 * time.Second
)

// listen subscribes to the session's match record. At most one subscription
// exists per match: any prior one is torn down first so notifications are
// never delivered twice.
func (m *Matchmaker) listen(s *session) error {
	m.mu.Lock()
	if m.current != s {
		m.mu.Unlock()
		return nil
	}
	if s.sub != nil {
		s.sub.Unsubscribe()
		s.sub = nil
	}
	id := s.id
	m.mu.Unlock()

	sub, err := m.matches.Watch(context.Background(), id,
		func(match *model.Match, exists bool) { m.handleSnapshot(s, match, exists) },
		func(err error) { m.handleDisconnection(s, err) },
	)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.current != s {
		m.mu.Unlock()
		sub.Unsubscribe()
		return nil
	}
	// listen can be re-entered by reconnect; keep only the newest handle.
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	s.sub = sub
	m.mu.Unlock()
	return nil
}

// handleDisconnection schedules a reconnect with a linearly growing delay;
// after maxReconnects failed attempts it gives up, surfaces the loss and
// resets.
func (m *Matchmaker) handleDisconnection(s *session, cause error) {
	m.mu.Lock()
	if m.current != s {
		m.mu.Unlock()
		return
	}
	if s.reconnects >= maxReconnects {
		log.Printf("matchmaker: giving up on match %s after %d attempts: %v", s.id, s.reconnects, cause)
		pid := m.resetLocked()
		m.mu.Unlock()
		m.presenter.SearchEnded(pid)
		m.presenter.Error(pid, "Lost connection to the match.")
		return
	}
	s.reconnects++
	attempt := s.reconnects
	m.mu.Unlock()

	log.Printf("matchmaker: match %s connection lost (%v), retry %d/%d", s.id, cause, attempt, maxReconnects)
	go func() {
		<-m.clock.After(time.Duration(attempt) * reconnectStep)
		m.reconnect(s)
	}()
}

// reconnect re-reads the record, re-establishes the subscription and
// republishes this participant's presence. A vanished record is a deletion,
// not a retry.
func (m *Matchmaker) reconnect(s *session) {
	m.mu.Lock()
	if m.current != s || s.id == "" {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	ctx := context.Background()
	match, err := m.matches.Get(ctx, s.id)
	if err != nil {
		m.handleDisconnection(s, err)
		return
	}
	if match == nil {
		m.handleSnapshot(s, nil, false)
		return
	}

	if err := m.listen(s); err != nil {
		m.handleDisconnection(s, err)
		return
	}

	if slot := match.SlotFor(s.participant.ID); slot != "" {
		if err := m.matches.TouchPresence(ctx, s.id, slot); err != nil {
			m.handleDisconnection(s, err)
			return
		}
	}

	m.mu.Lock()
	if m.current == s {
		s.reconnects = 0
	}
	m.mu.Unlock()
}

// startSearchTimeout arms the host-only queue timeout. It checks the
// session is still searching when it fires: a match that went active in the
// meantime is left alone.
func (m *Matchmaker) startSearchTimeout(s *session) {
	go func() {
		<-m.clock.After(searchTimeout)
		m.mu.Lock()
		if m.current != s || !s.searching {
			m.mu.Unlock()
			return
		}
		pid := s.participant.ID
		ended := m.cancelSearchLocked(context.Background())
		m.mu.Unlock()
		if ended != "" {
			m.presenter.SearchEnded(ended)
		}
		m.presenter.Error(pid, "No opponent was found in time.")
	}()
}
