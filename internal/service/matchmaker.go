package service

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"quizduel/internal/cache"
	"quizduel/internal/model"
	"quizduel/internal/repository"
	"quizduel/internal/store"
)

const (
	ModeOnline   = "online"
	ModePractice = "practice"
)

const (
	candidateLimit = 30
	minCandidates  = 5
	matchSize      = 10
	queueTTL       = 5 * time.Minute
)

// ErrInsufficientQuestions means the content lookup returned too few
// candidates to fill a match.
var ErrInsufficientQuestions = errors.New("not enough questions available")

// Matchmaker coordinates one participant's match lifecycle: search,
// find-or-create, join, play, terminate. There is no game server; both
// participants drive the shared record through the repository and react to
// its push notifications.
type Matchmaker struct {
	matches   repository.MatchRepo
	questions repository.QuestionRepo
	pool      cache.PoolCache
	presenter Presenter
	clock     Clock

	mu      sync.Mutex
	current *session
}

// session is the local view of one search or match. It is replaced
// wholesale on reset; timers and callbacks compare pointers to detect that
// they outlived their session.
type session struct {
	id          string
	participant model.Participant
	subject     string
	qtype       string
	mode        string
	searching   bool
	isHost      bool
	started     bool
	reconnects  int
	sub         store.Subscription
	practice    *model.Match // set only in practice mode
}

func NewMatchmaker(
	matches repository.MatchRepo,
	questions repository.QuestionRepo,
	pool cache.PoolCache,
	presenter Presenter,
	clock Clock,
) *Matchmaker {
	return &Matchmaker{
		matches:   matches,
		questions: questions,
		pool:      pool,
		presenter: presenter,
		clock:     clock,
	}
}

// FindMatch starts a new search, cancelling any search or match already in
// progress. Every failure surfaces to the presenter and fully resets local
// state.
func (m *Matchmaker) FindMatch(ctx context.Context, p model.Participant, subject, qtype, mode string) error {
	m.mu.Lock()
	ended := m.cancelSearchLocked(ctx)
	s := &session{
		participant: p,
		subject:     subject,
		qtype:       qtype,
		mode:        mode,
		searching:   true,
	}
	m.current = s
	m.mu.Unlock()

	if ended != "" {
		m.presenter.SearchEnded(ended)
	}
	m.presenter.SearchStarted(p.ID)

	var err error
	if mode == ModePractice {
		err = m.startPractice(ctx, s)
	} else {
		err = m.findOrJoin(ctx, s)
	}
	if err != nil {
		log.Printf("matchmaker: search failed for %s: %v", p.ID, err)
		m.presenter.Error(p.ID, searchErrorMessage(err))
		m.Reset()
		return err
	}
	return nil
}

// findOrJoin fetches candidates, then joins the group's waiting record if a
// joinable one exists, or hosts a new one.
func (m *Matchmaker) findOrJoin(ctx context.Context, s *session) error {
	grades := model.GradePool(s.participant.Grade, s.subject)
	pool, err := m.candidates(ctx, s, grades)
	if err != nil {
		return err
	}
	if len(pool) < minCandidates {
		return ErrInsufficientQuestions
	}

	group := model.GroupKey(s.participant.Grade, s.subject)
	existing, err := m.matches.FindWaiting(ctx, group, s.participant.Grade, s.participant.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		joined, err := m.join(ctx, s, existing.ID)
		if err != nil {
			return err
		}
		if joined {
			return nil
		}
		// Another joiner took the seat between the query and the write;
		// host a fresh record instead.
	}
	return m.create(ctx, s, group, pool)
}

// create hosts a fresh waiting record with a shuffled question snapshot and
// starts the search-timeout timer.
func (m *Matchmaker) create(ctx context.Context, s *session, group string, pool []model.Question) error {
	now := m.clock.Now()
	questions := shuffled(pool)
	if len(questions) > matchSize {
		questions = questions[:matchSize]
	}

	match := &model.Match{
		Group:           group,
		Status:          model.MatchWaiting,
		Player1:         s.participant.Slot(now),
		Questions:       questions,
		CurrentQuestion: 0,
		Answers:         []model.AnswerEvent{},
		Subject:         s.subject,
		Type:            s.qtype,
		Grade:           s.participant.Grade,
		LastActivity:    now.UnixMilli(),
		ExpiresAt:       now.Add(queueTTL).UnixMilli(),
	}

	id, err := m.matches.Create(ctx, match)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.current != s {
		m.mu.Unlock()
		return nil
	}
	s.id = id
	s.isHost = true
	m.mu.Unlock()

	if err := m.listen(s); err != nil {
		return err
	}
	m.startSearchTimeout(s)
	return nil
}

// join seats the local participant as player2 on an existing record; the
// write also flips the record active, which is what starts the match for
// both sides. Returns false when the seat was already taken.
func (m *Matchmaker) join(ctx context.Context, s *session, id string) (bool, error) {
	joined, err := m.matches.Join(ctx, id, s.participant.Slot(m.clock.Now()))
	if err != nil || !joined {
		return joined, err
	}

	m.mu.Lock()
	if m.current != s {
		m.mu.Unlock()
		return true, nil
	}
	s.id = id
	s.isHost = false
	m.mu.Unlock()

	return true, m.listen(s)
}

// CancelSearch aborts the local search. Only a host with a still-pending
// record writes the cancellation; everyone tears down local state.
func (m *Matchmaker) CancelSearch(ctx context.Context) {
	m.mu.Lock()
	ended := m.cancelSearchLocked(ctx)
	m.mu.Unlock()
	if ended != "" {
		m.presenter.SearchEnded(ended)
	}
}

// cancelSearchLocked returns the participant whose idle view must be
// restored, or "" when there was no session; the caller notifies after
// releasing the lock.
func (m *Matchmaker) cancelSearchLocked(ctx context.Context) string {
	s := m.current
	if s == nil {
		return ""
	}
	if s.id != "" && s.isHost && s.searching {
		if err := m.matches.SetStatus(ctx, s.id, model.MatchCancelled); err != nil {
			log.Printf("matchmaker: cancel write for match %s failed: %v", s.id, err)
		}
	}
	return m.resetLocked()
}

// Reset unsubscribes, clears local match state and restores the idle view.
func (m *Matchmaker) Reset() {
	m.mu.Lock()
	ended := m.resetLocked()
	m.mu.Unlock()
	if ended != "" {
		m.presenter.SearchEnded(ended)
	}
}

// resetLocked unsubscribes before touching state so a late notification
// cannot race the reset. Presenter callbacks never run under the lock; the
// caller emits SearchEnded for the returned participant after unlocking.
func (m *Matchmaker) resetLocked() string {
	s := m.current
	if s == nil {
		return ""
	}
	if s.sub != nil {
		s.sub.Unsubscribe()
		s.sub = nil
	}
	m.current = nil
	return s.participant.ID
}

// Current returns the latest record of the match in progress, or nil when
// idle.
func (m *Matchmaker) Current(ctx context.Context) (*model.Match, error) {
	m.mu.Lock()
	s := m.current
	var practice *model.Match
	if s != nil && s.practice != nil {
		copied := *s.practice
		practice = &copied
	}
	m.mu.Unlock()

	if s == nil || s.id == "" {
		return nil, nil
	}
	if practice != nil {
		return practice, nil
	}
	return m.matches.Get(ctx, s.id)
}

// candidates returns the question pool for the partition, consulting the
// cache first.
func (m *Matchmaker) candidates(ctx context.Context, s *session, grades []string) ([]model.Question, error) {
	cached, err := m.pool.Get(ctx, s.subject, s.qtype, grades)
	if err != nil {
		log.Printf("matchmaker: pool cache read failed: %v", err)
	}
	if len(cached) > 0 {
		return cached, nil
	}

	questions, err := m.questions.FetchCandidates(ctx, s.subject, s.qtype, grades, candidateLimit)
	if err != nil {
		return nil, err
	}
	if len(questions) >= minCandidates {
		if err := m.pool.Set(ctx, s.subject, s.qtype, grades, questions); err != nil {
			log.Printf("matchmaker: pool cache write failed: %v", err)
		}
	}
	return questions, nil
}

// startPractice fabricates a local match against a bot; the queue is never
// touched and no subscription exists.
func (m *Matchmaker) startPractice(ctx context.Context, s *session) error {
	grades := model.GradePool(s.participant.Grade, s.subject)
	pool, err := m.candidates(ctx, s, grades)
	if err != nil {
		return err
	}
	if len(pool) < minCandidates {
		return ErrInsufficientQuestions
	}

	now := m.clock.Now()
	questions := shuffled(pool)
	if len(questions) > matchSize {
		questions = questions[:matchSize]
	}

	match := &model.Match{
		ID:              "practice-" + s.participant.ID,
		Group:           model.GroupKey(s.participant.Grade, s.subject),
		Status:          model.MatchActive,
		Player1:         s.participant.Slot(now),
		Player2:         botSlot(s.participant.Grade, now),
		Questions:       questions,
		CurrentQuestion: 0,
		Answers:         []model.AnswerEvent{},
		Subject:         s.subject,
		Type:            s.qtype,
		Grade:           s.participant.Grade,
		CreatedAt:       now,
		LastActivity:    now.UnixMilli(),
	}

	m.mu.Lock()
	if m.current != s {
		m.mu.Unlock()
		return nil
	}
	s.id = match.ID
	s.practice = match
	s.searching = false
	s.started = true
	m.mu.Unlock()

	snapshot := *match
	m.presenter.MatchStarted(s.participant.ID, &snapshot)
	return nil
}

func searchErrorMessage(err error) string {
	if errors.Is(err, ErrInsufficientQuestions) {
		return "There are not enough questions for this subject yet."
	}
	return "Could not start a match. Please try again."
}

// shuffled returns an unbiased uniform permutation of the pool
// (Fisher-Yates on a copy).
func shuffled(pool []model.Question) []model.Question {
	out := make([]model.Question, len(pool))
	copy(out, pool)
	for i := len(out) - 1; i > 0; i-- {
		j := rand.Intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}
