package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"quizduel/internal/model"
	"quizduel/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyMatches lets a test make record reads fail on demand.
type flakyMatches struct {
	repository.MatchRepo
	mu      sync.Mutex
	failGet bool
}

func (f *flakyMatches) setFailGet(fail bool) {
	f.mu.Lock()
	f.failGet = fail
	f.mu.Unlock()
}

func (f *flakyMatches) Get(ctx context.Context, id string) (*model.Match, error) {
	f.mu.Lock()
	fail := f.failGet
	f.mu.Unlock()
	if fail {
		return nil, errors.New("store unreachable")
	}
	return f.MatchRepo.Get(ctx, id)
}

func TestReconnectRestoresSubscriptionAndPresence(t *testing.T) {
	e := newEnv(t)
	e.seedQuestions(t, 8, "math", "mcq", "5")
	ctx := context.Background()

	host := e.matchmaker()
	require.NoError(t, host.FindMatch(ctx, participant("p1", "5"), "math", "mcq", ModeOnline))
	require.Eventually(t, func() bool { return e.clock.pending() == 1 },
		eventually, 10*time.Millisecond, "search timeout armed")

	records := e.queueRecords(t)
	require.Len(t, records, 1)
	id := records[0].ID

	pingBefore := records[0].Player1.LastPing

	e.client.BreakSubscriptions(repository.MatchCollection, id, errors.New("stream torn down"))

	// First retry is scheduled after one backoff step.
	require.Eventually(t, func() bool { return e.clock.pending() == 2 },
		eventually, 10*time.Millisecond, "retry timer armed")
	e.clock.Advance(reconnectStep)

	require.Eventually(t, func() bool {
		m, err := e.matches.Get(ctx, id)
		return err == nil && m != nil && m.Player1.LastPing > pingBefore && m.Player1.Connected
	}, eventually, 10*time.Millisecond, "presence republished after reconnect")

	// The re-established subscription still carries the match forward.
	joiner := e.matchmaker()
	require.NoError(t, joiner.FindMatch(ctx, participant("p2", "5"), "math", "mcq", ModeOnline))

	require.Eventually(t, func() bool {
		return e.pres.startedCount("p1") == 1 && e.pres.startedCount("p2") == 1
	}, eventually, 10*time.Millisecond)
	assert.Empty(t, e.pres.lastError("p1"))
}

func TestConnectionLossExhaustsRetries(t *testing.T) {
	e := newEnv(t)
	e.seedQuestions(t, 8, "math", "mcq", "5")
	ctx := context.Background()

	flaky := &flakyMatches{MatchRepo: e.matches}
	host := NewMatchmaker(flaky, e.questions, e.pool, e.pres, e.clock)
	require.NoError(t, host.FindMatch(ctx, participant("p1", "5"), "math", "mcq", ModeOnline))
	require.Eventually(t, func() bool { return e.clock.pending() == 1 },
		eventually, 10*time.Millisecond, "search timeout armed")

	records := e.queueRecords(t)
	require.Len(t, records, 1)
	id := records[0].ID

	flaky.setFailGet(true)
	e.client.BreakSubscriptions(repository.MatchCollection, id, errors.New("stream torn down"))

	// Each failed attempt schedules the next with a linearly growing delay;
	// the last one gives up instead of retrying a fourth time.
	for attempt := 1; attempt <= maxReconnects; attempt++ {
		require.Eventually(t, func() bool { return e.clock.pending() == 2 },
			eventually, 10*time.Millisecond, "retry %d armed", attempt)
		e.clock.Advance(time.Duration(attempt) * reconnectStep)
	}

	require.Eventually(t, func() bool {
		return strings.Contains(e.pres.lastError("p1"), "Lost connection")
	}, eventually, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return e.pres.searchEnded["p1"] == 1
	}, eventually, 10*time.Millisecond, "session reset to idle")

	flaky.setFailGet(false)
	m, err := host.Current(ctx)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestVanishedRecordDuringReconnectIsDeletion(t *testing.T) {
	e := newEnv(t)
	e.seedQuestions(t, 8, "math", "mcq", "5")
	ctx := context.Background()

	host := e.matchmaker()
	require.NoError(t, host.FindMatch(ctx, participant("p1", "5"), "math", "mcq", ModeOnline))
	require.Eventually(t, func() bool { return e.clock.pending() == 1 },
		eventually, 10*time.Millisecond, "search timeout armed")

	records := e.queueRecords(t)
	require.Len(t, records, 1)
	id := records[0].ID

	// The stream breaks and the record is gone by the time the retry reads
	// it back: that is a deletion, not a connection problem.
	e.client.BreakSubscriptions(repository.MatchCollection, id, errors.New("stream torn down"))
	require.Eventually(t, func() bool { return e.clock.pending() == 2 },
		eventually, 10*time.Millisecond, "retry timer armed")
	e.client.Delete(repository.MatchCollection, id)
	e.clock.Advance(reconnectStep)

	require.Eventually(t, func() bool {
		return strings.Contains(e.pres.lastError("p1"), "no longer exists")
	}, eventually, 10*time.Millisecond)

	m, err := host.Current(ctx)
	require.NoError(t, err)
	assert.Nil(t, m)
}
