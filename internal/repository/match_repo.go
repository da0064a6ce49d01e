package repository

import (
	"context"
	"fmt"
	"time"

	"quizduel/internal/model"
	"quizduel/internal/store"
)

// MatchCollection is the shared queue both participants read and write.
const MatchCollection = "match_queue"

// MatchRepo owns the matchmaking query shapes over the generic store. All
// mutation paths refresh lastActivity so an external reaper can judge
// staleness.
type MatchRepo interface {
	Create(ctx context.Context, match *model.Match) (string, error)
	Get(ctx context.Context, id string) (*model.Match, error)
	// FindWaiting returns at most one joinable record for the group, or nil.
	// A record hosted by excludePlayerID is never returned: a participant
	// must not be matched against itself.
	FindWaiting(ctx context.Context, group, grade, excludePlayerID string) (*model.Match, error)
	// Join seats player2 and flips the record to active in one conditional
	// write. player2 is set once: the write only applies while the record is
	// still waiting, and returns false when another joiner took the seat
	// first.
	Join(ctx context.Context, id string, slot *model.PlayerSlot) (bool, error)
	// AppendAnswer records one answer event and refreshes the submitting
	// slot's presence in the same write.
	AppendAnswer(ctx context.Context, id, slotField string, ev model.AnswerEvent) error
	// AdvanceQuestion moves the index from fromIndex to fromIndex+1 only if
	// it still equals fromIndex. Returns false when another writer advanced
	// first.
	AdvanceQuestion(ctx context.Context, id string, fromIndex int) (bool, error)
	SetStatus(ctx context.Context, id string, status model.MatchStatus) error
	// TouchPresence republishes connected=true and a fresh ping for the slot.
	TouchPresence(ctx context.Context, id, slotField string) error
	Watch(ctx context.Context, id string, onChange func(match *model.Match, exists bool), onError func(error)) (store.Subscription, error)
}

type matchRepo struct {
	store store.Client
}

func NewMatchRepo(client store.Client) MatchRepo {
	return &matchRepo{store: client}
}

func (r *matchRepo) Create(ctx context.Context, match *model.Match) (string, error) {
	return r.store.Create(ctx, MatchCollection, match)
}

func (r *matchRepo) Get(ctx context.Context, id string) (*model.Match, error) {
	snap, err := r.store.Get(ctx, MatchCollection, id)
	if err != nil {
		return nil, err
	}
	if !snap.Exists {
		return nil, nil
	}
	var match model.Match
	if err := snap.Decode(&match); err != nil {
		return nil, fmt.Errorf("decode match %s: %w", id, err)
	}
	return &match, nil
}

func (r *matchRepo) FindWaiting(ctx context.Context, group, grade, excludePlayerID string) (*model.Match, error) {
	snaps, err := r.store.Query(ctx, MatchCollection, store.Filter{
		Eq: map[string]interface{}{
			"group":  group,
			"status": string(model.MatchWaiting),
			"grade":  grade,
		},
	}, 1)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, nil
	}

	var match model.Match
	if err := snaps[0].Decode(&match); err != nil {
		return nil, fmt.Errorf("decode waiting match: %w", err)
	}
	if match.Player1 == nil || match.Player1.ID == excludePlayerID {
		return nil, nil
	}
	return &match, nil
}

func (r *matchRepo) Join(ctx context.Context, id string, slot *model.PlayerSlot) (bool, error) {
	return r.store.UpdateIf(ctx, MatchCollection, id,
		map[string]interface{}{"status": string(model.MatchWaiting)},
		store.Patch{
			Set: map[string]interface{}{
				"player2":      slot,
				"status":       string(model.MatchActive),
				"lastActivity": nowMillis(),
			},
		})
}

func (r *matchRepo) AppendAnswer(ctx context.Context, id, slotField string, ev model.AnswerEvent) error {
	return r.store.Update(ctx, MatchCollection, id, store.Patch{
		Set: map[string]interface{}{
			slotField + ".lastPing": nowMillis(),
			"lastActivity":          nowMillis(),
		},
		Push: map[string]interface{}{
			"answers": ev,
		},
	})
}

func (r *matchRepo) AdvanceQuestion(ctx context.Context, id string, fromIndex int) (bool, error) {
	return r.store.UpdateIf(ctx, MatchCollection, id,
		map[string]interface{}{"currentQuestion": fromIndex},
		store.Patch{
			Set: map[string]interface{}{
				"currentQuestion": fromIndex + 1,
				"lastActivity":    nowMillis(),
			},
		})
}

func (r *matchRepo) SetStatus(ctx context.Context, id string, status model.MatchStatus) error {
	return r.store.Update(ctx, MatchCollection, id, store.Patch{
		Set: map[string]interface{}{
			"status":       string(status),
			"lastActivity": nowMillis(),
		},
	})
}

func (r *matchRepo) TouchPresence(ctx context.Context, id, slotField string) error {
	return r.store.Update(ctx, MatchCollection, id, store.Patch{
		Set: map[string]interface{}{
			slotField + ".connected": true,
			slotField + ".lastPing":  nowMillis(),
			"lastActivity":           nowMillis(),
		},
	})
}

func (r *matchRepo) Watch(ctx context.Context, id string, onChange func(*model.Match, bool), onError func(error)) (store.Subscription, error) {
	return r.store.Subscribe(ctx, MatchCollection, id, func(snap *store.Snapshot) {
		if !snap.Exists {
			onChange(nil, false)
			return
		}
		var match model.Match
		if err := snap.Decode(&match); err != nil {
			onError(fmt.Errorf("decode match %s: %w", id, err))
			return
		}
		onChange(&match, true)
	}, onError)
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
