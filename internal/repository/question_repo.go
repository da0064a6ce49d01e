package repository

import (
	"context"
	"fmt"

	"quizduel/internal/model"
	"quizduel/internal/store"
)

const questionCollection = "questions"

// QuestionRepo is the read-only content lookup. The question bank is
// maintained elsewhere; matchmaking only samples from it.
type QuestionRepo interface {
	// FetchCandidates returns up to limit questions for the subject and
	// type, drawn from any of the given grades.
	FetchCandidates(ctx context.Context, subject, qtype string, grades []string, limit int64) ([]model.Question, error)
}

type questionRepo struct {
	store store.Client
}

func NewQuestionRepo(client store.Client) QuestionRepo {
	return &questionRepo{store: client}
}

func (r *questionRepo) FetchCandidates(ctx context.Context, subject, qtype string, grades []string, limit int64) ([]model.Question, error) {
	filter := store.Filter{
		Eq: map[string]interface{}{
			"subject": subject,
			"type":    qtype,
		},
	}
	if len(grades) == 1 {
		filter.Eq["grade"] = grades[0]
	} else {
		in := make([]interface{}, len(grades))
		for i, g := range grades {
			in[i] = g
		}
		filter.In = map[string][]interface{}{"grade": in}
	}

	snaps, err := r.store.Query(ctx, questionCollection, filter, limit)
	if err != nil {
		return nil, err
	}

	questions := make([]model.Question, 0, len(snaps))
	for _, snap := range snaps {
		var q model.Question
		if err := snap.Decode(&q); err != nil {
			return nil, fmt.Errorf("decode question: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, nil
}
