package memory

import (
	"context"
	"sync"

	"github.com/yoockh/yooprep/internal/models"
	"github.com/yoockh/yooprep/internal/repositories"
)

type AnswerRepo struct {
	mu      sync.RWMutex
	answers []models.Answer
}

var _ repositories.AnswerRepository = (*AnswerRepo)(nil)

func NewAnswerRepo() *AnswerRepo {
	return &AnswerRepo{}
}

func (r *AnswerRepo) Insert(ctx context.Context, a *models.Answer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.answers = append(r.answers, *a)
	return nil
}

func (r *AnswerRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.answers {
		if r.answers[i].ID == id {
			r.answers = append(r.answers[:i], r.answers[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *AnswerRepo) ListBySession(ctx context.Context, userID, sessionID string, limit int) ([]models.Answer, error) {
	if limit <= 0 {
		limit = 50
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []models.Answer{}
	for _, a := range r.answers {
		if a.UserID == userID && a.SessionID == sessionID {
			out = append(out, a)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}
