package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/yoockh/yooprep/internal/models"
	"github.com/yoockh/yooprep/internal/repositories"
)

// QuestionRepo is an in-memory question bank.
type QuestionRepo struct {
	mu        sync.RWMutex
	questions map[string]models.Question
}

var _ repositories.QuestionRepository = (*QuestionRepo)(nil)

func NewQuestionRepo() *QuestionRepo {
	return &QuestionRepo{questions: make(map[string]models.Question)}
}

func (r *QuestionRepo) Upsert(ctx context.Context, q *models.Question) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := r.questions[q.QuestionID]; ok {
		q.CreatedAt = existing.CreatedAt
	} else if q.CreatedAt.IsZero() {
		q.CreatedAt = now
	}
	q.UpdatedAt = now

	cp := *q
	cp.Topics = slices.Clone(q.Topics)
	r.questions[q.QuestionID] = cp
	return nil
}

func (r *QuestionRepo) GetByIDs(ctx context.Context, ids []string) ([]models.Question, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []models.Question{}
	for _, id := range ids {
		if q, ok := r.questions[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

func (r *QuestionRepo) SearchByTopic(ctx context.Context, topic string, limit int64) ([]models.Question, error) {
	if limit <= 0 {
		limit = 5
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []models.Question{}
	for _, q := range r.questions {
		if slices.Contains(q.Topics, topic) {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].QuestionID < out[j].QuestionID
	})
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}
