package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/yoockh/yooprep/internal/models"
	"github.com/yoockh/yooprep/internal/repositories"
	"github.com/yoockh/yooprep/internal/utils"
)

// SessionRepo is an in-memory SessionRepository for local development and
// tests. It mirrors the Mongo store: owner-scoped lookups, one active session
// per (user, job), and atomic per-session updates.
type SessionRepo struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	seq      int64
	order    map[string]int64
}

var _ repositories.SessionRepository = (*SessionRepo)(nil)

func NewSessionRepo() *SessionRepo {
	return &SessionRepo{
		sessions: make(map[string]*models.Session),
		order:    make(map[string]int64),
	}
}

func (r *SessionRepo) Create(ctx context.Context, s *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.SessionID]; exists {
		return utils.ErrConflict
	}
	if s.Status == models.SessionActive && r.activeLocked(s.JobID, s.UserID, "") != nil {
		return utils.ErrConflict
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now().UTC()
	}

	r.seq++
	r.order[s.SessionID] = r.seq
	r.sessions[s.SessionID] = s.Clone()
	return nil
}

func (r *SessionRepo) GetByID(ctx context.Context, sessionID, userID string) (*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, err := r.ownedLocked(sessionID, userID)
	if err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

func (r *SessionRepo) FindActiveByJob(ctx context.Context, jobID, userID string) (*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := r.activeLocked(jobID, userID, "")
	if s == nil {
		return nil, utils.ErrNotFound
	}
	return s.Clone(), nil
}

func (r *SessionRepo) ListByUser(ctx context.Context, userID string, limit int64) ([]models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []models.Session{}
	for _, s := range r.sessions {
		if s.UserID == userID {
			out = append(out, *s.Clone())
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return r.order[out[i].SessionID] > r.order[out[j].SessionID]
	})

	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *SessionRepo) SetProgress(ctx context.Context, sessionID, userID string, answered int, index *int) (*models.Session, error) {
	return r.update(sessionID, userID, func(s *models.Session) error {
		s.AnsweredQuestions = answered
		if index != nil {
			s.CurrentQuestionIndex = *index
		}
		return nil
	})
}

func (r *SessionRepo) Advance(ctx context.Context, sessionID, userID string, now time.Time) (*models.Session, error) {
	return r.update(sessionID, userID, func(s *models.Session) error {
		advance(s, now)
		return nil
	})
}

func (r *SessionRepo) AdvanceFrom(ctx context.Context, sessionID, userID string, index int, now time.Time) (*models.Session, error) {
	return r.update(sessionID, userID, func(s *models.Session) error {
		if s.Status != models.SessionActive || s.CurrentQuestionIndex != index || index >= s.TotalQuestions {
			return utils.ErrConflict
		}
		advance(s, now)
		return nil
	})
}

func advance(s *models.Session, now time.Time) {
	if s.CurrentQuestionIndex >= s.TotalQuestions {
		return
	}
	s.CurrentQuestionIndex++
	s.AnsweredQuestions = min(s.AnsweredQuestions+1, s.TotalQuestions)
	if s.CurrentQuestionIndex >= s.TotalQuestions {
		t := now.UTC()
		s.Status = models.SessionCompleted
		s.CompletedAt = &t
	}
}

func (r *SessionRepo) SetIndex(ctx context.Context, sessionID, userID string, index int) (*models.Session, error) {
	return r.update(sessionID, userID, func(s *models.Session) error {
		if index < 0 || index >= s.TotalQuestions {
			return utils.ErrNotFound
		}
		s.CurrentQuestionIndex = index
		return nil
	})
}

func (r *SessionRepo) SetStatus(ctx context.Context, sessionID, userID string, status models.SessionStatus, now time.Time) (*models.Session, error) {
	return r.update(sessionID, userID, func(s *models.Session) error {
		if status == models.SessionActive && r.activeLocked(s.JobID, s.UserID, s.SessionID) != nil {
			return utils.ErrConflict
		}
		s.Status = status
		if status == models.SessionCompleted {
			t := now.UTC()
			s.CompletedAt = &t
		} else {
			s.CompletedAt = nil
		}
		return nil
	})
}

func (r *SessionRepo) Delete(ctx context.Context, sessionID, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.ownedLocked(sessionID, userID); err != nil {
		return false, nil
	}
	delete(r.sessions, sessionID)
	delete(r.order, sessionID)
	return true, nil
}

// update applies fn to a working copy and stores it only when fn succeeds, so
// a rejected change leaves the session untouched.
func (r *SessionRepo) update(sessionID, userID string, fn func(s *models.Session) error) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.ownedLocked(sessionID, userID)
	if err != nil {
		return nil, err
	}

	work := stored.Clone()
	if err := fn(work); err != nil {
		return nil, err
	}
	r.sessions[sessionID] = work
	return work.Clone(), nil
}

func (r *SessionRepo) ownedLocked(sessionID, userID string) (*models.Session, error) {
	s, ok := r.sessions[sessionID]
	if !ok || s.UserID != userID {
		return nil, utils.ErrNotFound
	}
	return s, nil
}

func (r *SessionRepo) activeLocked(jobID, userID, exceptID string) *models.Session {
	for id, s := range r.sessions {
		if id != exceptID && s.JobID == jobID && s.UserID == userID && s.Status == models.SessionActive {
			return s
		}
	}
	return nil
}
