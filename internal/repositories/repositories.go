package repositories

import (
	"context"
	"time"

	"github.com/yoockh/yooprep/internal/models"
)

// SessionRepository persists mock-interview sessions. Every call that touches a
// single session is scoped by (sessionID, userID); a session owned by someone
// else is reported exactly like a missing one (utils.ErrNotFound).
//
// Implementations must make Create fail with utils.ErrConflict when another
// active session exists for the same (userID, jobID), and must apply Advance as
// one atomic update.
type SessionRepository interface {
	Create(ctx context.Context, s *models.Session) error
	GetByID(ctx context.Context, sessionID, userID string) (*models.Session, error)
	FindActiveByJob(ctx context.Context, jobID, userID string) (*models.Session, error)
	ListByUser(ctx context.Context, userID string, limit int64) ([]models.Session, error)

	// SetProgress writes the counters verbatim; index is left alone when nil.
	SetProgress(ctx context.Context, sessionID, userID string, answered int, index *int) (*models.Session, error)
	// Advance moves the cursor one step, counts one more answer (capped at the
	// total) and completes the session when the cursor passes the last
	// question. A session already past its last question is returned as is.
	Advance(ctx context.Context, sessionID, userID string, now time.Time) (*models.Session, error)
	// AdvanceFrom is Advance guarded on the session being active with the
	// cursor at index. A guard miss on an existing session is utils.ErrConflict.
	AdvanceFrom(ctx context.Context, sessionID, userID string, index int, now time.Time) (*models.Session, error)
	// SetIndex moves the cursor; utils.ErrNotFound also covers an index that is
	// out of range for the stored session.
	SetIndex(ctx context.Context, sessionID, userID string, index int) (*models.Session, error)
	SetStatus(ctx context.Context, sessionID, userID string, status models.SessionStatus, now time.Time) (*models.Session, error)

	Delete(ctx context.Context, sessionID, userID string) (bool, error)
}

// QuestionRepository is the question bank.
type QuestionRepository interface {
	Upsert(ctx context.Context, q *models.Question) error
	GetByIDs(ctx context.Context, ids []string) ([]models.Question, error)
	SearchByTopic(ctx context.Context, topic string, limit int64) ([]models.Question, error)
}

// AnswerRepository is the append-only answer log.
type AnswerRepository interface {
	Insert(ctx context.Context, a *models.Answer) error
	Delete(ctx context.Context, id string) error
	ListBySession(ctx context.Context, userID, sessionID string, limit int) ([]models.Answer, error)
}
