package services

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/yooprep/internal/events"
	"github.com/yoockh/yooprep/internal/models"
	"github.com/yoockh/yooprep/internal/repositories"
	"github.com/yoockh/yooprep/internal/utils"
)

// Caller-visible messages. UI code matches on MsgActiveSessionExists.
const (
	MsgQuestionsRequired    = "at least one question is required"
	MsgActiveSessionExists  = "an active session already exists for this job; complete or cancel it first"
	MsgInvalidQuestionIndex = "Invalid question index"
	MsgSessionNotFound      = "session not found"
)

const (
	DefaultSessionListLimit = 20
	MaxSessionListLimit     = 100
)

type SessionService interface {
	Create(ctx context.Context, userID, jobID string, questionIDs []string) (*models.Session, error)
	FindByID(ctx context.Context, sessionID, userID string) (*models.Session, error)
	FindActiveByJobID(ctx context.Context, jobID, userID string) (*models.Session, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]models.Session, error)
	UpdateProgress(ctx context.Context, sessionID, userID string, answered int, index *int) (*models.Session, error)
	MoveToNextQuestion(ctx context.Context, sessionID, userID string) (*models.Session, error)
	MoveToNextQuestionFrom(ctx context.Context, sessionID, userID string, index int) (*models.Session, error)
	NavigateToQuestion(ctx context.Context, sessionID, userID string, index int) (*models.Session, error)
	UpdateStatus(ctx context.Context, sessionID, userID string, status models.SessionStatus) (*models.Session, error)
	Stats(ctx context.Context, userID string) (*models.SessionStats, error)
	Delete(ctx context.Context, sessionID, userID string) (bool, error)
}

type sessionService struct {
	sessions repositories.SessionRepository
	events   events.Publisher
	log      *logrus.Logger
	now      func() time.Time
}

// NewSessionService wires the session state machine. pub may be nil when no
// event bus is configured.
func NewSessionService(sessions repositories.SessionRepository, pub events.Publisher, log *logrus.Logger) SessionService {
	if log == nil {
		log = logrus.New()
	}
	return &sessionService{
		sessions: sessions,
		events:   pub,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *sessionService) Create(ctx context.Context, userID, jobID string, questionIDs []string) (*models.Session, error) {
	const op = "SessionService.Create"

	if userID == "" || jobID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id and job_id are required", nil)
	}
	if len(questionIDs) == 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, MsgQuestionsRequired, nil)
	}
	if slices.ContainsFunc(questionIDs, func(id string) bool { return strings.TrimSpace(id) == "" }) {
		return nil, utils.E(utils.CodeInvalidArgument, op, "question ids must not be blank", nil)
	}

	_, err := s.sessions.FindActiveByJob(ctx, jobID, userID)
	switch {
	case err == nil:
		return nil, utils.E(utils.CodeConflict, op, MsgActiveSessionExists, nil)
	case !errors.Is(err, utils.ErrNotFound):
		return nil, storeErr(op, "failed to check active session", err)
	}

	session := &models.Session{
		SessionID:            uuid.NewString(),
		UserID:               userID,
		JobID:                jobID,
		QuestionIDs:          slices.Clone(questionIDs),
		CurrentQuestionIndex: 0,
		TotalQuestions:       len(questionIDs),
		AnsweredQuestions:    0,
		Status:               models.SessionActive,
		StartedAt:            s.now(),
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		// lost a race against a concurrent create for the same job
		if errors.Is(err, utils.ErrConflict) {
			return nil, utils.E(utils.CodeConflict, op, MsgActiveSessionExists, err)
		}
		return nil, storeErr(op, "failed to create session", err)
	}

	s.publish(ctx, events.TypeSessionCreated, session)
	return session, nil
}

func (s *sessionService) FindByID(ctx context.Context, sessionID, userID string) (*models.Session, error) {
	const op = "SessionService.FindByID"

	if sessionID == "" || userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id and user_id are required", nil)
	}

	out, err := s.sessions.GetByID(ctx, sessionID, userID)
	if err != nil {
		return nil, storeErr(op, "failed to get session", err)
	}
	return out, nil
}

func (s *sessionService) FindActiveByJobID(ctx context.Context, jobID, userID string) (*models.Session, error) {
	const op = "SessionService.FindActiveByJobID"

	if jobID == "" || userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "job_id and user_id are required", nil)
	}

	out, err := s.sessions.FindActiveByJob(ctx, jobID, userID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "no active session for this job", err)
		}
		return nil, storeErr(op, "failed to find active session", err)
	}
	return out, nil
}

func (s *sessionService) ListByUser(ctx context.Context, userID string, limit int) ([]models.Session, error) {
	const op = "SessionService.ListByUser"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	if limit <= 0 {
		limit = DefaultSessionListLimit
	}
	if limit > MaxSessionListLimit {
		limit = MaxSessionListLimit
	}

	out, err := s.sessions.ListByUser(ctx, userID, int64(limit))
	if err != nil {
		return nil, storeErr(op, "failed to list sessions", err)
	}
	return out, nil
}

// UpdateProgress writes both counters as given. It is a correction path, so
// the values are not checked against the session's bounds.
func (s *sessionService) UpdateProgress(ctx context.Context, sessionID, userID string, answered int, index *int) (*models.Session, error) {
	const op = "SessionService.UpdateProgress"

	if sessionID == "" || userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id and user_id are required", nil)
	}

	out, err := s.sessions.SetProgress(ctx, sessionID, userID, answered, index)
	if err != nil {
		return nil, storeErr(op, "failed to update progress", err)
	}

	s.publish(ctx, events.TypeSessionProgress, out)
	return out, nil
}

func (s *sessionService) MoveToNextQuestion(ctx context.Context, sessionID, userID string) (*models.Session, error) {
	const op = "SessionService.MoveToNextQuestion"

	if sessionID == "" || userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id and user_id are required", nil)
	}

	out, err := s.sessions.Advance(ctx, sessionID, userID, s.now())
	if err != nil {
		return nil, storeErr(op, "failed to move to next question", err)
	}

	s.publishAdvance(ctx, out)
	return out, nil
}

func (s *sessionService) publishAdvance(ctx context.Context, out *models.Session) {
	if out.Status == models.SessionCompleted && !out.HasCurrentQuestion() {
		s.publish(ctx, events.TypeSessionCompleted, out)
	} else {
		s.publish(ctx, events.TypeSessionProgress, out)
	}
}

// MoveToNextQuestionFrom advances only while the session is active with the
// cursor at index, so two callers answering the same question cannot both
// move it.
func (s *sessionService) MoveToNextQuestionFrom(ctx context.Context, sessionID, userID string, index int) (*models.Session, error) {
	const op = "SessionService.MoveToNextQuestionFrom"

	if sessionID == "" || userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id and user_id are required", nil)
	}

	out, err := s.sessions.AdvanceFrom(ctx, sessionID, userID, index, s.now())
	if errors.Is(err, utils.ErrConflict) {
		if cur, gerr := s.sessions.GetByID(ctx, sessionID, userID); gerr == nil && cur.Status != models.SessionActive {
			return nil, utils.E(utils.CodeConflict, op, MsgSessionNotActive, err)
		}
		return nil, utils.E(utils.CodeConflict, op, MsgQuestionMovedOn, err)
	}
	if err != nil {
		return nil, storeErr(op, "failed to move to next question", err)
	}

	s.publishAdvance(ctx, out)
	return out, nil
}

// NavigateToQuestion moves the cursor without touching the answered count or
// status. NotFound and InvalidArgument reach the caller as is; anything else
// is reported as a generic internal failure.
func (s *sessionService) NavigateToQuestion(ctx context.Context, sessionID, userID string, index int) (*models.Session, error) {
	const op = "SessionService.NavigateToQuestion"

	if sessionID == "" || userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id and user_id are required", nil)
	}

	current, err := s.sessions.GetByID(ctx, sessionID, userID)
	if err != nil {
		return nil, navigateErr(op, err)
	}
	if index < 0 || index >= current.TotalQuestions {
		return nil, utils.E(utils.CodeInvalidArgument, op, MsgInvalidQuestionIndex, nil)
	}

	out, err := s.sessions.SetIndex(ctx, sessionID, userID, index)
	if err != nil {
		return nil, navigateErr(op, err)
	}

	s.publish(ctx, events.TypeSessionProgress, out)
	return out, nil
}

func (s *sessionService) UpdateStatus(ctx context.Context, sessionID, userID string, status models.SessionStatus) (*models.Session, error) {
	const op = "SessionService.UpdateStatus"

	if sessionID == "" || userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id and user_id are required", nil)
	}
	if !status.Valid() {
		return nil, utils.E(utils.CodeInvalidArgument, op, "status must be one of active, paused, completed, cancelled", nil)
	}

	out, err := s.sessions.SetStatus(ctx, sessionID, userID, status, s.now())
	if err != nil {
		if errors.Is(err, utils.ErrConflict) {
			return nil, utils.E(utils.CodeConflict, op, MsgActiveSessionExists, err)
		}
		return nil, storeErr(op, "failed to update status", err)
	}

	s.publish(ctx, events.TypeSessionStatus, out)
	return out, nil
}

func (s *sessionService) Stats(ctx context.Context, userID string) (*models.SessionStats, error) {
	const op = "SessionService.Stats"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}

	all, err := s.sessions.ListByUser(ctx, userID, 0)
	if err != nil {
		return nil, storeErr(op, "failed to load sessions", err)
	}

	st := models.ComputeSessionStats(all)
	return &st, nil
}

func (s *sessionService) Delete(ctx context.Context, sessionID, userID string) (bool, error) {
	const op = "SessionService.Delete"

	if sessionID == "" || userID == "" {
		return false, utils.E(utils.CodeInvalidArgument, op, "session_id and user_id are required", nil)
	}

	deleted, err := s.sessions.Delete(ctx, sessionID, userID)
	if err != nil {
		return false, storeErr(op, "failed to delete session", err)
	}

	if deleted && s.events != nil {
		if err := s.events.Publish(ctx, sessionID, events.Event{Type: events.TypeSessionDeleted}); err != nil {
			s.log.WithError(err).WithField("session_id", sessionID).Warn("publish session event failed")
		}
	}
	return deleted, nil
}

func (s *sessionService) publish(ctx context.Context, typ string, ss *models.Session) {
	if s.events == nil {
		return
	}
	view := models.NewSessionView(ss)
	if err := s.events.Publish(ctx, ss.SessionID, events.Event{Type: typ, Session: &view}); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"session_id": ss.SessionID,
			"event":      typ,
		}).Warn("publish session event failed")
	}
}

// storeErr translates a repository error for op. msg is the safe message used
// when the failure is not one of the storage sentinels.
func storeErr(op, msg string, err error) error {
	switch {
	case errors.Is(err, utils.ErrNotFound):
		return utils.E(utils.CodeNotFound, op, MsgSessionNotFound, err)
	case errors.Is(err, utils.ErrUnavailable):
		return utils.E(utils.CodeUnavailable, op, "session store unavailable", err)
	}
	return utils.E(utils.CodeInternal, op, msg, err)
}

func navigateErr(op string, err error) error {
	if errors.Is(err, utils.ErrNotFound) {
		return utils.E(utils.CodeNotFound, op, MsgSessionNotFound, err)
	}
	return utils.E(utils.CodeInternal, op, "failed to navigate to question", err)
}
