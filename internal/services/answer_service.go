package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/yoockh/yooprep/internal/events"
	"github.com/yoockh/yooprep/internal/models"
	"github.com/yoockh/yooprep/internal/repositories"
	"github.com/yoockh/yooprep/internal/storage"
	"github.com/yoockh/yooprep/internal/utils"
)

const (
	MsgSessionNotActive     = "session is not active"
	MsgNoRemainingQuestions = "session has no remaining questions"
	MsgQuestionMovedOn      = "session has moved past this question"

	DefaultAnswerListLimit = 50
	MaxAnswerListLimit     = 200
	DefaultAudioMaxBytes   = 20 << 20
)

// AudioQueue hands recorded answers to the transcription workers.
type AudioQueue interface {
	Enqueue(ctx context.Context, job models.TranscriptionJob) error
}

type SubmitOptions struct {
	Source models.AnswerSource
	// ExpectedIndex, when set, must equal the session cursor.
	ExpectedIndex *int
	AudioURI      string
	Metadata      map[string]any
}

type SubmitResult struct {
	Answer  *models.Answer      `json:"answer"`
	Session *models.SessionView `json:"session"`
}

type AudioUpload struct {
	FileName    string
	ContentType string
	Size        int64
	Language    string
	Body        io.Reader
}

type AnswerService interface {
	Submit(ctx context.Context, userID, sessionID, content string, opts SubmitOptions) (*SubmitResult, error)
	SubmitAudio(ctx context.Context, userID, sessionID string, in AudioUpload) (*models.TranscriptionJob, error)
	ListBySession(ctx context.Context, userID, sessionID string, limit int) ([]models.Answer, error)
}

type AnswerDeps struct {
	Answers   repositories.AnswerRepository
	Sessions  SessionService
	Questions QuestionService // optional, used to tag answers with topics
	Uploader  storage.Uploader
	Queue     AudioQueue
	Events    events.Publisher
	Logger    *logrus.Logger

	AudioMaxBytes int64
}

type answerService struct {
	AnswerDeps
	now func() time.Time
}

func NewAnswerService(deps AnswerDeps) AnswerService {
	if deps.Logger == nil {
		deps.Logger = logrus.New()
	}
	if deps.AudioMaxBytes <= 0 {
		deps.AudioMaxBytes = DefaultAudioMaxBytes
	}
	return &answerService{AnswerDeps: deps, now: func() time.Time { return time.Now().UTC() }}
}

// Submit records an answer to the question under the session cursor and
// advances the session.
func (s *answerService) Submit(ctx context.Context, userID, sessionID, content string, opts SubmitOptions) (*SubmitResult, error) {
	const op = "AnswerService.Submit"

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "content is required", nil)
	}
	if opts.Source == "" {
		opts.Source = models.AnswerText
	}

	session, err := s.Sessions.FindByID(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	questionID, err := answerable(op, session, opts.ExpectedIndex)
	if err != nil {
		return nil, err
	}

	answer := &models.Answer{
		ID:            uuid.NewString(),
		SessionID:     session.SessionID,
		UserID:        userID,
		QuestionID:    questionID,
		QuestionIndex: session.CurrentQuestionIndex,
		Content:       content,
		Source:        opts.Source,
		AudioURI:      opts.AudioURI,
		Topics:        s.topicsFor(ctx, questionID),
		CreatedAt:     s.now(),
	}
	if len(opts.Metadata) > 0 {
		b, err := json.Marshal(opts.Metadata)
		if err != nil {
			return nil, utils.E(utils.CodeInvalidArgument, op, "metadata must be JSON", err)
		}
		answer.Metadata = datatypes.JSON(b)
	}

	if err := s.Answers.Insert(ctx, answer); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to record answer", err)
	}

	// the guarded advance decides which of racing answers to the same
	// question is kept; the loser's row is removed
	advanced, err := s.Sessions.MoveToNextQuestionFrom(ctx, session.SessionID, userID, answer.QuestionIndex)
	if err != nil {
		if derr := s.Answers.Delete(context.WithoutCancel(ctx), answer.ID); derr != nil {
			s.Logger.WithError(derr).WithFields(logrus.Fields{
				"session_id": session.SessionID,
				"answer_id":  answer.ID,
			}).Error("answer recorded but session did not advance")
		}
		return nil, err
	}

	view := models.NewSessionView(advanced)
	if s.Events != nil {
		ev := events.Event{Type: events.TypeAnswerRecorded, Answer: answer, Session: &view}
		if err := s.Events.Publish(ctx, session.SessionID, ev); err != nil {
			s.Logger.WithError(err).WithField("session_id", session.SessionID).Warn("publish answer event failed")
		}
	}

	return &SubmitResult{Answer: answer, Session: &view}, nil
}

// SubmitAudio uploads a recorded answer and queues it for transcription. The
// job pins the current cursor so a late transcription cannot answer a later
// question.
func (s *answerService) SubmitAudio(ctx context.Context, userID, sessionID string, in AudioUpload) (*models.TranscriptionJob, error) {
	const op = "AnswerService.SubmitAudio"

	if s.Uploader == nil || s.Queue == nil {
		return nil, utils.E(utils.CodeUnavailable, op, "audio answers are not configured", nil)
	}
	if in.Body == nil || in.Size == 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "audio file is required", nil)
	}
	if in.Size > s.AudioMaxBytes {
		return nil, utils.E(utils.CodeInvalidArgument, op, fmt.Sprintf("audio file exceeds %d bytes", s.AudioMaxBytes), nil)
	}
	if !strings.HasPrefix(in.ContentType, "audio/") {
		return nil, utils.E(utils.CodeInvalidArgument, op, "content type must be audio/*", nil)
	}

	session, err := s.Sessions.FindByID(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if _, err := answerable(op, session, nil); err != nil {
		return nil, err
	}

	jobID := uuid.NewString()
	object := fmt.Sprintf("answers/%s/%s/%d-%s%s",
		userID, session.SessionID, session.CurrentQuestionIndex, jobID, strings.ToLower(filepath.Ext(in.FileName)))

	uri, err := s.Uploader.Upload(ctx, object, in.ContentType, io.LimitReader(in.Body, s.AudioMaxBytes))
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to store audio", err)
	}

	job := models.TranscriptionJob{
		JobID:         jobID,
		SessionID:     session.SessionID,
		UserID:        userID,
		QuestionIndex: session.CurrentQuestionIndex,
		AudioURI:      uri,
		Language:      in.Language,
	}
	if err := s.Queue.Enqueue(ctx, job); err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to queue transcription", err)
	}

	s.Logger.WithFields(logrus.Fields{
		"session_id":     job.SessionID,
		"job_id":         job.JobID,
		"question_index": job.QuestionIndex,
	}).Info("audio answer queued")
	return &job, nil
}

func (s *answerService) ListBySession(ctx context.Context, userID, sessionID string, limit int) ([]models.Answer, error) {
	const op = "AnswerService.ListBySession"

	if _, err := s.Sessions.FindByID(ctx, sessionID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultAnswerListLimit
	}
	if limit > MaxAnswerListLimit {
		limit = MaxAnswerListLimit
	}

	out, err := s.Answers.ListBySession(ctx, userID, sessionID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list answers", err)
	}
	return out, nil
}

func (s *answerService) topicsFor(ctx context.Context, questionID string) []string {
	if s.Questions == nil {
		return []string{}
	}
	qs, err := s.Questions.Resolve(ctx, []string{questionID})
	if err != nil || len(qs) == 0 {
		if err != nil {
			s.Logger.WithError(err).WithField("question_id", questionID).Debug("question lookup failed")
		}
		return []string{}
	}
	return qs[0].Topics
}

// answerable checks that session can take an answer now and returns the id of
// the question under the cursor.
func answerable(op string, session *models.Session, expected *int) (string, error) {
	if session.Status != models.SessionActive {
		return "", utils.E(utils.CodeConflict, op, MsgSessionNotActive, nil)
	}
	qid, ok := session.CurrentQuestion()
	if !ok {
		return "", utils.E(utils.CodeInvalidArgument, op, MsgNoRemainingQuestions, nil)
	}
	if expected != nil && *expected != session.CurrentQuestionIndex {
		return "", utils.E(utils.CodeConflict, op, MsgQuestionMovedOn, nil)
	}
	return qid, nil
}
