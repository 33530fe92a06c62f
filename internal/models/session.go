package models

import (
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionPaused    SessionStatus = "paused"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
)

func (s SessionStatus) Valid() bool {
	switch s {
	case SessionActive, SessionPaused, SessionCompleted, SessionCancelled:
		return true
	}
	return false
}

// Session is one user's run through a fixed, ordered list of interview
// questions for a single job application.
type Session struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	SessionID string             `bson:"session_id" json:"session_id"` // uuid v4
	UserID    string             `bson:"user_id" json:"user_id"`
	JobID     string             `bson:"job_id" json:"job_id"`

	QuestionIDs          []string `bson:"question_ids" json:"question_ids"`
	CurrentQuestionIndex int      `bson:"current_question_index" json:"current_question_index"`
	TotalQuestions       int      `bson:"total_questions" json:"total_questions"`
	AnsweredQuestions    int      `bson:"answered_questions" json:"answered_questions"`

	Status      SessionStatus `bson:"status" json:"status"`
	StartedAt   time.Time     `bson:"started_at" json:"started_at"`
	CompletedAt *time.Time    `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
}

// ProgressPercentage is answered/total as a whole percentage, rounded half up.
func (s *Session) ProgressPercentage() int {
	return progressPercentage(s.AnsweredQuestions, s.TotalQuestions)
}

// CurrentQuestion returns the question id under the cursor, if any.
func (s *Session) CurrentQuestion() (string, bool) {
	if s.CurrentQuestionIndex < 0 || s.CurrentQuestionIndex >= len(s.QuestionIDs) {
		return "", false
	}
	return s.QuestionIDs[s.CurrentQuestionIndex], true
}

func (s *Session) RemainingQuestions() int {
	return s.TotalQuestions - s.AnsweredQuestions
}

// HasCurrentQuestion reports whether the cursor still points at a question.
func (s *Session) HasCurrentQuestion() bool {
	return s.CurrentQuestionIndex < s.TotalQuestions
}

// Clone returns a deep copy; stores hand out copies so callers cannot mutate
// stored state.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.QuestionIDs = append([]string(nil), s.QuestionIDs...)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// SessionView is the read shape returned to API callers: the stored fields
// plus the derived values.
type SessionView struct {
	*Session
	ProgressPercentage int        `json:"progress_percentage"`
	CurrentQuestion    *string    `json:"current_question,omitempty"`
	RemainingQuestions int        `json:"remaining_questions"`
	Questions          []Question `json:"questions,omitempty"`
}

func NewSessionView(s *Session) SessionView {
	v := SessionView{
		Session:            s,
		ProgressPercentage: s.ProgressPercentage(),
		RemainingQuestions: s.RemainingQuestions(),
	}
	if q, ok := s.CurrentQuestion(); ok {
		v.CurrentQuestion = &q
	}
	return v
}

type SessionStats struct {
	Total           int `json:"total"`
	Completed       int `json:"completed"`
	Active          int `json:"active"`
	AverageProgress int `json:"average_progress"`
}

// ComputeSessionStats aggregates stats over a user's sessions.
func ComputeSessionStats(sessions []Session) SessionStats {
	st := SessionStats{Total: len(sessions)}
	if st.Total == 0 {
		return st
	}

	sum := 0
	for i := range sessions {
		switch sessions[i].Status {
		case SessionCompleted:
			st.Completed++
		case SessionActive:
			st.Active++
		}
		sum += sessions[i].ProgressPercentage()
	}
	st.AverageProgress = roundHalfUp(float64(sum) / float64(st.Total))
	return st
}

func progressPercentage(answered, total int) int {
	if total <= 0 {
		return 0
	}
	return roundHalfUp(100 * float64(answered) / float64(total))
}

func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}
