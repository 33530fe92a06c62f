package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

type AnswerSource string

const (
	AnswerText  AnswerSource = "text"
	AnswerAudio AnswerSource = "audio"
)

type Answer struct {
	ID            string       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	SessionID     string       `gorm:"column:session_id;type:uuid;index:idx_answers_session_created" json:"session_id"`
	UserID        string       `gorm:"column:user_id;type:text;index" json:"user_id"`
	QuestionID    string       `gorm:"column:question_id;type:text" json:"question_id"`
	QuestionIndex int          `gorm:"column:question_index;type:integer" json:"question_index"`
	Content       string       `gorm:"column:content;type:text" json:"content"`
	Source        AnswerSource `gorm:"column:source;type:text" json:"source"` // text|audio
	AudioURI      string       `gorm:"column:audio_uri;type:text" json:"audio_uri,omitempty"`

	Topics   pq.StringArray `gorm:"column:topics;type:text[]" json:"topics"`
	Metadata datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz;index:idx_answers_session_created" json:"created_at"`
}

func (Answer) TableName() string { return "answers" }

// TranscriptionJob is queued when a recorded answer needs speech-to-text
// before it can be recorded.
type TranscriptionJob struct {
	JobID         string `json:"job_id"`
	SessionID     string `json:"session_id"`
	UserID        string `json:"user_id"`
	QuestionIndex int    `json:"question_index"`
	AudioURI      string `json:"audio_uri"`
	Language      string `json:"language"`
}
