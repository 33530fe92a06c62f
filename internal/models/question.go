package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type QuestionKind string

const (
	QuestionBehavioral QuestionKind = "behavioral"
	QuestionTechnical  QuestionKind = "technical"
	QuestionCoding     QuestionKind = "coding"
)

func (k QuestionKind) Valid() bool {
	switch k {
	case QuestionBehavioral, QuestionTechnical, QuestionCoding:
		return true
	}
	return false
}

// Question lives in the question bank; sessions only reference QuestionID.
type Question struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	QuestionID string             `bson:"question_id" json:"question_id"`

	Title      string       `bson:"title" json:"title"`
	Prompt     string       `bson:"prompt,omitempty" json:"prompt,omitempty"`
	Kind       QuestionKind `bson:"kind" json:"kind"`                                 // behavioral|technical|coding
	Difficulty string       `bson:"difficulty,omitempty" json:"difficulty,omitempty"` // easy|medium|hard
	Topics     []string     `bson:"topics" json:"topics"`
	URL        string       `bson:"url,omitempty" json:"url,omitempty"`
	Source     string       `bson:"source,omitempty" json:"source,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// JobContext is what question generation knows about the job being practiced for.
type JobContext struct {
	JobID       string `json:"job_id"`
	Title       string `json:"title"`
	Company     string `json:"company"`
	Description string `json:"description"`
}
