package events

import (
	"context"
	"time"

	"github.com/yoockh/yooprep/internal/models"
)

// subscriptionBuffer is how many undelivered events a subscription holds.
const subscriptionBuffer = 16

const (
	TypeSessionCreated   = "session.created"
	TypeSessionProgress  = "session.progress"
	TypeSessionCompleted = "session.completed"
	TypeSessionStatus    = "session.status"
	TypeSessionDeleted   = "session.deleted"
	TypeAnswerRecorded   = "answer.recorded"
	TypeAnswerFailed     = "answer.failed"
)

type Event struct {
	Type      string              `json:"type"`
	SessionID string              `json:"session_id"`
	Session   *models.SessionView `json:"session,omitempty"`
	Answer    *models.Answer      `json:"answer,omitempty"`
	Message   string              `json:"message,omitempty"`
	At        time.Time           `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, sessionID string, ev Event) error
}

// Subscription delivers JSON-encoded events for one session until closed.
type Subscription interface {
	C() <-chan []byte
	Close() error
}

type Subscriber interface {
	Subscribe(ctx context.Context, sessionID string) (Subscription, error)
}

type Bus interface {
	Publisher
	Subscriber
}

func Channel(sessionID string) string {
	return "session:" + sessionID + ":events"
}
