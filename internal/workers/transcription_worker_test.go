package workers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yoockh/yooprep/internal/events"
	"github.com/yoockh/yooprep/internal/models"
	"github.com/yoockh/yooprep/internal/repositories/memory"
	"github.com/yoockh/yooprep/internal/services"
)

type mockSTT struct {
	mock.Mock
}

func (m *mockSTT) Transcribe(ctx context.Context, audio []byte, language string) (string, float64, error) {
	args := m.Called(ctx, audio, language)
	return args.String(0), args.Get(1).(float64), args.Error(2)
}

func (m *mockSTT) TranscribeURI(ctx context.Context, uri, language string) (string, float64, error) {
	args := m.Called(ctx, uri, language)
	return args.String(0), args.Get(1).(float64), args.Error(2)
}

func (m *mockSTT) Close() error { return nil }

type workerFixture struct {
	sessions services.SessionService
	answers  *memory.AnswerRepo
	bus      *events.MemoryBus
	stt      *mockSTT
	pool     *TranscriptionWorkerPool
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()
	log, _ := test.NewNullLogger()
	f := &workerFixture{
		sessions: services.NewSessionService(memory.NewSessionRepo(), nil, log),
		answers:  memory.NewAnswerRepo(),
		bus:      events.NewMemoryBus(),
		stt:      new(mockSTT),
	}
	f.pool = &TranscriptionWorkerPool{
		Answers: services.NewAnswerService(services.AnswerDeps{Answers: f.answers, Sessions: f.sessions, Logger: log}),
		STT:     f.stt,
		Events:  f.bus,
		Logger:  log,
	}
	return f
}

func nextEvent(t *testing.T, sub events.Subscription) events.Event {
	t.Helper()
	select {
	case payload := <-sub.C():
		var ev events.Event
		require.NoError(t, json.Unmarshal(payload, &ev))
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event")
	}
	return events.Event{}
}

func TestParseJob(t *testing.T) {
	job := models.TranscriptionJob{
		JobID: "j", SessionID: "s", UserID: "u", QuestionIndex: 2, AudioURI: "gs://b/o", Language: "id",
	}
	got, err := parseJob(jobValues(job))
	require.NoError(t, err)
	assert.Equal(t, job, got)

	_, err = parseJob(map[string]any{"session_id": "s", "user_id": "u", "audio_uri": "gs://b/o", "question_index": "x"})
	assert.Error(t, err)

	_, err = parseJob(map[string]any{"session_id": "s", "question_index": "0"})
	assert.Error(t, err)
}

func TestTranscriptionWorker_RecordsAnswer(t *testing.T) {
	ctx := context.Background()
	f := newWorkerFixture(t)

	s, err := f.sessions.Create(ctx, "u1", "j1", []string{"q1", "q2"})
	require.NoError(t, err)

	f.stt.On("TranscribeURI", mock.Anything, "gs://b/a.webm", "id-ID").Return("saya memimpin tim", 0.9, nil).Once()

	f.pool.process(ctx, models.TranscriptionJob{
		JobID: "job1", SessionID: s.SessionID, UserID: "u1", QuestionIndex: 0, AudioURI: "gs://b/a.webm", Language: "id",
	})

	list, err := f.answers.ListBySession(ctx, "u1", s.SessionID, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "saya memimpin tim", list[0].Content)
	assert.Equal(t, models.AnswerAudio, list[0].Source)
	assert.Equal(t, "gs://b/a.webm", list[0].AudioURI)

	var meta map[string]any
	require.NoError(t, json.Unmarshal(list[0].Metadata, &meta))
	assert.Equal(t, "job1", meta["job_id"])
	assert.InDelta(t, 0.9, meta["confidence"], 1e-9)

	got, err := f.sessions.FindByID(ctx, s.SessionID, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentQuestionIndex)
	f.stt.AssertExpectations(t)
}

func TestTranscriptionWorker_StaleJobFails(t *testing.T) {
	ctx := context.Background()
	f := newWorkerFixture(t)

	s, err := f.sessions.Create(ctx, "u1", "j1", []string{"q1", "q2"})
	require.NoError(t, err)
	_, err = f.sessions.MoveToNextQuestion(ctx, s.SessionID, "u1")
	require.NoError(t, err)

	sub, err := f.bus.Subscribe(ctx, s.SessionID)
	require.NoError(t, err)
	defer sub.Close()

	f.stt.On("TranscribeURI", mock.Anything, mock.Anything, "en-US").Return("late answer", 0.8, nil).Once()

	f.pool.process(ctx, models.TranscriptionJob{
		JobID: "job1", SessionID: s.SessionID, UserID: "u1", QuestionIndex: 0, AudioURI: "gs://b/a.webm",
	})

	ev := nextEvent(t, sub)
	assert.Equal(t, events.TypeAnswerFailed, ev.Type)
	assert.Equal(t, services.MsgQuestionMovedOn, ev.Message)

	list, err := f.answers.ListBySession(ctx, "u1", s.SessionID, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestTranscriptionWorker_STTFailure(t *testing.T) {
	ctx := context.Background()
	f := newWorkerFixture(t)

	s, err := f.sessions.Create(ctx, "u1", "j1", []string{"q1"})
	require.NoError(t, err)

	sub, err := f.bus.Subscribe(ctx, s.SessionID)
	require.NoError(t, err)
	defer sub.Close()

	f.stt.On("TranscribeURI", mock.Anything, mock.Anything, mock.Anything).Return("", 0.0, errors.New("deadline")).Once()
	f.pool.process(ctx, models.TranscriptionJob{SessionID: s.SessionID, UserID: "u1", AudioURI: "gs://b/a.wav"})

	ev := nextEvent(t, sub)
	assert.Equal(t, events.TypeAnswerFailed, ev.Type)
	assert.Equal(t, "transcription failed", ev.Message)

	f.stt.On("TranscribeURI", mock.Anything, mock.Anything, mock.Anything).Return("  ", 0.0, nil).Once()
	f.pool.process(ctx, models.TranscriptionJob{SessionID: s.SessionID, UserID: "u1", AudioURI: "gs://b/a.wav"})

	ev = nextEvent(t, sub)
	assert.Equal(t, "no speech detected", ev.Message)
}
