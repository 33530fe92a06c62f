package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yoockh/yooprep/internal/events"
	"github.com/yoockh/yooprep/internal/models"
	"github.com/yoockh/yooprep/internal/repositories/memory"
	"github.com/yoockh/yooprep/internal/utils"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, sessionID string, ev events.Event) error {
	args := m.Called(ctx, sessionID, ev)
	return args.Error(0)
}

// mockSessionRepo lets a test script storage failures.
type mockSessionRepo struct {
	mock.Mock
}

func (m *mockSessionRepo) Create(ctx context.Context, s *models.Session) error {
	return m.Called(ctx, s).Error(0)
}

func (m *mockSessionRepo) GetByID(ctx context.Context, sessionID, userID string) (*models.Session, error) {
	args := m.Called(ctx, sessionID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Session), args.Error(1)
}

func (m *mockSessionRepo) FindActiveByJob(ctx context.Context, jobID, userID string) (*models.Session, error) {
	args := m.Called(ctx, jobID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Session), args.Error(1)
}

func (m *mockSessionRepo) ListByUser(ctx context.Context, userID string, limit int64) ([]models.Session, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Session), args.Error(1)
}

func (m *mockSessionRepo) SetProgress(ctx context.Context, sessionID, userID string, answered int, index *int) (*models.Session, error) {
	args := m.Called(ctx, sessionID, userID, answered, index)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Session), args.Error(1)
}

func (m *mockSessionRepo) Advance(ctx context.Context, sessionID, userID string, now time.Time) (*models.Session, error) {
	args := m.Called(ctx, sessionID, userID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Session), args.Error(1)
}

func (m *mockSessionRepo) AdvanceFrom(ctx context.Context, sessionID, userID string, index int, now time.Time) (*models.Session, error) {
	args := m.Called(ctx, sessionID, userID, index, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Session), args.Error(1)
}

func (m *mockSessionRepo) SetIndex(ctx context.Context, sessionID, userID string, index int) (*models.Session, error) {
	args := m.Called(ctx, sessionID, userID, index)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Session), args.Error(1)
}

func (m *mockSessionRepo) SetStatus(ctx context.Context, sessionID, userID string, status models.SessionStatus, now time.Time) (*models.Session, error) {
	args := m.Called(ctx, sessionID, userID, status, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Session), args.Error(1)
}

func (m *mockSessionRepo) Delete(ctx context.Context, sessionID, userID string) (bool, error) {
	args := m.Called(ctx, sessionID, userID)
	return args.Bool(0), args.Error(1)
}

func newTestSessionService(t *testing.T) SessionService {
	t.Helper()
	log, _ := test.NewNullLogger()
	return NewSessionService(memory.NewSessionRepo(), nil, log)
}

func requireCode(t *testing.T, err error, code utils.Code) *utils.AppError {
	t.Helper()
	require.Error(t, err)
	var ae *utils.AppError
	require.True(t, errors.As(err, &ae), "expected AppError, got %T", err)
	assert.Equal(t, code, ae.Code)
	return ae
}

func TestSessionService_Scenarios(t *testing.T) {
	ctx := context.Background()
	svc := newTestSessionService(t)

	// 1. create
	s, err := svc.Create(ctx, "u1", "j1", []string{"q1", "q2", "q3"})
	require.NoError(t, err)
	assert.NotEmpty(t, s.SessionID)
	assert.Equal(t, 3, s.TotalQuestions)
	assert.Equal(t, 0, s.CurrentQuestionIndex)
	assert.Equal(t, 0, s.AnsweredQuestions)
	assert.Equal(t, models.SessionActive, s.Status)
	assert.Nil(t, s.CompletedAt)

	// 2. second active session for the same job
	_, err = svc.Create(ctx, "u1", "j1", []string{"q4", "q5"})
	ae := requireCode(t, err, utils.CodeConflict)
	assert.Equal(t, MsgActiveSessionExists, ae.Message)

	// 4. out of range navigation leaves the cursor alone
	_, err = svc.NavigateToQuestion(ctx, s.SessionID, "u1", 5)
	ae = requireCode(t, err, utils.CodeInvalidArgument)
	assert.Equal(t, MsgInvalidQuestionIndex, ae.Message)

	got, err := svc.FindByID(ctx, s.SessionID, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.CurrentQuestionIndex)

	// 3. three advances complete the session
	want := []struct {
		index, answered int
		status          models.SessionStatus
	}{
		{1, 1, models.SessionActive},
		{2, 2, models.SessionActive},
		{3, 3, models.SessionCompleted},
	}
	for _, w := range want {
		got, err = svc.MoveToNextQuestion(ctx, s.SessionID, "u1")
		require.NoError(t, err)
		assert.Equal(t, w.index, got.CurrentQuestionIndex)
		assert.Equal(t, w.answered, got.AnsweredQuestions)
		assert.Equal(t, w.status, got.Status)
	}
	require.NotNil(t, got.CompletedAt)

	// 5. pausing clears completion
	_, err = svc.UpdateStatus(ctx, s.SessionID, "u1", models.SessionPaused)
	require.NoError(t, err)
	got, err = svc.FindByID(ctx, s.SessionID, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionPaused, got.Status)
	assert.Nil(t, got.CompletedAt)

	// 6. another user sees nothing
	_, err = svc.FindByID(ctx, s.SessionID, "u2")
	ae = requireCode(t, err, utils.CodeNotFound)
	assert.Equal(t, MsgSessionNotFound, ae.Message)
}

func TestSessionService_CreateValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestSessionService(t)

	_, err := svc.Create(ctx, "u1", "j1", nil)
	ae := requireCode(t, err, utils.CodeInvalidArgument)
	assert.Equal(t, MsgQuestionsRequired, ae.Message)

	_, err = svc.Create(ctx, "u1", "j1", []string{"q1", " "})
	requireCode(t, err, utils.CodeInvalidArgument)

	_, err = svc.Create(ctx, "", "j1", []string{"q1"})
	requireCode(t, err, utils.CodeInvalidArgument)
}

func TestSessionService_CreateSingleQuestionCompletesOnFirstAdvance(t *testing.T) {
	ctx := context.Background()
	svc := newTestSessionService(t)

	s, err := svc.Create(ctx, "u1", "j1", []string{"q1"})
	require.NoError(t, err)

	got, err := svc.MoveToNextQuestion(ctx, s.SessionID, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentQuestionIndex)
	assert.Equal(t, models.SessionCompleted, got.Status)
	assert.Equal(t, 100, got.ProgressPercentage())

	// a completed session frees the job for a new one
	_, err = svc.Create(ctx, "u1", "j1", []string{"q2"})
	require.NoError(t, err)
}

func TestSessionService_CreateAfterCancelOrPause(t *testing.T) {
	ctx := context.Background()
	svc := newTestSessionService(t)

	s, err := svc.Create(ctx, "u1", "j1", []string{"q1", "q2"})
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, s.SessionID, "u1", models.SessionCancelled)
	require.NoError(t, err)

	s2, err := svc.Create(ctx, "u1", "j1", []string{"q1", "q2"})
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, s2.SessionID, "u1", models.SessionPaused)
	require.NoError(t, err)

	_, err = svc.Create(ctx, "u1", "j1", []string{"q3"})
	require.NoError(t, err)

	// resuming the paused one would make two active sessions
	_, err = svc.UpdateStatus(ctx, s2.SessionID, "u1", models.SessionActive)
	ae := requireCode(t, err, utils.CodeConflict)
	assert.Equal(t, MsgActiveSessionExists, ae.Message)
}

func TestSessionService_NavigateBoundaries(t *testing.T) {
	ctx := context.Background()
	svc := newTestSessionService(t)

	s, err := svc.Create(ctx, "u1", "j1", []string{"q1", "q2", "q3"})
	require.NoError(t, err)

	for _, idx := range []int{-1, 3} {
		_, err = svc.NavigateToQuestion(ctx, s.SessionID, "u1", idx)
		requireCode(t, err, utils.CodeInvalidArgument)
	}

	got, err := svc.NavigateToQuestion(ctx, s.SessionID, "u1", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentQuestionIndex)
	assert.Equal(t, 0, got.AnsweredQuestions)
	assert.Equal(t, models.SessionActive, got.Status)

	// round trip
	got, err = svc.NavigateToQuestion(ctx, s.SessionID, "u1", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, got.CurrentQuestionIndex)

	_, err = svc.NavigateToQuestion(ctx, "missing", "u1", 0)
	requireCode(t, err, utils.CodeNotFound)
}

// Re-traversal after navigating back counts each advance as an answer, up to
// the total.
func TestSessionService_AdvanceAfterNavigateBackCountsAgain(t *testing.T) {
	ctx := context.Background()
	svc := newTestSessionService(t)

	s, err := svc.Create(ctx, "u1", "j1", []string{"q1", "q2", "q3"})
	require.NoError(t, err)

	_, err = svc.MoveToNextQuestion(ctx, s.SessionID, "u1")
	require.NoError(t, err)
	_, err = svc.NavigateToQuestion(ctx, s.SessionID, "u1", 0)
	require.NoError(t, err)

	got, err := svc.MoveToNextQuestion(ctx, s.SessionID, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentQuestionIndex)
	assert.Equal(t, 2, got.AnsweredQuestions)

	got, err = svc.MoveToNextQuestion(ctx, s.SessionID, "u1")
	require.NoError(t, err)
	got, err = svc.MoveToNextQuestion(ctx, s.SessionID, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.CurrentQuestionIndex)
	assert.Equal(t, 3, got.AnsweredQuestions)
	assert.Equal(t, models.SessionCompleted, got.Status)
}

func TestSessionService_AdvancePastEndIsNoop(t *testing.T) {
	ctx := context.Background()
	svc := newTestSessionService(t)

	s, err := svc.Create(ctx, "u1", "j1", []string{"q1"})
	require.NoError(t, err)
	done, err := svc.MoveToNextQuestion(ctx, s.SessionID, "u1")
	require.NoError(t, err)

	again, err := svc.MoveToNextQuestion(ctx, s.SessionID, "u1")
	require.NoError(t, err)
	assert.Equal(t, done.CurrentQuestionIndex, again.CurrentQuestionIndex)
	assert.Equal(t, done.AnsweredQuestions, again.AnsweredQuestions)
	assert.True(t, done.CompletedAt.Equal(*again.CompletedAt))
}

func TestSessionService_FindByIDIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := newTestSessionService(t)

	s, err := svc.Create(ctx, "u1", "j1", []string{"q1", "q2"})
	require.NoError(t, err)

	a, err := svc.FindByID(ctx, s.SessionID, "u1")
	require.NoError(t, err)
	b, err := svc.FindByID(ctx, s.SessionID, "u1")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSessionService_FindActiveByJobID(t *testing.T) {
	ctx := context.Background()
	svc := newTestSessionService(t)

	_, err := svc.FindActiveByJobID(ctx, "j1", "u1")
	requireCode(t, err, utils.CodeNotFound)

	s, err := svc.Create(ctx, "u1", "j1", []string{"q1"})
	require.NoError(t, err)

	got, err := svc.FindActiveByJobID(ctx, "j1", "u1")
	require.NoError(t, err)
	assert.Equal(t, s.SessionID, got.SessionID)

	_, err = svc.FindActiveByJobID(ctx, "j1", "u2")
	requireCode(t, err, utils.CodeNotFound)
}

func TestSessionService_UpdateProgressIsVerbatim(t *testing.T) {
	ctx := context.Background()
	svc := newTestSessionService(t)

	s, err := svc.Create(ctx, "u1", "j1", []string{"q1", "q2", "q3", "q4"})
	require.NoError(t, err)

	idx := 2
	got, err := svc.UpdateProgress(ctx, s.SessionID, "u1", 3, &idx)
	require.NoError(t, err)
	assert.Equal(t, 3, got.AnsweredQuestions)
	assert.Equal(t, 2, got.CurrentQuestionIndex)
	assert.Equal(t, 75, got.ProgressPercentage())

	got, err = svc.UpdateProgress(ctx, s.SessionID, "u1", 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AnsweredQuestions)
	assert.Equal(t, 2, got.CurrentQuestionIndex)

	_, err = svc.UpdateProgress(ctx, s.SessionID, "u2", 1, nil)
	requireCode(t, err, utils.CodeNotFound)
}

func TestSessionService_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	svc := newTestSessionService(t)

	s, err := svc.Create(ctx, "u1", "j1", []string{"q1", "q2"})
	require.NoError(t, err)

	got, err := svc.UpdateStatus(ctx, s.SessionID, "u1", models.SessionCompleted)
	require.NoError(t, err)
	require.NotNil(t, got.CompletedAt)

	// reopening is allowed while no other session is active
	got, err = svc.UpdateStatus(ctx, s.SessionID, "u1", models.SessionActive)
	require.NoError(t, err)
	assert.Equal(t, models.SessionActive, got.Status)
	assert.Nil(t, got.CompletedAt)

	_, err = svc.UpdateStatus(ctx, s.SessionID, "u1", models.SessionStatus("archived"))
	requireCode(t, err, utils.CodeInvalidArgument)

	_, err = svc.UpdateStatus(ctx, "missing", "u1", models.SessionPaused)
	requireCode(t, err, utils.CodeNotFound)
}

func TestSessionService_ListByUserLimits(t *testing.T) {
	ctx := context.Background()
	svc := newTestSessionService(t)

	for i := 0; i < 25; i++ {
		_, err := svc.Create(ctx, "u1", "job-"+string(rune('a'+i)), []string{"q1"})
		require.NoError(t, err)
	}

	out, err := svc.ListByUser(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, out, DefaultSessionListLimit)

	out, err = svc.ListByUser(ctx, "u1", 500)
	require.NoError(t, err)
	assert.Len(t, out, 25)

	out, err = svc.ListByUser(ctx, "u2", 10)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestSessionService_Stats(t *testing.T) {
	ctx := context.Background()
	svc := newTestSessionService(t)

	st, err := svc.Stats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStats{}, *st)

	a, err := svc.Create(ctx, "u1", "j1", []string{"q1", "q2", "q3"})
	require.NoError(t, err)
	_, err = svc.MoveToNextQuestion(ctx, a.SessionID, "u1")
	require.NoError(t, err)

	b, err := svc.Create(ctx, "u1", "j2", []string{"q1"})
	require.NoError(t, err)
	_, err = svc.MoveToNextQuestion(ctx, b.SessionID, "u1")
	require.NoError(t, err)

	st, err = svc.Stats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 1, st.Completed)
	assert.Equal(t, 1, st.Active)
	// (33 + 100) / 2 = 66.5
	assert.Equal(t, 67, st.AverageProgress)
}

func TestSessionService_Delete(t *testing.T) {
	ctx := context.Background()
	svc := newTestSessionService(t)

	s, err := svc.Create(ctx, "u1", "j1", []string{"q1"})
	require.NoError(t, err)

	deleted, err := svc.Delete(ctx, s.SessionID, "u2")
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = svc.Delete(ctx, s.SessionID, "u1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = svc.Delete(ctx, s.SessionID, "u1")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = svc.FindByID(ctx, s.SessionID, "u1")
	requireCode(t, err, utils.CodeNotFound)
}

func TestSessionService_ConcurrentCreateYieldsOneActive(t *testing.T) {
	ctx := context.Background()
	svc := newTestSessionService(t)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(ctx, "u1", "j1", []string{"q1", "q2"})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				created++
				return
			}
			if utils.IsCode(err, utils.CodeConflict) {
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, 15, conflicts)
}

func TestSessionService_ConcurrentAdvanceStopsAtTotal(t *testing.T) {
	ctx := context.Background()
	svc := newTestSessionService(t)

	s, err := svc.Create(ctx, "u1", "j1", []string{"q1", "q2", "q3", "q4", "q5"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.MoveToNextQuestion(ctx, s.SessionID, "u1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := svc.FindByID(ctx, s.SessionID, "u1")
	require.NoError(t, err)
	assert.Equal(t, 5, got.CurrentQuestionIndex)
	assert.Equal(t, 5, got.AnsweredQuestions)
	assert.Equal(t, models.SessionCompleted, got.Status)
}

func TestSessionService_StoreUnavailable(t *testing.T) {
	ctx := context.Background()
	repo := new(mockSessionRepo)
	log, _ := test.NewNullLogger()
	svc := NewSessionService(repo, nil, log)

	down := errors.Join(utils.ErrUnavailable, errors.New("connection refused"))
	repo.On("FindActiveByJob", mock.Anything, "j1", "u1").Return(nil, down)
	repo.On("GetByID", mock.Anything, "s1", "u1").Return(nil, down)

	_, err := svc.FindActiveByJobID(ctx, "j1", "u1")
	requireCode(t, err, utils.CodeUnavailable)

	_, err = svc.Create(ctx, "u1", "j1", []string{"q1"})
	requireCode(t, err, utils.CodeUnavailable)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)

	// navigation reports anything but NotFound as internal
	_, err = svc.NavigateToQuestion(ctx, "s1", "u1", 0)
	requireCode(t, err, utils.CodeInternal)
}

func TestSessionService_CreateInsertConflict(t *testing.T) {
	ctx := context.Background()
	repo := new(mockSessionRepo)
	svc := NewSessionService(repo, nil, nil)

	repo.On("FindActiveByJob", mock.Anything, "j1", "u1").Return(nil, utils.ErrNotFound)
	repo.On("Create", mock.Anything, mock.AnythingOfType("*models.Session")).Return(utils.ErrConflict)

	_, err := svc.Create(ctx, "u1", "j1", []string{"q1"})
	ae := requireCode(t, err, utils.CodeConflict)
	assert.Equal(t, MsgActiveSessionExists, ae.Message)
	repo.AssertExpectations(t)
}

func TestSessionService_PublishesEvents(t *testing.T) {
	ctx := context.Background()
	pub := new(mockPublisher)
	log, hook := test.NewNullLogger()
	svc := NewSessionService(memory.NewSessionRepo(), pub, log)

	ofType := func(typ string) any {
		return mock.MatchedBy(func(ev events.Event) bool { return ev.Type == typ })
	}
	pub.On("Publish", mock.Anything, mock.Anything, ofType(events.TypeSessionCreated)).Return(nil).Once()
	pub.On("Publish", mock.Anything, mock.Anything, ofType(events.TypeSessionCompleted)).
		Return(errors.New("redis down")).Once()

	s, err := svc.Create(ctx, "u1", "j1", []string{"q1"})
	require.NoError(t, err)

	// a failed publish is logged, the advance still succeeds
	got, err := svc.MoveToNextQuestion(ctx, s.SessionID, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, got.Status)

	pub.AssertExpectations(t)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, s.SessionID, hook.LastEntry().Data["session_id"])
}
