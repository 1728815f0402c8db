package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"xsch-membership-backend/pkg/models"
	"xsch-membership-backend/pkg/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCatalog records completions and rejects repeated (task, member) pairs.
type fakeCatalog struct {
	mu        sync.Mutex
	tasks     []models.Task
	completed map[int64]bool
	balance   int
	calls     []int
	fail      error
}

func newFakeCatalog(tasks ...models.Task) *fakeCatalog {
	return &fakeCatalog{tasks: tasks, completed: make(map[int64]bool)}
}

func (f *fakeCatalog) AvailableTasks(_ context.Context, _ string) ([]models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Task
	for _, t := range f.tasks {
		if !f.completed[t.ID] {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeCatalog) CompleteTask(_ context.Context, taskID int64, _ string, points int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, points)
	if f.fail != nil {
		return 0, f.fail
	}
	if f.completed[taskID] {
		return f.balance, models.ErrDuplicateCompletion
	}
	f.completed[taskID] = true
	f.balance += points
	return f.balance, nil
}

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func at(t time.Time) *time.Time { return &t }

func signedIn(t *testing.T, backend session.Backend, points int) *session.Manager {
	t.Helper()
	m := session.NewManager(backend)
	require.NoError(t, m.SignIn(session.FromMember(models.Member{ID: "m1", Points: points})))
	return m
}

func balance(t *testing.T, m *session.Manager) int {
	t.Helper()
	s, err := m.Load()
	require.NoError(t, err)
	return s.Points
}

func TestStartResumeSettlesOnce(t *testing.T) {
	task := models.Task{ID: 1, Caption: "Compartir", Points: 10, LinkURL: "https://example.com/p"}
	catalog := newFakeCatalog(task, models.Task{ID: 2, Points: 5})
	sessions := signedIn(t, session.NewMemoryBackend(), 0)

	var launched []string
	var events []session.Event
	sessions.Bus().Subscribe(func(e session.Event) { events = append(events, e) })

	c := NewController(catalog, sessions,
		WithClock(func() time.Time { return now }),
		WithLauncher(LauncherFunc(func(_ context.Context, t models.Task) error {
			launched = append(launched, t.LinkURL)
			return nil
		})),
	)

	tasks, err := c.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	require.NoError(t, c.StartTask(context.Background(), task))
	assert.Equal(t, Pending, c.State())
	assert.Equal(t, []string{"https://example.com/p"}, launched)

	res, err := c.Resume(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 10, res.PointsAwarded)
	assert.Equal(t, 10, res.Balance)
	assert.False(t, res.Duplicate)

	assert.Equal(t, Idle, c.State())
	assert.Equal(t, 10, balance(t, sessions))
	assert.Len(t, catalog.calls, 1)
	require.Len(t, c.Available(), 1)
	assert.Equal(t, int64(2), c.Available()[0].ID)

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, session.PointsChanged, last.Kind)
	assert.Equal(t, 10, last.Points)

	res, err = c.Resume(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, res)
	assert.Len(t, catalog.calls, 1)
}

func TestSettleTwiceCreditsOnce(t *testing.T) {
	task := models.Task{ID: 3, Points: 10}
	catalog := newFakeCatalog(task)
	sessions := signedIn(t, session.NewMemoryBackend(), 5)
	c := NewController(catalog, sessions)

	_, err := c.Settle(context.Background(), task)
	require.NoError(t, err)
	res, err := c.Settle(context.Background(), task)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, 15, balance(t, sessions))

	// a second controller for the same member hits the catalog's duplicate rejection
	other := NewController(catalog, sessions)
	res, err = other.Settle(context.Background(), task)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, 0, res.PointsAwarded)
	assert.Equal(t, 15, balance(t, sessions))
}

func TestNegativeRewardIsFloored(t *testing.T) {
	task := models.Task{ID: 4, Points: -5}
	catalog := newFakeCatalog(task)
	sessions := signedIn(t, session.NewMemoryBackend(), 8)

	res, err := NewController(catalog, sessions).Settle(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, 0, res.PointsAwarded)
	assert.Equal(t, []int{0}, catalog.calls)
	assert.Equal(t, 8, balance(t, sessions))
}

func TestDeadlineBoundary(t *testing.T) {
	catalog := newFakeCatalog(
		models.Task{ID: 1, Deadline: at(now)},
		models.Task{ID: 2, Deadline: at(now.Add(time.Second))},
		models.Task{ID: 3},
	)
	sessions := signedIn(t, session.NewMemoryBackend(), 0)
	c := NewController(catalog, sessions, WithClock(func() time.Time { return now }))

	tasks, err := c.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, int64(2), tasks[0].ID)
	assert.Equal(t, int64(3), tasks[1].ID)

	expired := models.Task{ID: 1, Deadline: at(now)}
	assert.False(t, c.CanStart(expired))
	assert.ErrorIs(t, c.StartTask(context.Background(), expired), ErrTaskExpired)
	assert.Equal(t, Idle, c.State())

	assert.True(t, c.CanStart(tasks[0]))
	assert.NoError(t, c.StartTask(context.Background(), tasks[0]))
}

func TestLastStartWins(t *testing.T) {
	first := models.Task{ID: 1, Points: 3}
	second := models.Task{ID: 2, Points: 7}
	catalog := newFakeCatalog(first, second)
	sessions := signedIn(t, session.NewMemoryBackend(), 0)
	c := NewController(catalog, sessions)

	require.NoError(t, c.StartTask(context.Background(), first))
	require.NoError(t, c.StartTask(context.Background(), second))
	inFlight, ok := c.InFlight()
	require.True(t, ok)
	assert.Equal(t, int64(2), inFlight.ID)

	res, err := c.Resume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.TaskID)
	assert.Equal(t, []int{7}, catalog.calls)
	assert.Equal(t, 7, balance(t, sessions))
}

func TestFailedSettlementReturnsToIdle(t *testing.T) {
	task := models.Task{ID: 1, Points: 10}
	catalog := newFakeCatalog(task)
	catalog.fail = errors.New("network down")
	sessions := signedIn(t, session.NewMemoryBackend(), 2)
	c := NewController(catalog, sessions)

	require.NoError(t, c.StartTask(context.Background(), task))
	_, err := c.Resume(context.Background())
	assert.Error(t, err)
	assert.Equal(t, Idle, c.State())
	assert.Equal(t, 2, balance(t, sessions))

	_, ok := c.InFlight()
	assert.False(t, ok)
	res, err := c.Resume(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, res)
	assert.Len(t, catalog.calls, 1)
}

func TestLaunchFailureClearsMarker(t *testing.T) {
	c := NewController(newFakeCatalog(), signedIn(t, session.NewMemoryBackend(), 0),
		WithLauncher(LauncherFunc(func(context.Context, models.Task) error { return errors.New("blocked") })))

	assert.Error(t, c.StartTask(context.Background(), models.Task{ID: 1}))
	assert.Equal(t, Idle, c.State())
}

func TestVolatileMarkerIsLostOnRestart(t *testing.T) {
	backend := session.NewMemoryBackend()
	sessions := signedIn(t, backend, 0)
	catalog := newFakeCatalog(models.Task{ID: 1, Points: 10})

	require.NoError(t, NewController(catalog, sessions).StartTask(context.Background(), models.Task{ID: 1, Points: 10}))

	restarted := NewController(catalog, session.NewManager(backend))
	assert.Equal(t, Idle, restarted.State())
	res, err := restarted.Resume(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, res)
	assert.Empty(t, catalog.calls)
}

func TestDurableMarkerSurvivesRestart(t *testing.T) {
	backend := session.NewMemoryBackend()
	sessions := signedIn(t, backend, 0)
	catalog := newFakeCatalog(models.Task{ID: 1, Points: 10})

	require.NoError(t, NewController(catalog, sessions, WithDurableInFlight()).
		StartTask(context.Background(), models.Task{ID: 1, Caption: "Like", Points: 10}))

	restartedSessions := session.NewManager(backend)
	restarted := NewController(catalog, restartedSessions, WithDurableInFlight())
	assert.Equal(t, Pending, restarted.State())

	res, err := restarted.Resume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, res.PointsAwarded)
	assert.Equal(t, 10, balance(t, restartedSessions))

	s, err := restartedSessions.Load()
	require.NoError(t, err)
	assert.Nil(t, s.InFlightTask)

	again := NewController(catalog, restartedSessions, WithDurableInFlight())
	assert.Equal(t, Idle, again.State())
}

func TestSettleWithoutSession(t *testing.T) {
	c := NewController(newFakeCatalog(), session.NewManager(session.NewMemoryBackend()))
	_, err := c.Settle(context.Background(), models.Task{ID: 1})
	assert.ErrorIs(t, err, session.ErrNoSession)
}

func TestRemaining(t *testing.T) {
	cases := []struct {
		deadline *time.Time
		want     string
	}{
		{nil, ""},
		{at(now), ExpiredText},
		{at(now.Add(-time.Minute)), ExpiredText},
		{at(now.Add(30 * time.Second)), "Termina en: 0m"},
		{at(now.Add(45 * time.Minute)), "Termina en: 45m"},
		{at(now.Add(3*time.Hour + 5*time.Minute)), "Termina en: 3h 5m"},
		{at(now.Add(50*time.Hour + 10*time.Minute)), "Termina en: 2d 2h"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Remaining(tc.deadline, now))
	}
}

// settlingCatalog decides the reward itself, like the HTTP client does.
type settlingCatalog struct {
	*fakeCatalog
	award int
}

func (f *settlingCatalog) SettleTask(ctx context.Context, taskID int64, memberID string) (*models.CompleteTaskResponse, error) {
	bal, err := f.CompleteTask(ctx, taskID, memberID, f.award)
	if errors.Is(err, models.ErrDuplicateCompletion) {
		return &models.CompleteTaskResponse{TaskID: taskID, Duplicate: true, Balance: bal}, nil
	}
	if err != nil {
		return nil, err
	}
	return &models.CompleteTaskResponse{TaskID: taskID, PointsAwarded: f.award, Balance: bal}, nil
}

func TestSettleUsesAwardedPointsFromSettler(t *testing.T) {
	stale := models.Task{ID: 1, Caption: "Compartir", Points: 10}
	catalog := &settlingCatalog{fakeCatalog: newFakeCatalog(stale), award: 25}
	sessions := signedIn(t, session.NewMemoryBackend(), 0)

	res, err := NewController(catalog, sessions).Settle(context.Background(), stale)
	require.NoError(t, err)
	assert.Equal(t, 25, res.PointsAwarded)
	assert.Equal(t, 25, res.Balance)
	assert.Equal(t, 25, balance(t, sessions))

	again, err := NewController(catalog, sessions).Settle(context.Background(), stale)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, 25, balance(t, sessions))
}
