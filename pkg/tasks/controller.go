// Package tasks runs the member-side task settlement flow: launch an
// external action, detect the member coming back, and credit the reward
// exactly once.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"xsch-membership-backend/pkg/logging"
	"xsch-membership-backend/pkg/models"
	"xsch-membership-backend/pkg/monitoring"
	"xsch-membership-backend/pkg/session"

	"go.uber.org/zap"
)

// ErrTaskExpired is returned by StartTask once the deadline has been reached.
var ErrTaskExpired = models.ErrTaskExpired

// Catalog is the remote task service.
type Catalog interface {
	// AvailableTasks lists the tasks memberID has not completed yet.
	AvailableTasks(ctx context.Context, memberID string) ([]models.Task, error)
	// CompleteTask records the completion and returns the new balance. An
	// already recorded pair yields models.ErrDuplicateCompletion.
	CompleteTask(ctx context.Context, taskID int64, memberID string, points int) (int, error)
}

// Settler is implemented by catalogs that decide the reward themselves.
// Settle prefers it so the cached balance follows the awarded points.
type Settler interface {
	SettleTask(ctx context.Context, taskID int64, memberID string) (*models.CompleteTaskResponse, error)
}

// Launcher opens a task's external link.
type Launcher interface {
	Launch(ctx context.Context, task models.Task) error
}

// LauncherFunc adapts a function to Launcher
type LauncherFunc func(ctx context.Context, task models.Task) error

func (f LauncherFunc) Launch(ctx context.Context, task models.Task) error { return f(ctx, task) }

// State 结算状态
type State int

const (
	Idle State = iota
	Pending
	Settling
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Settling:
		return "settling"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type settleKey struct {
	taskID   int64
	memberID string
}

// Controller holds one member session's settlement state. There is a single
// in-flight slot: starting another task replaces the previous one.
//
// Resume is the only signal that the external action happened. Nothing
// guarantees the member actually did it, so it is a best-effort heuristic.
type Controller struct {
	catalog  Catalog
	sessions *session.Manager
	launcher Launcher
	now      func() time.Time
	log      *zap.Logger
	durable  bool

	mu        sync.Mutex
	state     State
	inFlight  *models.Task
	available []models.Task
	settled   map[settleKey]struct{}
}

// Option configures a Controller
type Option func(*Controller)

// WithLauncher sets how a task's link is opened
func WithLauncher(l Launcher) Option {
	return func(c *Controller) { c.launcher = l }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithDurableInFlight keeps the in-flight marker in the session cache so a
// restart between launch and return still settles. A replayed settlement is
// absorbed by the catalog's duplicate rejection.
func WithDurableInFlight() Option {
	return func(c *Controller) { c.durable = true }
}

// NewController 创建任务结算控制器。持久模式下会恢复未结算的任务
func NewController(catalog Catalog, sessions *session.Manager, opts ...Option) *Controller {
	c := &Controller{
		catalog:  catalog,
		sessions: sessions,
		now:      time.Now,
		log:      logging.L().Named("tasks"),
		settled:  make(map[settleKey]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.durable {
		c.restore()
	}
	return c
}

func (c *Controller) restore() {
	s, err := c.sessions.Load()
	if err != nil {
		if !errors.Is(err, session.ErrNoSession) {
			c.log.Warn("failed to restore in-flight task", zap.Error(err))
		}
		return
	}
	if s.InFlightTask == nil {
		return
	}

	c.inFlight = &models.Task{ID: s.InFlightTask.TaskID, Caption: s.InFlightTask.Caption, Points: s.InFlightTask.Points}
	c.state = Pending
	c.log.Info("restored in-flight task", zap.Int64("task_id", s.InFlightTask.TaskID))
}

// State returns the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// InFlight returns the task awaiting settlement, if any
func (c *Controller) InFlight() (models.Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight == nil {
		return models.Task{}, false
	}
	return *c.inFlight, true
}

// Refresh fetches the member's available tasks, dropping expired ones and
// any settled locally that the catalog still reports.
func (c *Controller) Refresh(ctx context.Context) ([]models.Task, error) {
	s, err := c.sessions.Load()
	if err != nil {
		return nil, err
	}

	tasks, err := c.catalog.AvailableTasks(ctx, s.ID)
	if err != nil {
		c.log.Error("failed to fetch tasks", zap.String("member_id", s.ID), zap.Error(err))
		return nil, err
	}

	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	c.available = c.available[:0]
	for _, t := range tasks {
		if t.ExpiredAt(now) {
			continue
		}
		if _, done := c.settled[settleKey{t.ID, s.ID}]; done {
			continue
		}
		c.available = append(c.available, t)
	}
	return append([]models.Task(nil), c.available...), nil
}

// Available returns the last fetched list as it stands now.
func (c *Controller) Available() []models.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Task(nil), c.available...)
}

// CanStart reports whether task's launch action is enabled at the current time
func (c *Controller) CanStart(task models.Task) bool {
	return !task.ExpiredAt(c.now())
}

// StartTask records task as in flight, replacing any earlier one, and opens
// its link. Expired tasks are refused.
func (c *Controller) StartTask(ctx context.Context, task models.Task) error {
	now := c.now()
	if task.ExpiredAt(now) {
		monitoring.SettlementsTotal.WithLabelValues("expired").Inc()
		return ErrTaskExpired
	}

	c.mu.Lock()
	if c.inFlight != nil && c.inFlight.ID != task.ID {
		c.log.Debug("replacing in-flight task", zap.Int64("previous", c.inFlight.ID), zap.Int64("task_id", task.ID))
	}
	t := task
	c.inFlight = &t
	c.state = Pending
	c.mu.Unlock()

	if c.durable {
		c.persist(&session.InFlightTask{TaskID: task.ID, Caption: task.Caption, Points: task.Points, StartedAt: now})
	}

	if c.launcher == nil {
		return nil
	}
	if err := c.launcher.Launch(ctx, task); err != nil {
		c.mu.Lock()
		if c.inFlight != nil && c.inFlight.ID == task.ID {
			c.inFlight = nil
			c.state = Idle
		}
		c.mu.Unlock()
		if c.durable {
			c.persist(nil)
		}
		return fmt.Errorf("failed to open task: %w", err)
	}
	return nil
}

func (c *Controller) persist(marker *session.InFlightTask) {
	_, err := c.sessions.Update(func(s *session.Session) error {
		s.InFlightTask = marker
		return nil
	})
	if err != nil {
		c.log.Warn("failed to persist in-flight task", zap.Error(err))
	}
}

// Resume handles the app regaining the foreground. With a task in flight it
// settles that task and returns to Idle whatever the outcome; otherwise it
// returns nil, nil.
func (c *Controller) Resume(ctx context.Context) (*models.CompleteTaskResponse, error) {
	c.mu.Lock()
	if c.state != Pending || c.inFlight == nil {
		c.mu.Unlock()
		return nil, nil
	}
	task := *c.inFlight
	c.inFlight = nil
	c.state = Settling
	c.mu.Unlock()

	if c.durable {
		c.persist(nil)
	}

	res, err := c.Settle(ctx, task)

	c.mu.Lock()
	if c.state == Settling {
		c.state = Idle
	}
	c.mu.Unlock()
	return res, err
}

// Settle records task as completed by the signed-in member. The reward is
// floored at zero, and a Settler catalog's awarded points replace it. A duplicate completion is a successful no-op; any other
// failure is logged and returned without retrying.
func (c *Controller) Settle(ctx context.Context, task models.Task) (*models.CompleteTaskResponse, error) {
	s, err := c.sessions.Load()
	if err != nil {
		return nil, err
	}
	key := settleKey{task.ID, s.ID}
	reward := task.Reward()

	c.mu.Lock()
	_, done := c.settled[key]
	c.mu.Unlock()
	if done {
		monitoring.SettlementsTotal.WithLabelValues("duplicate").Inc()
		return &models.CompleteTaskResponse{TaskID: task.ID, Duplicate: true, Balance: s.Points}, nil
	}

	reward, err = c.complete(ctx, task, s.ID, reward)
	if errors.Is(err, models.ErrDuplicateCompletion) {
		c.markSettled(key)
		monitoring.SettlementsTotal.WithLabelValues("duplicate").Inc()
		c.log.Info("task already settled", zap.Int64("task_id", task.ID), zap.String("member_id", s.ID))
		return &models.CompleteTaskResponse{TaskID: task.ID, Duplicate: true, Balance: s.Points}, nil
	}
	if err != nil {
		monitoring.SettlementsTotal.WithLabelValues("failed").Inc()
		c.log.Error("task settlement failed",
			zap.Int64("task_id", task.ID),
			zap.String("member_id", s.ID),
			zap.Error(err),
		)
		return nil, err
	}

	c.markSettled(key)
	balance, err := c.sessions.AddPoints(reward)
	if err != nil {
		c.log.Warn("settled but failed to update cached balance", zap.Int64("task_id", task.ID), zap.Error(err))
	}
	monitoring.SettlementsTotal.WithLabelValues("awarded").Inc()
	monitoring.PointsAwardedTotal.Add(float64(reward))

	return &models.CompleteTaskResponse{TaskID: task.ID, PointsAwarded: reward, Balance: balance}, nil
}

// complete records the completion and returns the points actually awarded
func (c *Controller) complete(ctx context.Context, task models.Task, memberID string, reward int) (int, error) {
	settler, ok := c.catalog.(Settler)
	if !ok {
		_, err := c.catalog.CompleteTask(ctx, task.ID, memberID, reward)
		return reward, err
	}

	res, err := settler.SettleTask(ctx, task.ID, memberID)
	if err != nil {
		return 0, err
	}
	if res.Duplicate {
		return 0, models.ErrDuplicateCompletion
	}
	if res.PointsAwarded != reward {
		c.log.Debug("awarded points differ from cached task",
			zap.Int64("task_id", task.ID),
			zap.Int("cached", reward),
			zap.Int("awarded", res.PointsAwarded),
		)
	}
	if res.PointsAwarded < 0 {
		return 0, nil
	}
	return res.PointsAwarded, nil
}

func (c *Controller) markSettled(key settleKey) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.settled[key] = struct{}{}
	kept := c.available[:0]
	for _, t := range c.available {
		if t.ID != key.taskID {
			kept = append(kept, t)
		}
	}
	c.available = kept
}
