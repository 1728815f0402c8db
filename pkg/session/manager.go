package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"xsch-membership-backend/pkg/logging"
	"xsch-membership-backend/pkg/models"

	"go.uber.org/zap"
)

// ErrNoSession means nobody is signed in; callers route to login.
var ErrNoSession = errors.New("no active session")

// Manager serializes access to the session stored under Key.
type Manager struct {
	mu      sync.Mutex
	backend Backend
	bus     *Bus
	log     *zap.Logger
}

// NewManager 创建会话管理器
func NewManager(backend Backend) *Manager {
	return &Manager{
		backend: backend,
		bus:     NewBus(),
		log:     logging.L().Named("session"),
	}
}

// Bus returns the event bus session writes are broadcast on
func (m *Manager) Bus() *Bus { return m.bus }

// Load 读取当前会话，未登录时返回 ErrNoSession
func (m *Manager) Load() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load()
}

func (m *Manager) load() (*Session, error) {
	data, err := m.backend.Get(Key)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &s, nil
}

func (m *Manager) store(s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	return m.backend.Put(Key, data)
}

// SignIn replaces whatever session exists with s.
func (m *Manager) SignIn(s *Session) error {
	m.mu.Lock()
	err := m.store(s)
	m.mu.Unlock()
	if err != nil {
		return err
	}

	m.log.Debug("session started", zap.String("member_id", s.ID))
	m.bus.Publish(Event{Kind: SessionChanged, Points: s.Points})
	return nil
}

// SignOut 清除会话，不调用服务端
func (m *Manager) SignOut() error {
	m.mu.Lock()
	err := m.backend.Delete(Key)
	m.mu.Unlock()
	if err != nil {
		return err
	}

	m.log.Debug("session cleared")
	m.bus.Publish(Event{Kind: SessionChanged})
	return nil
}

// Update loads the session, applies fn and writes the whole object back
// under one lock. When fn returns an error nothing is written.
func (m *Manager) Update(fn func(*Session) error) (*Session, error) {
	m.mu.Lock()
	s, err := m.load()
	if err == nil {
		err = fn(s)
	}
	if err == nil {
		err = m.store(s)
	}
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	m.bus.Publish(Event{Kind: SessionChanged, Points: s.Points})
	return s, nil
}

// AddPoints adds delta (floored at zero) to the cached balance and
// broadcasts PointsChanged. It returns the new balance.
func (m *Manager) AddPoints(delta int) (int, error) {
	if delta < 0 {
		delta = 0
	}

	m.mu.Lock()
	s, err := m.load()
	if err == nil {
		s.Points += delta
		err = m.store(s)
	}
	m.mu.Unlock()
	if err != nil {
		return 0, err
	}

	m.bus.Publish(Event{Kind: PointsChanged, Points: s.Points, Delta: delta})
	return s.Points, nil
}

// SetVerification 更新缓存的验证状态
func (m *Manager) SetVerification(status models.VerificationStatus) error {
	_, err := m.Update(func(s *Session) error {
		s.IsVerified = status
		return nil
	})
	return err
}
