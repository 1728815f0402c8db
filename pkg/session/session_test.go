package session

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"xsch-membership-backend/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Backend {
	fb, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)
	return map[string]Backend{"memory": NewMemoryBackend(), "file": fb}
}

func TestBackends(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := b.Get("k")
			assert.ErrorIs(t, err, ErrKeyNotFound)

			require.NoError(t, b.Put("k", []byte(`{"a":1}`)))
			got, err := b.Get("k")
			require.NoError(t, err)
			assert.JSONEq(t, `{"a":1}`, string(got))

			require.NoError(t, b.Delete("k"))
			require.NoError(t, b.Delete("k"))
			_, err = b.Get("k")
			assert.ErrorIs(t, err, ErrKeyNotFound)
		})
	}
}

func TestLoadWithoutSession(t *testing.T) {
	m := NewManager(NewMemoryBackend())
	_, err := m.Load()
	assert.ErrorIs(t, err, ErrNoSession)

	_, err = m.AddPoints(5)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSignInSignOut(t *testing.T) {
	m := NewManager(NewMemoryBackend())
	require.NoError(t, m.SignIn(FromMember(models.Member{ID: "m1", Name: "Ana", Points: 3})))

	s, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "m1", s.ID)
	assert.Equal(t, 3, s.Points)

	require.NoError(t, m.SignOut())
	_, err = m.Load()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestUpdatePreservesUnknownFields(t *testing.T) {
	b := NewMemoryBackend()
	require.NoError(t, b.Put(Key, []byte(`{"id":"m1","points":4,"theme":"dark","badges":[1,2]}`)))
	m := NewManager(b)

	_, err := m.AddPoints(6)
	require.NoError(t, err)
	require.NoError(t, m.SetVerification(models.VerificationInReview))

	raw, err := b.Get(Key)
	require.NoError(t, err)
	var stored map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &stored))
	assert.Equal(t, "dark", stored["theme"])
	assert.Equal(t, []interface{}{float64(1), float64(2)}, stored["badges"])
	assert.EqualValues(t, 10, stored["points"])
	assert.EqualValues(t, models.VerificationInReview, stored["is_verified"])

	s, err := m.Load()
	require.NoError(t, err)
	theme, ok := s.Extra("theme")
	require.True(t, ok)
	assert.JSONEq(t, `"dark"`, string(theme))
}

func TestClearedTypedFieldDoesNotResurface(t *testing.T) {
	m := NewManager(NewMemoryBackend())
	s := FromMember(models.Member{ID: "m1"})
	s.InFlightTask = &InFlightTask{TaskID: 9, Points: 10}
	require.NoError(t, s.SetExtra("theme", "dark"))
	require.NoError(t, m.SignIn(s))

	_, err := m.Update(func(s *Session) error {
		s.InFlightTask = nil
		return nil
	})
	require.NoError(t, err)

	got, err := m.Load()
	require.NoError(t, err)
	assert.Nil(t, got.InFlightTask)
	_, ok := got.Extra("in_flight_task")
	assert.False(t, ok)
}

func TestUpdateErrorWritesNothing(t *testing.T) {
	m := NewManager(NewMemoryBackend())
	require.NoError(t, m.SignIn(FromMember(models.Member{ID: "m1", Points: 1})))

	boom := errors.New("boom")
	_, err := m.Update(func(s *Session) error {
		s.Points = 100
		return boom
	})
	assert.ErrorIs(t, err, boom)

	s, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, 1, s.Points)
}

func TestAddPointsFloorsAndBroadcasts(t *testing.T) {
	m := NewManager(NewMemoryBackend())
	require.NoError(t, m.SignIn(FromMember(models.Member{ID: "m1", Points: 7})))

	var events []Event
	unsubscribe := m.Bus().Subscribe(func(e Event) { events = append(events, e) })

	balance, err := m.AddPoints(-5)
	require.NoError(t, err)
	assert.Equal(t, 7, balance)

	balance, err = m.AddPoints(10)
	require.NoError(t, err)
	assert.Equal(t, 17, balance)

	require.Len(t, events, 2)
	assert.Equal(t, Event{Kind: PointsChanged, Points: 7, Delta: 0}, events[0])
	assert.Equal(t, Event{Kind: PointsChanged, Points: 17, Delta: 10}, events[1])

	unsubscribe()
	unsubscribe()
	_, err = m.AddPoints(1)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestConcurrentWritersDoNotLoseUpdates(t *testing.T) {
	fb, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)
	m := NewManager(fb)
	require.NoError(t, m.SignIn(FromMember(models.Member{ID: "m1"})))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := m.AddPoints(1)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, m.SetVerification(models.VerificationVerified))
		}()
	}
	wg.Wait()

	s, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, 20, s.Points)
	assert.Equal(t, models.VerificationVerified, s.IsVerified)
}
