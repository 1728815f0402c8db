// Package session caches the signed-in member under a single key. Every
// writer performs a read-modify-write of the whole object so fields it does
// not know about survive.
package session

import (
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"xsch-membership-backend/pkg/models"
)

// Key is the single storage key holding the current session
const Key = "user_session"

// InFlightTask is the durable copy of a launched, unsettled task.
type InFlightTask struct {
	TaskID    int64     `json:"task_id"`
	Caption   string    `json:"caption,omitempty"`
	Points    int       `json:"points"`
	StartedAt time.Time `json:"started_at"`
}

// Session is the cached member profile and balance.
type Session struct {
	ID           string                    `json:"id"`
	Name         string                    `json:"name"`
	Phone        string                    `json:"phone"`
	IdentityCard string                    `json:"identity_card"`
	BirthDate    *string                   `json:"birth_date"`
	Points       int                       `json:"points"`
	IsVerified   models.VerificationStatus `json:"is_verified"`
	MemberType   models.MemberType         `json:"member_type"`
	Tier         *int                      `json:"tier"`
	ReferrerID   *string                   `json:"referrer_id"`
	AccessToken  string                    `json:"access_token,omitempty"`
	RefreshToken string                    `json:"refresh_token,omitempty"`
	InFlightTask *InFlightTask             `json:"in_flight_task,omitempty"`

	// 其他写入方的字段，原样保留
	extra map[string]json.RawMessage
}

// FromMember 由成员记录构造会话
func FromMember(m models.Member) *Session {
	return &Session{
		ID:           m.ID,
		Name:         m.Name,
		Phone:        m.Phone,
		IdentityCard: m.IdentityCard,
		BirthDate:    m.BirthDate,
		Points:       m.Points,
		IsVerified:   m.IsVerified,
		MemberType:   m.MemberType,
		Tier:         m.Tier,
		ReferrerID:   m.ReferrerID,
	}
}

// Extra returns a field written by another component, if present.
func (s *Session) Extra(name string) (json.RawMessage, bool) {
	v, ok := s.extra[name]
	return v, ok
}

// SetExtra stores a field this package has no typed slot for.
func (s *Session) SetExtra(name string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if s.extra == nil {
		s.extra = make(map[string]json.RawMessage)
	}
	s.extra[name] = raw
	return nil
}

type plainSession Session

var knownFields = func() map[string]struct{} {
	out := make(map[string]struct{})
	t := reflect.TypeOf(plainSession{})
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		if tag == "" || tag == "-" {
			continue
		}
		out[strings.Split(tag, ",")[0]] = struct{}{}
	}
	return out
}()

func (s Session) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(plainSession(s))
	if err != nil || len(s.extra) == 0 {
		return known, err
	}

	merged := make(map[string]json.RawMessage, len(s.extra)+len(knownFields))
	for k, v := range s.extra {
		merged[k] = v
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

func (s *Session) UnmarshalJSON(data []byte) error {
	var p plainSession
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for k := range all {
		if _, ok := knownFields[k]; ok {
			delete(all, k)
		}
	}
	if len(all) == 0 {
		all = nil
	}

	*s = Session(p)
	s.extra = all
	return nil
}
