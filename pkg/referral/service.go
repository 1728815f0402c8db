package referral

import (
	"context"
	"errors"
	"fmt"

	"xsch-membership-backend/pkg/logging"
	"xsch-membership-backend/pkg/models"
	"xsch-membership-backend/pkg/monitoring"

	"go.uber.org/zap"
)

// Store reads referrers and their referrals.
type Store interface {
	GetMember(ctx context.Context, id string) (*models.Member, error)
	// ListReferrals returns the members referred by referrerID, oldest first.
	ListReferrals(ctx context.Context, referrerID string) ([]models.Member, error)
}

// Registrar submits a registration to the member directory.
type Registrar interface {
	Register(ctx context.Context, req *models.RegistrationRequest) (*models.RegistrationResult, error)
}

// Roster is a referrer's reconciled slot list.
type Roster struct {
	Referrer  models.Member `json:"referrer"`
	Slots     []SlotView    `json:"slots"`
	Conflicts []Conflict    `json:"conflicts,omitempty"`
	Filled    int           `json:"filled"`
}

// Outcome is the result of registering into a slot.
type Outcome struct {
	Result     *models.RegistrationResult `json:"result"`
	Slot       Slot                       `json:"slot"`
	InviteLink string                     `json:"invite_link,omitempty"`
}

// Service ties the slot allocator to a Store and a Registrar.
type Service struct {
	store       Store
	registrar   Registrar
	codes       CodeSource
	countryCode string
	appURL      string
	log         *zap.Logger
}

// Option configures a Service
type Option func(*Service)

// WithCodeSource overrides the random access code / placeholder phone source
func WithCodeSource(c CodeSource) Option {
	return func(s *Service) { s.codes = c }
}

// WithInvite sets the country code and app URL used for volunteer invites
func WithInvite(countryCode, appURL string) Option {
	return func(s *Service) {
		s.countryCode = countryCode
		s.appURL = appURL
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.log = l }
}

// NewService 创建推荐名额服务
func NewService(store Store, registrar Registrar, opts ...Option) *Service {
	s := &Service{
		store:       store,
		registrar:   registrar,
		codes:       RandomCodes(),
		countryCode: "591",
		log:         logging.L(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Roster loads the referrer and its referrals and reconciles them against the
// referrer's slot template. Conflicting claims are logged and counted, never
// returned as an error.
func (s *Service) Roster(ctx context.Context, referrerID string) (*Roster, error) {
	referrer, err := s.store.GetMember(ctx, referrerID)
	if err != nil {
		return nil, fmt.Errorf("load referrer: %w", err)
	}

	records, err := s.store.ListReferrals(ctx, referrerID)
	if err != nil {
		return nil, fmt.Errorf("load referrals: %w", err)
	}

	views, conflicts := Reconcile(ComputeSlots(*referrer), records)
	for _, c := range conflicts {
		discarded := make([]string, 0, len(c.Discarded))
		for _, d := range c.Discarded {
			discarded = append(discarded, d.ID)
		}
		s.log.Warn("referral slot claimed more than once",
			zap.String("referrer_id", referrerID),
			zap.Int("slot", c.Index),
			zap.String("kept", c.Kept.ID),
			zap.Strings("discarded", discarded),
		)
		monitoring.SlotConflictsTotal.Add(float64(len(c.Discarded)))
	}

	filled := 0
	for _, v := range views {
		if v.Status.Filled() {
			filled++
		}
	}

	return &Roster{Referrer: *referrer, Slots: views, Conflicts: conflicts, Filled: filled}, nil
}

// Register validates form against the slot at index and submits it. A slot
// that the roster already shows as filled is refused with
// models.ErrDuplicateSlot; directory conflicts are returned unchanged.
func (s *Service) Register(ctx context.Context, referrerID string, index int, form RegistrationForm) (*Outcome, error) {
	roster, err := s.Roster(ctx, referrerID)
	if err != nil {
		return nil, err
	}

	var view *SlotView
	for i := range roster.Slots {
		if roster.Slots[i].Index == index {
			view = &roster.Slots[i]
			break
		}
	}
	if view == nil {
		return nil, invalid("id_slot", fmt.Sprintf("Espacio %d no disponible", index))
	}

	kind := string(view.Kind)
	if view.Status.Filled() {
		monitoring.RegistrationsTotal.WithLabelValues(kind, "slot_taken").Inc()
		return nil, models.ErrDuplicateSlot
	}

	req, err := BuildRegistration(roster.Referrer, view.Slot, form, s.codes)
	if err != nil {
		monitoring.RegistrationsTotal.WithLabelValues(kind, "invalid").Inc()
		return nil, err
	}

	result, err := s.registrar.Register(ctx, req)
	if err != nil {
		outcome := "error"
		if models.IsConflict(err) {
			outcome = "conflict"
		}
		monitoring.RegistrationsTotal.WithLabelValues(kind, outcome).Inc()

		var verr *ValidationError
		if !errors.As(err, &verr) && !models.IsConflict(err) {
			s.log.Error("registration failed",
				zap.String("referrer_id", referrerID),
				zap.Int("slot", index),
				zap.Error(err),
			)
		}
		return nil, err
	}
	monitoring.RegistrationsTotal.WithLabelValues(kind, "ok").Inc()

	out := &Outcome{Result: result, Slot: view.Slot}
	if view.Kind == SlotVolunteer && s.appURL != "" {
		out.InviteLink = InviteLink(s.countryCode, req.Phone, s.appURL, req.AccessCode)
	}
	return out, nil
}
