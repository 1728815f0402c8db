package referral

import (
	"context"
	"testing"
	"time"

	"xsch-membership-backend/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDirectory is an in-memory Store and Registrar with phone uniqueness.
type fakeDirectory struct {
	members []models.Member
	calls   int
}

func (f *fakeDirectory) GetMember(_ context.Context, id string) (*models.Member, error) {
	for _, m := range f.members {
		if m.ID == id {
			out := m
			return &out, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeDirectory) ListReferrals(_ context.Context, referrerID string) ([]models.Member, error) {
	var out []models.Member
	for _, m := range f.members {
		if m.ReferrerID != nil && *m.ReferrerID == referrerID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeDirectory) Register(_ context.Context, req *models.RegistrationRequest) (*models.RegistrationResult, error) {
	f.calls++
	for _, m := range f.members {
		if m.Phone == req.Phone {
			return nil, models.ErrDuplicatePhone
		}
	}
	m := req.ToMember()
	m.ID = "new-" + req.Phone
	m.CreatedAt = time.Now()
	f.members = append(f.members, *m)
	return &models.RegistrationResult{Member: m}, nil
}

func newFixture() *fakeDirectory {
	return &fakeDirectory{members: []models.Member{
		{ID: "ref-1", Phone: "70000000", MemberType: models.MemberTypeVolunteer, Tier: intp(1)},
		{ID: "existing", Phone: "67621903", MemberType: models.MemberTypeVolunteer},
	}}
}

func TestServiceRegisterVolunteer(t *testing.T) {
	dir := newFixture()
	svc := NewService(dir, dir, WithCodeSource(testCodes), WithInvite("591", "https://app.example/"))

	out, err := svc.Register(context.Background(), "ref-1", 4, RegistrationForm{Name: "Carla", Phone: "71111111"})
	require.NoError(t, err)
	assert.Equal(t, "new-71111111", out.Result.Member.ID)
	assert.Contains(t, out.InviteLink, "https://wa.me/59171111111")

	roster, err := svc.Roster(context.Background(), "ref-1")
	require.NoError(t, err)
	assert.Equal(t, 1, roster.Filled)
	assert.Equal(t, StatusFilledPending, roster.Slots[3].Status)
}

func TestServiceDuplicatePhoneLeavesSlotEmpty(t *testing.T) {
	dir := newFixture()
	svc := NewService(dir, dir, WithCodeSource(testCodes))

	_, err := svc.Register(context.Background(), "ref-1", 4, RegistrationForm{Name: "Carla", Phone: "67621903"})
	require.ErrorIs(t, err, models.ErrDuplicatePhone)
	assert.Equal(t, "Este número de teléfono ya está registrado", err.Error())

	roster, err := svc.Roster(context.Background(), "ref-1")
	require.NoError(t, err)
	assert.Equal(t, 0, roster.Filled)
	assert.Equal(t, StatusEmptyVolunteer, roster.Slots[3].Status)
}

func TestServiceRefusesFilledSlot(t *testing.T) {
	dir := newFixture()
	ref := "ref-1"
	dir.members = append(dir.members, models.Member{ID: "g1", Phone: "1234567", ReferrerID: &ref, SlotID: intp(1)})
	svc := NewService(dir, dir, WithCodeSource(testCodes))

	_, err := svc.Register(context.Background(), "ref-1", 1, RegistrationForm{IdentityCard: "999"})
	assert.ErrorIs(t, err, models.ErrDuplicateSlot)
	assert.Equal(t, 0, dir.calls)
}

func TestServiceValidationNeverSubmits(t *testing.T) {
	dir := newFixture()
	svc := NewService(dir, dir, WithCodeSource(testCodes))

	_, err := svc.Register(context.Background(), "ref-1", 2, RegistrationForm{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 0, dir.calls)

	_, err = svc.Register(context.Background(), "ref-1", 6, RegistrationForm{IdentityCard: "1"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "id_slot", verr.Field())
}

func TestServiceRosterReportsConflicts(t *testing.T) {
	dir := newFixture()
	ref := "ref-1"
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	dir.members = append(dir.members,
		models.Member{ID: "a", Phone: "1", ReferrerID: &ref, SlotID: intp(2), CreatedAt: base},
		models.Member{ID: "b", Phone: "2", ReferrerID: &ref, SlotID: intp(2), CreatedAt: base.Add(time.Minute)},
	)
	svc := NewService(dir, dir)

	roster, err := svc.Roster(context.Background(), "ref-1")
	require.NoError(t, err)
	require.Len(t, roster.Conflicts, 1)
	assert.Equal(t, "b", roster.Slots[1].Member.ID)
	assert.Equal(t, 1, roster.Filled)
}

func TestServiceUnknownReferrer(t *testing.T) {
	dir := newFixture()
	_, err := NewService(dir, dir).Roster(context.Background(), "ghost")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
