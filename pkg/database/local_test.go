package database

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"xsch-membership-backend/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func newMember(phone, ci string) *models.Member {
	return &models.Member{Name: "M " + phone, Phone: phone, IdentityCard: ci, MemberType: models.MemberTypeVolunteer}
}

func TestLocalCreateMemberUniqueness(t *testing.T) {
	db := NewLocalDatabase("")

	require.NoError(t, db.CreateMember(newMember("71234567", "111")))
	assert.ErrorIs(t, db.CreateMember(newMember("71234567", "222")), models.ErrDuplicatePhone)
	assert.ErrorIs(t, db.CreateMember(newMember("79999999", "111")), models.ErrDuplicateIdentityCard)

	// empty identity cards never collide
	require.NoError(t, db.CreateMember(newMember("60000001", "")))
	require.NoError(t, db.CreateMember(newMember("60000002", "")))

	ref := "referrer-1"
	first := newMember("60000003", "")
	first.ReferrerID, first.SlotID = &ref, ptr(2)
	require.NoError(t, db.CreateMember(first))

	second := newMember("60000004", "")
	second.ReferrerID, second.SlotID = &ref, ptr(2)
	assert.ErrorIs(t, db.CreateMember(second), models.ErrDuplicateSlot)

	taken, err := db.SlotTaken(ref, 2)
	require.NoError(t, err)
	assert.True(t, taken)
	taken, err = db.SlotTaken(ref, 3)
	require.NoError(t, err)
	assert.False(t, taken)
}

func TestLocalListMembersFiltersAndPages(t *testing.T) {
	db := NewLocalDatabase("")
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"Ana Pérez", "Luis Rojas", "ana maría", "Pedro"} {
		m := newMember("7000000"+string(rune('0'+i)), "CI-"+name)
		m.Name = name
		m.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, db.CreateMember(m))
	}

	list, total, err := db.ListMembers(models.MemberFilter{Name: "ANA"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, list, 2)
	assert.Equal(t, "ana maría", list[0].Name, "newest first")

	list, total, err = db.ListMembers(models.MemberFilter{Phone: "700-000-01"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Luis Rojas", list[0].Name)

	list, total, err = db.ListMembers(models.MemberFilter{Page: 2, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	require.Len(t, list, 1)
	assert.Equal(t, "Ana Pérez", list[0].Name)

	list, _, err = db.ListMembers(models.MemberFilter{Page: 5, Limit: 3})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestLocalListReferralsAscending(t *testing.T) {
	db := NewLocalDatabase("")
	ref := "ref"
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	late := newMember("61111111", "")
	late.ReferrerID, late.CreatedAt = &ref, base.Add(time.Hour)
	early := newMember("62222222", "")
	early.ReferrerID, early.CreatedAt = &ref, base
	other := newMember("63333333", "")

	require.NoError(t, db.CreateMember(late))
	require.NoError(t, db.CreateMember(early))
	require.NoError(t, db.CreateMember(other))

	refs, err := db.ListReferrals(ref)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "62222222", refs[0].Phone)
	assert.Equal(t, "61111111", refs[1].Phone)
}

func TestLocalUpdateMemberPatch(t *testing.T) {
	db := NewLocalDatabase("")
	m := newMember("71111111", "")
	require.NoError(t, db.CreateMember(m))

	require.NoError(t, db.UpdateMember(m.ID, map[string]interface{}{
		"identity_card": "555",
		"birth_date":    "1990-05-01",
		"is_verified":   int(models.VerificationInReview),
	}))
	got, err := db.GetMemberByID(m.ID)
	require.NoError(t, err)
	assert.Equal(t, "555", got.IdentityCard)
	assert.Equal(t, "1990-05-01", *got.BirthDate)
	assert.Equal(t, models.VerificationInReview, got.IsVerified)

	assert.Error(t, db.UpdateMember(m.ID, map[string]interface{}{"phone": "1"}))
	assert.ErrorIs(t, db.UpdateMember("missing", map[string]interface{}{"name": "x"}), models.ErrNotFound)
}

func TestLocalAuthUsers(t *testing.T) {
	db := NewLocalDatabase("")

	id, err := db.CreateAuthUser("71234567@app.com", "123456")
	require.NoError(t, err)

	_, err = db.CreateAuthUser("71234567@APP.com", "000000")
	assert.ErrorIs(t, err, models.ErrDuplicatePhone)

	got, err := db.AuthenticateMember("71234567@app.com", "123456")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = db.AuthenticateMember("71234567@app.com", "654321")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	require.NoError(t, db.DeleteAuthUser(id))
	_, err = db.AuthenticateMember("71234567@app.com", "123456")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestLocalAvailableTasksAndCompletion(t *testing.T) {
	db := NewLocalDatabase("")
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	member := newMember("71234567", "")
	member.MemberType = models.MemberTypeVolunteer
	require.NoError(t, db.CreateMember(member))

	open := &models.Task{Caption: "open", Points: 10, ScopeMembers: 1}
	fixed := &models.Task{Caption: "fixed", Points: 5, IsFixed: true}
	expired := &models.Task{Caption: "expired", Points: 5, Deadline: ptr(now)}
	hidden := &models.Task{Caption: "hidden", Points: 5, IsHidden: true}
	militants := &models.Task{Caption: "militants", Points: 5, ScopeMembers: int(models.MemberTypeMilitant)}
	for _, task := range []*models.Task{open, fixed, expired, hidden, militants} {
		require.NoError(t, db.CreateTask(task))
	}

	tasks, err := db.ListAvailableTasks(member.ID, now)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "fixed", tasks[0].Caption)
	assert.Equal(t, "open", tasks[1].Caption)

	balance, err := db.CompleteTask(open.ID, member.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, balance)

	balance, err = db.CompleteTask(open.ID, member.ID, 10)
	assert.ErrorIs(t, err, models.ErrDuplicateCompletion)
	assert.Equal(t, 10, balance)

	balance, err = db.CompleteTask(fixed.ID, member.ID, -3)
	require.NoError(t, err)
	assert.Equal(t, 10, balance, "negative rewards credit nothing")

	tasks, err = db.ListAvailableTasks(member.ID, now)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	_, err = db.CompleteTask(999, member.ID, 1)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestLocalManagersCountMembers(t *testing.T) {
	db := NewLocalDatabase("")
	require.NoError(t, db.CreateManager(&models.SocialMediaManager{Name: "Lucía", Phone: "70000000"}))
	hidden := &models.SocialMediaManager{Name: "Oculto", Phone: "70000001"}
	require.NoError(t, db.CreateManager(hidden))
	require.NoError(t, db.SetManagerHidden(hidden.ID, true))
	assert.ErrorIs(t, db.CreateManager(&models.SocialMediaManager{Name: "Dup", Phone: "70000000"}), models.ErrDuplicatePhone)

	m := newMember("61111111", "")
	m.ManagerPhone = ptr("70000000")
	require.NoError(t, db.CreateMember(m))

	active, err := db.ListActiveManagers()
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, 1, active[0].TotalMembers)

	all, total, err := db.ListManagers(1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, all, 2)
}

func TestLocalEventsSoftDelete(t *testing.T) {
	db := NewLocalDatabase("")
	ev := &models.Event{ImageLink: "https://img/1.png", Name: ptr("Cierre")}
	require.NoError(t, db.CreateEvent(ev))
	require.NoError(t, db.SetEventDeleted(ev.ID, true))

	events, err := db.ListEvents()
	require.NoError(t, err)
	assert.Empty(t, events)

	require.NoError(t, db.SetEventDeleted(ev.ID, false))
	events, err = db.ListEvents()
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.ErrorIs(t, db.SetEventDeleted(42, true), models.ErrNotFound)
}

func TestLocalPersistsToDisk(t *testing.T) {
	dir := t.TempDir()
	db := NewLocalDatabase(dir)

	authID, err := db.CreateAuthUser("59171234567@app.com", "654321")
	require.NoError(t, err)
	m := newMember("71234567", "123")
	m.ID = authID
	require.NoError(t, db.CreateMember(m))
	require.NoError(t, db.AddAdmin(m.ID))
	require.NoError(t, db.AddDonationQR(&models.DonationQR{URLImage: "https://qr/1.png", Comprobante: "70000000"}))
	require.NoError(t, db.HealthCheck())

	reopened := NewLocalDatabase(dir)
	got, err := reopened.GetMemberByPhone("71234567")
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)

	// 只保存哈希
	id, err := reopened.AuthenticateMember("59171234567@app.com", "654321")
	require.NoError(t, err)
	assert.Equal(t, authID, id)
	raw, err := os.ReadFile(filepath.Join(dir, "xsch.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "654321")

	isAdmin, err := reopened.IsAdmin(m.ID)
	require.NoError(t, err)
	assert.True(t, isAdmin)

	qr, err := reopened.GetLatestDonationQR()
	require.NoError(t, err)
	assert.Equal(t, "https://qr/1.png", qr.URLImage)
}

func TestLocalGetTask(t *testing.T) {
	db := NewLocalDatabase("")
	task := &models.Task{Caption: "Compartir", Points: 5}
	require.NoError(t, db.CreateTask(task))

	got, err := db.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Compartir", got.Caption)

	got.Caption = "changed"
	again, err := db.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Compartir", again.Caption)

	_, err = db.GetTask(task.ID + 100)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
