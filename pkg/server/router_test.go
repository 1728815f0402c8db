package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"xsch-membership-backend/pkg/config"
	"xsch-membership-backend/pkg/database"
	"xsch-membership-backend/pkg/models"
	"xsch-membership-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *utils.APIError `json:"error"`
	Meta    *utils.Meta     `json:"meta"`
}

type testServer struct {
	t      *testing.T
	router *chi.Mux
	db     *database.LocalDatabase
	cfg    *config.Config
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.Config{
		Environment:       "test",
		Port:              "0",
		UseLocalDB:        true,
		JWTSecret:         "router-test-secret",
		CountryCode:       "591",
		AppURL:            "https://app.example/",
		PhoneEmailDomain:  "app.com",
		AttendanceWindow:  30 * time.Second,
		SessionCookieName: "__session",
		AllowedOrigins:    []string{"*"},
	}
	db := database.NewLocalDatabase("")
	return &testServer{t: t, router: NewRouter(cfg, db), db: db, cfg: cfg}
}

func (s *testServer) do(method, path string, body interface{}, token string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	if data != nil && len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

// signup 注册并登录一个成员，返回成员ID与访问令牌
func (s *testServer) signup(phone string, memberType models.MemberType) (string, string) {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/add-user", map[string]interface{}{
		"name":        "Miembro " + phone,
		"phone":       phone,
		"member_type": int(memberType),
		"access_code": "123456",
	}, "")
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/api/auth/login", map[string]string{"phone": phone, "access_code": "123456"}, "")
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())

	var login models.LoginResponse
	decode(s.t, rec, &login)
	require.NotEmpty(s.t, login.AccessToken)
	return login.Member.ID, login.AccessToken
}

func TestHealthAndUnknownRoute(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/api/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	env := decode(t, rec, nil)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	rec = s.do(http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAddUserConflicts(t *testing.T) {
	s := newTestServer(t)

	body := map[string]interface{}{"name": "Ana", "phone": "71234567", "identity_card": "CI-1", "member_type": 1}
	rec := s.do(http.MethodPost, "/api/add-user", body, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var result models.RegistrationResult
	decode(t, rec, &result)
	assert.Equal(t, "71234567@app.com", result.Auth.Email)
	assert.Len(t, result.Auth.TemporaryPassword, 6)

	rec = s.do(http.MethodPost, "/api/add-user", body, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	env := decode(t, rec, nil)
	assert.Equal(t, utils.CodeDuplicatePhone, env.Error.Code)

	body["phone"] = "71234568"
	rec = s.do(http.MethodPost, "/api/add-user", body, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	env = decode(t, rec, nil)
	assert.Equal(t, utils.CodeDuplicateIdentityCard, env.Error.Code)

	rec = s.do(http.MethodPost, "/api/add-user", map[string]interface{}{"name": "Sin teléfono"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env = decode(t, rec, nil)
	assert.Equal(t, utils.CodeValidation, env.Error.Code)
	assert.Equal(t, "phone", env.Error.Details)
}

func TestAddUserIgnoresCallerBalanceAndVerification(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/add-user", map[string]interface{}{
		"name":        "Ana",
		"phone":       "71234567",
		"member_type": 1,
		"points":      100000,
		"is_verified": int(models.VerificationVerified),
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var result models.RegistrationResult
	decode(t, rec, &result)
	assert.Equal(t, 0, result.Member.Points)

	stored, err := s.db.GetMemberByPhone("71234567")
	require.NoError(t, err)
	assert.Equal(t, 0, stored.Points)
	assert.Equal(t, models.VerificationPending, stored.IsVerified)

	rec = s.do(http.MethodPost, "/api/add-user", map[string]interface{}{
		"name":        "Luis",
		"phone":       "71234568",
		"member_type": 1,
		"is_verified": int(models.VerificationInReview),
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	stored, err = s.db.GetMemberByPhone("71234568")
	require.NoError(t, err)
	assert.Equal(t, models.VerificationInReview, stored.IsVerified)
}

func TestLoginAndProfile(t *testing.T) {
	s := newTestServer(t)
	id, token := s.signup("71234567", models.MemberTypeVolunteer)

	rec := s.do(http.MethodPost, "/api/auth/login", map[string]string{"phone": "71234567", "access_code": "000000"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	env := decode(t, rec, nil)
	assert.Equal(t, utils.CodeInvalidCredentials, env.Error.Code)

	rec = s.do(http.MethodGet, "/api/members/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodGet, "/api/members/me", nil, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var me models.Member
	decode(t, rec, &me)
	assert.Equal(t, id, me.ID)
	assert.Equal(t, "71234567", me.Phone)
}

func TestReferralSlotRegistration(t *testing.T) {
	s := newTestServer(t)
	_, token := s.signup("71234567", models.MemberTypeVolunteer)

	// volunteer template: slots 1-3 guests, 4-5 volunteers
	rec := s.do(http.MethodPost, "/api/referrals/slots/4", map[string]string{"name": "Luis", "phone": "71111111"}, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var outcome struct {
		InviteLink string `json:"invite_link"`
		Result     models.RegistrationResult
	}
	decode(t, rec, &outcome)
	assert.Contains(t, outcome.InviteLink, "59171111111")

	rec = s.do(http.MethodPost, "/api/referrals/slots/4", map[string]string{"name": "Otro", "phone": "72222222"}, token)
	assert.Equal(t, http.StatusConflict, rec.Code)
	env := decode(t, rec, nil)
	assert.Equal(t, utils.CodeSlotTaken, env.Error.Code)

	// the referrer's own phone is already registered
	rec = s.do(http.MethodPost, "/api/referrals/slots/5", map[string]string{"name": "Repetido", "phone": "71234567"}, token)
	assert.Equal(t, http.StatusConflict, rec.Code)
	env = decode(t, rec, nil)
	assert.Equal(t, utils.CodeDuplicatePhone, env.Error.Code)

	rec = s.do(http.MethodPost, "/api/referrals/slots/1", map[string]string{"identity_card": "CI-9"}, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/api/referrals/slots/abc", map[string]string{"identity_card": "CI-10"}, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/referrals/slots", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	var roster struct {
		Filled int `json:"filled"`
		Slots  []struct {
			Index  int    `json:"slot_index"`
			Status string `json:"status"`
		} `json:"slots"`
	}
	decode(t, rec, &roster)
	assert.Equal(t, 2, roster.Filled)
	require.Len(t, roster.Slots, 5)
	assert.Equal(t, "empty-volunteer", roster.Slots[4].Status)
}

func TestTaskCompletion(t *testing.T) {
	s := newTestServer(t)
	_, token := s.signup("71234567", models.MemberTypeVolunteer)

	future := time.Now().Add(time.Hour)
	past := time.Now().Add(-time.Hour)
	live := &models.Task{Caption: "Compartir", Points: 10, Deadline: &future}
	expired := &models.Task{Caption: "Vencida", Points: 5, Deadline: &past}
	require.NoError(t, s.db.CreateTask(live))
	require.NoError(t, s.db.CreateTask(expired))

	rec := s.do(http.MethodGet, "/api/tasks", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []struct {
		ID        int64  `json:"id"`
		Remaining string `json:"remaining"`
	}
	decode(t, rec, &list)
	require.Len(t, list, 1)
	assert.Equal(t, live.ID, list[0].ID)
	assert.NotEmpty(t, list[0].Remaining)

	path := fmt.Sprintf("/api/tasks/%d/complete", live.ID)
	rec = s.do(http.MethodPost, path, nil, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res models.CompleteTaskResponse
	decode(t, rec, &res)
	assert.Equal(t, 10, res.PointsAwarded)
	assert.Equal(t, 10, res.Balance)
	assert.False(t, res.Duplicate)

	rec = s.do(http.MethodPost, path, nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	res = models.CompleteTaskResponse{}
	decode(t, rec, &res)
	assert.True(t, res.Duplicate)
	assert.Equal(t, 0, res.PointsAwarded)
	assert.Equal(t, 10, res.Balance)

	rec = s.do(http.MethodPost, fmt.Sprintf("/api/tasks/%d/complete", expired.ID), nil, token)
	assert.Equal(t, http.StatusGone, rec.Code)
	env := decode(t, rec, nil)
	assert.Equal(t, utils.CodeTaskExpired, env.Error.Code)

	rec = s.do(http.MethodPost, "/api/tasks/9999/complete", nil, token)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/api/tasks", nil, token)
	list = nil
	decode(t, rec, &list)
	assert.Empty(t, list)
}

func TestAdminAccess(t *testing.T) {
	s := newTestServer(t)
	adminID, adminToken := s.signup("71234567", models.MemberTypeMilitant)
	_, memberToken := s.signup("71234568", models.MemberTypeVolunteer)
	require.NoError(t, s.db.AddAdmin(adminID))

	rec := s.do(http.MethodGet, "/api/get-data", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodGet, "/api/get-data", nil, memberToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodGet, "/api/get-data?limit=1", nil, adminToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	env := decode(t, rec, nil)
	require.NotNil(t, env.Meta)
	assert.Equal(t, 2, env.Meta.Total)
	assert.Equal(t, 2, env.Meta.TotalPages)

	rec = s.do(http.MethodPost, "/sessionLogin", map[string]string{"idToken": memberToken}, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, "/sessionLogin", map[string]string{"idToken": adminToken}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var session *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == s.cfg.SessionCookieName {
			session = c
		}
	}
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)

	rec = s.do(http.MethodGet, "/api/get-data", nil, "", session)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/logout", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	cleared := rec.Result().Cookies()
	require.NotEmpty(t, cleared)
	assert.Equal(t, "", cleared[0].Value)
}

func TestAdminPostLifecycle(t *testing.T) {
	s := newTestServer(t)
	adminID, adminToken := s.signup("71234567", models.MemberTypeMilitant)
	_, memberToken := s.signup("71234568", models.MemberTypeVolunteer)
	require.NoError(t, s.db.AddAdmin(adminID))

	rec := s.do(http.MethodPost, "/api/post-add", map[string]interface{}{"caption": "  "}, adminToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/post-add", map[string]interface{}{
		"caption":  "Nueva",
		"points":   "15",
		"is_fixed": 1,
		"deadline": "2099-01-01T10:00",
	}, adminToken)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var task models.Task
	decode(t, rec, &task)
	assert.Equal(t, 15, task.Points)
	assert.Equal(t, 1, task.ScopeMembers)
	assert.True(t, task.IsFixed)
	require.NotNil(t, task.Deadline)

	rec = s.do(http.MethodGet, "/api/tasks", nil, memberToken)
	var visible []models.Task
	decode(t, rec, &visible)
	require.Len(t, visible, 1)

	rec = s.do(http.MethodPost, "/api/post-update-hidden", map[string]interface{}{"id": fmt.Sprint(task.ID), "blocked": "1"}, adminToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/tasks", nil, memberToken)
	visible = nil
	decode(t, rec, &visible)
	assert.Empty(t, visible)

	rec = s.do(http.MethodPost, "/api/post-update-hidden", map[string]interface{}{"id": 9999, "blocked": true}, adminToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestShopOrder(t *testing.T) {
	s := newTestServer(t)
	_, token := s.signup("71234567", models.MemberTypeVolunteer)

	hat := &models.Product{Title: "Gorra", Price: 25}
	require.NoError(t, s.db.AddProduct(hat))

	items := map[string]interface{}{"items": []map[string]interface{}{{"product_id": hat.ID, "quantity": 2}}}
	rec := s.do(http.MethodPost, "/api/shop/order", items, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "shop whatsapp not configured")

	require.NoError(t, s.db.SetSystemConf(models.SystemConf{ShopWhatsapp: "71230000"}))
	rec = s.do(http.MethodPost, "/api/shop/order", items, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var order struct {
		Total float64 `json:"total"`
		URL   string  `json:"url"`
	}
	decode(t, rec, &order)
	assert.Equal(t, 50.0, order.Total)
	assert.Contains(t, order.URL, "phone=59171230000")

	rec = s.do(http.MethodPost, "/api/shop/order", map[string]interface{}{"items": []interface{}{}}, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decode(t, rec, nil)
	assert.Equal(t, "items", env.Error.Details)
}

func TestAttendanceQR(t *testing.T) {
	s := newTestServer(t)
	id, token := s.signup("71234567", models.MemberTypeVolunteer)

	rec := s.do(http.MethodGet, "/api/attendance/qr", nil, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.NoError(t, s.db.SetSystemConf(models.SystemConf{CurrentEvent: "EVT-1", PointsEvent: 5}))

	rec = s.do(http.MethodGet, "/api/attendance/qr?size=64", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "\x89PNG"))

	rec = s.do(http.MethodGet, "/api/attendance/payload", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Content       string `json:"content"`
		WindowSeconds int    `json:"window_seconds"`
	}
	decode(t, rec, &body)
	assert.Contains(t, body.Content, "EVT-1")
	assert.Contains(t, body.Content, id)
	assert.Equal(t, 30, body.WindowSeconds)
}
