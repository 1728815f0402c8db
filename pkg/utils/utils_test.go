package utils

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"xsch-membership-backend/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAccessCodeShape(t *testing.T) {
	re := regexp.MustCompile(`^\d{6}$`)
	for i := 0; i < 50; i++ {
		code, err := GenerateAccessCode()
		require.NoError(t, err)
		assert.Regexp(t, re, code)
	}

	phone, err := GeneratePlaceholderPhone()
	require.NoError(t, err)
	assert.Regexp(t, `^[1-9]\d{6}$`, phone)
}

func TestWhatsAppLink(t *testing.T) {
	assert.Equal(t, "https://wa.me/59171234567", WhatsAppLink("591", "7123-4567", ""))
	assert.Equal(t, "https://wa.me/59170000000?text=Hola+mundo", WhatsAppLink("591", "59170000000", "Hola mundo"))
}

func TestJWTRoundTrip(t *testing.T) {
	svc := NewJWTService("secret")
	p := models.Principal{ID: "m1", Phone: "71234567", Email: "71234567@app.com", Role: models.RoleMember}

	access, refresh, exp, err := svc.GenerateTokenPair(p)
	require.NoError(t, err)
	assert.Greater(t, exp, time.Now().Unix())

	claims, err := svc.ValidateAccessToken(access)
	require.NoError(t, err)
	assert.Equal(t, p, PrincipalFromClaims(claims))

	_, err = svc.ValidateAccessToken(refresh)
	assert.Error(t, err, "refresh tokens cannot be used as access tokens")

	renewed, _, err := svc.RefreshAccessToken(refresh)
	require.NoError(t, err)
	claims, err = svc.ValidateAccessToken(renewed)
	require.NoError(t, err)
	assert.Equal(t, "m1", claims.UserID)

	_, err = NewJWTService("other").ValidateToken(access)
	assert.Error(t, err)
}

func TestJWTExpired(t *testing.T) {
	svc := NewJWTService("secret")
	svc.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	token, _, err := svc.GenerateAccessToken(models.Principal{ID: "m1"})
	require.NoError(t, err)

	_, err = NewJWTService("secret").ValidateToken(token)
	assert.Error(t, err)
}

func TestWriteDomainError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("wrap: %w", models.ErrDuplicatePhone), http.StatusConflict, CodeDuplicatePhone},
		{models.ErrDuplicateIdentityCard, http.StatusConflict, CodeDuplicateIdentityCard},
		{models.ErrDuplicateSlot, http.StatusConflict, CodeSlotTaken},
		{models.ErrInvalidCredentials, http.StatusUnauthorized, CodeInvalidCredentials},
		{models.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{models.ErrTaskExpired, http.StatusGone, CodeTaskExpired},
		{fmt.Errorf("form: %w", models.NewValidationError("phone", "campo inválido")), http.StatusBadRequest, CodeValidation},
		{fmt.Errorf("boom"), http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		require.True(t, WriteDomainError(rec, tc.err, "Error del servidor"))
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())

		var resp APIResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		assert.Equal(t, tc.code, resp.Error.Code)
	}

	rec := httptest.NewRecorder()
	assert.False(t, WriteDomainError(rec, nil, ""))

	rec = httptest.NewRecorder()
	WriteDomainError(rec, models.ErrDuplicatePhone, "")
	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Este número de teléfono ya está registrado", resp.Error.Message)
}

func TestWritePaginatedResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	WritePaginatedResponse(rec, []int{1, 2}, 2, 10, 21)

	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 3, resp.Meta.TotalPages)
}
