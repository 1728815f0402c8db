package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// 令牌中的角色
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// Principal is the authenticated caller attached to the request context
type Principal struct {
	ID    string `json:"id"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// LoginRequest represents the member login payload (phone + access code)
type LoginRequest struct {
	Phone      string `json:"phone"`
	AccessCode string `json:"access_code"`
}

// LoginResponse represents the response payload for member login
type LoginResponse struct {
	Member       Member `json:"member"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// RefreshTokenRequest represents the request payload for token refresh
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenClaims represents the JWT token claims.
// The field names follow the managed auth service so its access tokens parse too.
type TokenClaims struct {
	UserID string `json:"sub"`
	Email  string `json:"email,omitempty"`
	Phone  string `json:"phone,omitempty"`
	Role   string `json:"app_role,omitempty"`
	Type   string `json:"type,omitempty"` // "access" or "refresh"; empty for external tokens
	Exp    int64  `json:"exp"`
	Iat    int64  `json:"iat"`
}

// GetExpirationTime implements jwt.Claims interface
func (c *TokenClaims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Exp, 0)), nil
}

// GetIssuedAt implements jwt.Claims interface
func (c *TokenClaims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Iat, 0)), nil
}

// GetNotBefore implements jwt.Claims interface
func (c *TokenClaims) GetNotBefore() (*jwt.NumericDate, error) {
	return nil, nil
}

// GetIssuer implements jwt.Claims interface
func (c *TokenClaims) GetIssuer() (string, error) {
	return "", nil
}

// GetSubject implements jwt.Claims interface
func (c *TokenClaims) GetSubject() (string, error) {
	return c.UserID, nil
}

// GetAudience implements jwt.Claims interface
func (c *TokenClaims) GetAudience() (jwt.ClaimStrings, error) {
	return nil, nil
}

// IsAccess 外部令牌没有 type 字段，按访问令牌处理
func (c *TokenClaims) IsAccess() bool {
	return c.Type == "" || c.Type == "access"
}
