package utils

import (
	"fmt"
	"time"

	"xsch-membership-backend/pkg/models"

	"github.com/golang-jwt/jwt/v5"
)

// 令牌有效期
const (
	AccessTokenTTL  = 24 * time.Hour
	RefreshTokenTTL = 30 * 24 * time.Hour
)

// JWTService JWT服务
type JWTService struct {
	secretKey []byte
	now       func() time.Time
}

// NewJWTService 创建JWT服务
func NewJWTService(secretKey string) *JWTService {
	return &JWTService{
		secretKey: []byte(secretKey),
		now:       time.Now,
	}
}

// GenerateTokenPair 生成访问令牌和刷新令牌对
func (j *JWTService) GenerateTokenPair(p models.Principal) (accessToken, refreshToken string, expiresIn int64, err error) {
	accessToken, expiresAt, err := j.sign(p, "access", AccessTokenTTL)
	if err != nil {
		return "", "", 0, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, _, err = j.sign(p, "refresh", RefreshTokenTTL)
	if err != nil {
		return "", "", 0, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return accessToken, refreshToken, expiresAt, nil
}

// GenerateAccessToken 生成访问令牌
func (j *JWTService) GenerateAccessToken(p models.Principal) (string, int64, error) {
	return j.sign(p, "access", AccessTokenTTL)
}

func (j *JWTService) sign(p models.Principal, kind string, ttl time.Duration) (string, int64, error) {
	now := j.now()
	expiry := now.Add(ttl)
	claims := &models.TokenClaims{
		UserID: p.ID,
		Email:  p.Email,
		Phone:  p.Phone,
		Role:   p.Role,
		Type:   kind,
		Exp:    expiry.Unix(),
		Iat:    now.Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secretKey)
	if err != nil {
		return "", 0, err
	}
	return signed, expiry.Unix(), nil
}

// ValidateToken 验证令牌（同样接受托管认证服务以同一密钥签发的令牌）
func (j *JWTService) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		// 验证签名方法
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secretKey, nil
	}, jwt.WithTimeFunc(j.now))

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(*models.TokenClaims)
	if !ok || claims.UserID == "" {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}

// ValidateAccessToken 验证访问令牌
func (j *JWTService) ValidateAccessToken(tokenString string) (*models.TokenClaims, error) {
	claims, err := j.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if !claims.IsAccess() {
		return nil, fmt.Errorf("invalid token type: expected access, got %s", claims.Type)
	}
	return claims, nil
}

// ValidateRefreshToken 验证刷新令牌
func (j *JWTService) ValidateRefreshToken(tokenString string) (*models.TokenClaims, error) {
	claims, err := j.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}

	if claims.Type != "refresh" {
		return nil, fmt.Errorf("invalid token type: expected refresh, got %s", claims.Type)
	}

	return claims, nil
}

// RefreshAccessToken 使用刷新令牌生成新的访问令牌
func (j *JWTService) RefreshAccessToken(refreshToken string) (string, int64, error) {
	claims, err := j.ValidateRefreshToken(refreshToken)
	if err != nil {
		return "", 0, fmt.Errorf("invalid refresh token: %w", err)
	}

	return j.GenerateAccessToken(PrincipalFromClaims(claims))
}

// PrincipalFromClaims 从令牌声明构造当前调用者
func PrincipalFromClaims(claims *models.TokenClaims) models.Principal {
	role := claims.Role
	if role == "" {
		role = models.RoleMember
	}
	return models.Principal{
		ID:    claims.UserID,
		Email: claims.Email,
		Phone: claims.Phone,
		Role:  role,
	}
}
