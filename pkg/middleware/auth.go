package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"xsch-membership-backend/pkg/logging"
	"xsch-membership-backend/pkg/models"
	"xsch-membership-backend/pkg/utils"

	"go.uber.org/zap"
)

// ContextKey 用于在context中存储用户信息的键
type ContextKey string

const (
	PrincipalContextKey ContextKey = "principal"
)

// AdminChecker looks a user up in the admins table
type AdminChecker interface {
	IsAdmin(userID string) (bool, error)
}

// AuthMiddleware 成员JWT认证中间件
func AuthMiddleware(jwtSvc *utils.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				utils.WriteUnauthorizedResponse(w, err.Error())
				return
			}

			claims, err := jwtSvc.ValidateAccessToken(tokenString)
			if err != nil {
				logging.L().Debug("auth: token rejected", zap.String("path", r.URL.Path), zap.Error(err))
				utils.WriteUnauthorizedResponse(w, "Invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), utils.PrincipalFromClaims(claims))))
		})
	}
}

// AdminAuthMiddleware accepts the admin session cookie or a bearer token and
// requires the user to be listed in the admins table.
func AdminAuthMiddleware(jwtSvc *utils.JWTService, admins AdminChecker, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := ""
			if c, err := r.Cookie(cookieName); err == nil {
				tokenString = c.Value
			}
			if tokenString == "" {
				var err error
				if tokenString, err = bearerToken(r); err != nil {
					utils.WriteUnauthorizedResponse(w, err.Error())
					return
				}
			}

			claims, err := jwtSvc.ValidateAccessToken(tokenString)
			if err != nil {
				ClearSessionCookie(w, cookieName, false)
				utils.WriteUnauthorizedResponse(w, "Sesión inválida")
				return
			}

			ok, err := admins.IsAdmin(claims.UserID)
			if err != nil {
				logging.L().Error("admin lookup failed", zap.String("user_id", claims.UserID), zap.Error(err))
				utils.WriteInternalServerErrorResponse(w, "Error interno del servidor")
				return
			}
			if !ok {
				logging.L().Warn("admin access denied", zap.String("user_id", claims.UserID), zap.String("email", claims.Email))
				ClearSessionCookie(w, cookieName, false)
				utils.WriteForbiddenResponse(w, "No tienes permisos de administrador para acceder a este panel.")
				return
			}

			p := utils.PrincipalFromClaims(claims)
			p.Role = models.RoleAdmin
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// ClearSessionCookie 清除管理端会话cookie
func ClearSessionCookie(w http.ResponseWriter, name string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("Missing authorization header")
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader || tokenString == "" {
		return "", errors.New("Invalid authorization header format")
	}
	return tokenString, nil
}

// WithPrincipal 把调用者放入context
func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, PrincipalContextKey, &p)
}

// GetPrincipalFromContext 从context中获取调用者
func GetPrincipalFromContext(ctx context.Context) (*models.Principal, bool) {
	p, ok := ctx.Value(PrincipalContextKey).(*models.Principal)
	return p, ok && p != nil
}

// RequirePrincipal 要求调用者必须已认证
func RequirePrincipal(ctx context.Context) (*models.Principal, error) {
	p, ok := GetPrincipalFromContext(ctx)
	if !ok {
		return nil, errors.New("user not authenticated")
	}
	return p, nil
}
