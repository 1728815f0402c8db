package handlers

import (
	"net/http"
	"strings"
	"time"

	"xsch-membership-backend/pkg/config"
	"xsch-membership-backend/pkg/database"
	"xsch-membership-backend/pkg/logging"
	"xsch-membership-backend/pkg/members"
	"xsch-membership-backend/pkg/middleware"
	"xsch-membership-backend/pkg/models"
	"xsch-membership-backend/pkg/utils"

	"go.uber.org/zap"
)

// AuthHandler 认证处理器
type AuthHandler struct {
	config    *config.Config
	db        database.DatabaseInterface
	directory *members.Directory
	jwt       *utils.JWTService
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(cfg *config.Config, db database.DatabaseInterface) *AuthHandler {
	return &AuthHandler{
		config:    cfg,
		db:        db,
		directory: members.NewDirectory(db, members.WithEmailDomain(cfg.PhoneEmailDomain)),
		jwt:       utils.NewJWTService(cfg.JWTSecret),
	}
}

// Login 成员登录（手机号 + 访问码）
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	member, err := h.directory.Login(r.Context(), req.Phone, req.AccessCode)
	if err != nil {
		logging.L().Info("login rejected", zap.String("phone", utils.DigitsOnly(req.Phone)), zap.Error(err))
		utils.WriteDomainError(w, err, "Error al iniciar sesión")
		return
	}

	access, refresh, expiresIn, err := h.jwt.GenerateTokenPair(models.Principal{
		ID:    member.ID,
		Phone: member.Phone,
		Email: member.Email,
		Role:  models.RoleMember,
	})
	if err != nil {
		logging.L().Error("failed to issue tokens", zap.String("member_id", member.ID), zap.Error(err))
		utils.WriteInternalServerErrorResponse(w, "Error al iniciar sesión")
		return
	}

	utils.WriteSuccessResponse(w, models.LoginResponse{
		Member:       *member,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    expiresIn,
	})
}

// RefreshToken 刷新令牌
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshTokenRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		utils.WriteBadRequestResponse(w, "refresh_token is required")
		return
	}

	accessToken, expiresIn, err := h.jwt.RefreshAccessToken(req.RefreshToken)
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Invalid or expired refresh token")
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"access_token": accessToken,
		"expires_in":   expiresIn,
	})
}

// SessionLogin 管理端登录：校验令牌与 admins 表后写入会话cookie
func (h *AuthHandler) SessionLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDToken string `json:"idToken"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil || strings.TrimSpace(req.IDToken) == "" {
		utils.WriteBadRequestResponse(w, "Token no proporcionado")
		return
	}

	claims, err := h.jwt.ValidateAccessToken(req.IDToken)
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Token inválido")
		return
	}

	ok, err := h.db.IsAdmin(claims.UserID)
	if err != nil {
		logging.L().Error("admin lookup failed", zap.String("user_id", claims.UserID), zap.Error(err))
		utils.WriteInternalServerErrorResponse(w, "Error interno del servidor")
		return
	}
	if !ok {
		utils.WriteForbiddenResponse(w, "Tu usuario no figura en la lista de administradores.")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.config.SessionCookieName,
		Value:    req.IDToken,
		Path:     "/",
		Expires:  time.Unix(claims.Exp, 0),
		HttpOnly: true,
		Secure:   h.config.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
	logging.L().Info("admin session started", zap.String("user_id", claims.UserID))
	utils.WriteSuccessResponse(w, map[string]string{"status": "success"})
}

// Logout 清除管理端会话cookie
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	middleware.ClearSessionCookie(w, h.config.SessionCookieName, h.config.IsProduction())
	utils.WriteSuccessResponse(w, map[string]string{"status": "logged_out"})
}

// HealthCheck 健康检查
func (h *AuthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	// 测试数据库连接
	dbStatus := "healthy"
	if err := h.db.HealthCheck(); err != nil {
		dbStatus = "unhealthy: " + err.Error()
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"service":     "xsch-membership-backend",
		"version":     "1.0.0",
		"environment": h.config.Environment,
		"database":    h.getDatabaseType(),
		"db_status":   dbStatus,
		"timestamp":   time.Now().Unix(),
		"status":      "healthy",
	})
}

// getDatabaseType 获取数据库类型
func (h *AuthHandler) getDatabaseType() string {
	if h.config.UseLocalDB {
		return "local"
	} else if h.config.PostgresDSN != "" {
		return "postgresql"
	} else if h.config.SupabaseURL != "" && h.config.SupabaseKey != "" {
		return "supabase"
	}
	return "unknown"
}
