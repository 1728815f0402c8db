package handlers

import (
	"errors"
	"net/http"
	"strings"

	"xsch-membership-backend/pkg/config"
	"xsch-membership-backend/pkg/database"
	"xsch-membership-backend/pkg/export"
	"xsch-membership-backend/pkg/logging"
	"xsch-membership-backend/pkg/members"
	"xsch-membership-backend/pkg/models"
	"xsch-membership-backend/pkg/monitoring"
	"xsch-membership-backend/pkg/utils"

	"go.uber.org/zap"
)

// MemberHandler 成员处理器
type MemberHandler struct {
	config    *config.Config
	db        database.DatabaseInterface
	directory *members.Directory
}

// NewMemberHandler 创建成员处理器
func NewMemberHandler(cfg *config.Config, db database.DatabaseInterface) *MemberHandler {
	return &MemberHandler{
		config:    cfg,
		db:        db,
		directory: members.NewDirectory(db, members.WithEmailDomain(cfg.PhoneEmailDomain)),
	}
}

// AddUser 直接注册成员
func (h *MemberHandler) AddUser(w http.ResponseWriter, r *http.Request) {
	var req models.RegistrationRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	// 公开注册不能自带验证结果
	if !req.IsVerified.SelfAssignable() {
		req.IsVerified = models.VerificationPending
	}

	result, err := h.directory.Register(r.Context(), &req)
	if err != nil {
		var verr *models.ValidationError
		switch {
		case models.IsConflict(err):
			monitoring.RegistrationsTotal.WithLabelValues("direct", "conflict").Inc()
		case errors.As(err, &verr):
			monitoring.RegistrationsTotal.WithLabelValues("direct", "invalid").Inc()
		default:
			monitoring.RegistrationsTotal.WithLabelValues("direct", "error").Inc()
			logging.L().Error("add-user failed", zap.Error(err))
		}
		utils.WriteDomainError(w, err, "Error al procesar el registro")
		return
	}
	monitoring.RegistrationsTotal.WithLabelValues("direct", "ok").Inc()

	utils.WriteCreatedResponse(w, result)
}

// GetReferidos 推荐人名下成员列表
func (h *MemberHandler) GetReferidos(w http.ResponseWriter, r *http.Request) {
	referrerID := strings.TrimSpace(r.URL.Query().Get("referrer_id"))
	if referrerID == "" {
		utils.WriteValidationErrorResponse(w, "referrer_id es obligatorio", "referrer_id")
		return
	}

	list, err := h.directory.ListReferrals(r.Context(), referrerID)
	if utils.WriteDomainError(w, err, "Error al obtener referidos") {
		return
	}
	utils.WriteSuccessResponse(w, list)
}

// Me 当前成员资料
func (h *MemberHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	member, err := h.directory.GetMember(r.Context(), p.ID)
	if utils.WriteDomainError(w, err, "Error al obtener el perfil") {
		return
	}
	utils.WriteSuccessResponse(w, member)
}

// SubmitVerification 成员提交身份验证资料
func (h *MemberHandler) SubmitVerification(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var sub models.VerificationSubmission
	if err := utils.ParseJSONBody(r, &sub); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	member, err := h.directory.SubmitVerification(r.Context(), p.ID, sub)
	if utils.WriteDomainError(w, err, "Error al enviar la verificación") {
		return
	}
	utils.WriteSuccessResponse(w, member)
}

// GetData 管理端成员分页列表
func (h *MemberHandler) GetData(w http.ResponseWriter, r *http.Request) {
	filter := models.MemberFilter{
		Name:         r.URL.Query().Get("name"),
		Phone:        r.URL.Query().Get("phone"),
		IdentityCard: r.URL.Query().Get("identity_card"),
		Page:         utils.GetQueryInt(r, "page", 1),
		Limit:        utils.GetQueryInt(r, "limit", 10),
	}

	list, total, err := h.db.ListMembers(filter)
	if err != nil {
		logging.L().Error("list members failed", zap.Error(err))
		utils.WriteInternalServerErrorResponse(w, "Error interno del servidor")
		return
	}

	page, limit := models.NormalizePage(filter.Page, filter.Limit)
	utils.WritePaginatedResponse(w, list, page, limit, total)
}

// DeleteUser 删除成员及其认证账号
func (h *MemberHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AuthID string `json:"auth_id"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.AuthID) == "" {
		utils.WriteValidationErrorResponse(w, "auth_id es obligatorio", "auth_id")
		return
	}

	if utils.WriteDomainError(w, h.directory.Delete(r.Context(), req.AuthID), "Error al borrar el usuario") {
		return
	}
	utils.WriteSuccessResponse(w, map[string]string{"message": "Usuario borrado correctamente de Auth y Members"})
}

// VerifyUser 管理员审核成员
func (h *MemberHandler) VerifyUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UID        string  `json:"uid"`
		Name       string  `json:"name"`
		IsVerified flexInt `json:"is_verified"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.UID) == "" {
		utils.WriteValidationErrorResponse(w, "UID requerido", "uid")
		return
	}

	member, err := h.directory.Verify(r.Context(), req.UID, req.Name, models.VerificationStatus(req.IsVerified))
	if utils.WriteDomainError(w, err, "Error al actualizar el usuario") {
		return
	}
	utils.WriteSuccessResponse(w, member)
}

// Export 导出全部成员为 xlsx
func (h *MemberHandler) Export(w http.ResponseWriter, r *http.Request) {
	all, err := export.AllMembers(h.db)
	if err != nil {
		logging.L().Error("export: list members failed", zap.Error(err))
		utils.WriteInternalServerErrorResponse(w, "Error interno del servidor")
		return
	}

	f, err := export.MembersFile(all)
	if err != nil {
		logging.L().Error("export: build workbook failed", zap.Error(err))
		utils.WriteInternalServerErrorResponse(w, "Error al generar el archivo")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="miembros.xlsx"`)
	if err := f.Write(w); err != nil {
		logging.L().Warn("export: write failed", zap.Error(err))
	}
}

// Stats 成员进度
func (h *MemberHandler) Stats(w http.ResponseWriter, r *http.Request) {
	progress, err := h.directory.Progress(r.Context())
	if utils.WriteDomainError(w, err, "Error al obtener estadísticas") {
		return
	}
	utils.WriteSuccessResponse(w, progress)
}
