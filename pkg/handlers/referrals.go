package handlers

import (
	"net/http"
	"strconv"

	"xsch-membership-backend/pkg/config"
	"xsch-membership-backend/pkg/database"
	"xsch-membership-backend/pkg/members"
	"xsch-membership-backend/pkg/referral"
	"xsch-membership-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
)

// ReferralHandler 推荐名额处理器
type ReferralHandler struct {
	config    *config.Config
	directory *members.Directory
	service   *referral.Service
}

// NewReferralHandler 创建推荐名额处理器
func NewReferralHandler(cfg *config.Config, db database.DatabaseInterface) *ReferralHandler {
	dir := members.NewDirectory(db, members.WithEmailDomain(cfg.PhoneEmailDomain))
	return &ReferralHandler{
		config:    cfg,
		directory: dir,
		service:   referral.NewService(dir, dir, referral.WithInvite(cfg.CountryCode, cfg.AppURL)),
	}
}

// List 当前成员的推荐记录
func (h *ReferralHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	list, err := h.directory.ListReferrals(r.Context(), p.ID)
	if utils.WriteDomainError(w, err, "Error al obtener referidos") {
		return
	}
	utils.WriteSuccessResponse(w, list)
}

// Slots 当前成员的推荐名额表
func (h *ReferralHandler) Slots(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	roster, err := h.service.Roster(r.Context(), p.ID)
	if utils.WriteDomainError(w, err, "Error al cargar los espacios") {
		return
	}
	utils.WriteSuccessResponse(w, roster)
}

// Register 在指定名额登记新成员
func (h *ReferralHandler) Register(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	index, err := strconv.Atoi(chi.URLParam(r, "slot"))
	if err != nil {
		utils.WriteValidationErrorResponse(w, "Espacio inválido", "id_slot")
		return
	}

	var form referral.RegistrationForm
	if err := utils.ParseJSONBody(r, &form); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	outcome, err := h.service.Register(r.Context(), p.ID, index, form)
	if utils.WriteDomainError(w, err, "Error al registrar") {
		return
	}
	utils.WriteCreatedResponse(w, outcome)
}
