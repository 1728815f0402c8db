package handlers

import (
	"net/http"
	"sort"
	"strings"

	"xsch-membership-backend/pkg/config"
	"xsch-membership-backend/pkg/database"
	"xsch-membership-backend/pkg/logging"
	"xsch-membership-backend/pkg/models"
	"xsch-membership-backend/pkg/utils"

	"go.uber.org/zap"
)

// CatalogHandler 负责人与活动处理器
type CatalogHandler struct {
	config *config.Config
	db     database.DatabaseInterface
}

// NewCatalogHandler 创建负责人与活动处理器
func NewCatalogHandler(cfg *config.Config, db database.DatabaseInterface) *CatalogHandler {
	return &CatalogHandler{
		config: cfg,
		db:     db,
	}
}

// ListManagers 负责人分页列表（附带名下成员数）
func (h *CatalogHandler) ListManagers(w http.ResponseWriter, r *http.Request) {
	page, limit := models.NormalizePage(utils.GetQueryInt(r, "page", 1), utils.GetQueryInt(r, "limit", 10))

	list, total, err := h.db.ListManagers(page, limit)
	if err != nil {
		logging.L().Error("list managers failed", zap.Error(err))
		utils.WriteInternalServerErrorResponse(w, "Error interno del servidor")
		return
	}
	utils.WritePaginatedResponse(w, list, page, limit, total)
}

type activeManager struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// ListActiveManagers 未隐藏的负责人，按姓名排序
func (h *CatalogHandler) ListActiveManagers(w http.ResponseWriter, r *http.Request) {
	list, err := h.db.ListActiveManagers()
	if err != nil {
		logging.L().Error("list active managers failed", zap.Error(err))
		utils.WriteInternalServerErrorResponse(w, "Error interno del servidor")
		return
	}

	out := make([]activeManager, 0, len(list))
	for _, m := range list {
		out = append(out, activeManager{Name: m.Name, Phone: m.Phone})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	utils.WriteSuccessResponse(w, out)
}

// AddManager 新建负责人
func (h *CatalogHandler) AddManager(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string  `json:"name"`
		Phone    string  `json:"phone"`
		TeamSize flexInt `json:"team_size"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	manager := &models.SocialMediaManager{
		Name:     strings.TrimSpace(req.Name),
		Phone:    utils.DigitsOnly(req.Phone),
		TeamSize: int(req.TeamSize),
	}
	if manager.Name == "" || manager.Phone == "" {
		utils.WriteValidationErrorResponse(w, "Nombre y celular requeridos", "name")
		return
	}

	if utils.WriteDomainError(w, h.db.CreateManager(manager), "Error al agregar el manager") {
		return
	}
	utils.WriteCreatedResponse(w, manager)
}

// SetManagerHidden 隐藏或显示负责人
func (h *CatalogHandler) SetManagerHidden(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	err := h.db.SetManagerHidden(int64(req.ID), bool(req.Blocked))
	if utils.WriteDomainError(w, err, "Error al actualizar el estado") {
		return
	}
	utils.WriteSuccessResponse(w, map[string]string{"message": "Estado actualizado"})
}

// ListEvents 首页活动列表
func (h *CatalogHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	list, err := h.db.ListEvents()
	if err != nil {
		logging.L().Error("list events failed", zap.Error(err))
		utils.WriteInternalServerErrorResponse(w, "Error interno del servidor")
		return
	}
	utils.WriteSuccessResponse(w, list)
}

// AddEvent 新建活动
func (h *CatalogHandler) AddEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name         string `json:"name"`
		ImageLink    string `json:"image_link"`
		RedirectLink string `json:"redirect_link"`
		EventCode    string `json:"event_code"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.ImageLink) == "" {
		utils.WriteValidationErrorResponse(w, "El campo image_link es obligatorio", "image_link")
		return
	}

	event := &models.Event{
		Name:         optional(req.Name),
		ImageLink:    strings.TrimSpace(req.ImageLink),
		RedirectLink: optional(req.RedirectLink),
		EventCode:    optional(req.EventCode),
	}
	if err := h.db.CreateEvent(event); err != nil {
		logging.L().Error("create event failed", zap.Error(err))
		utils.WriteInternalServerErrorResponse(w, "Error al agregar el evento")
		return
	}
	utils.WriteCreatedResponse(w, event)
}

// DeleteEvent 软删除或恢复活动
func (h *CatalogHandler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	err := h.db.SetEventDeleted(int64(req.ID), bool(req.Blocked))
	if utils.WriteDomainError(w, err, "Error al actualizar el estado") {
		return
	}
	utils.WriteSuccessResponse(w, map[string]string{"message": "Estado actualizado"})
}

func optional(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}
