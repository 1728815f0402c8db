package handlers

import (
	"net/http"
	"strings"
	"time"

	"xsch-membership-backend/pkg/config"
	"xsch-membership-backend/pkg/database"
	"xsch-membership-backend/pkg/logging"
	"xsch-membership-backend/pkg/members"
	"xsch-membership-backend/pkg/models"
	"xsch-membership-backend/pkg/tasks"
	"xsch-membership-backend/pkg/utils"

	"go.uber.org/zap"
)

// TaskHandler 任务处理器
type TaskHandler struct {
	config    *config.Config
	db        database.DatabaseInterface
	directory *members.Directory
	now       func() time.Time
}

// NewTaskHandler 创建任务处理器
func NewTaskHandler(cfg *config.Config, db database.DatabaseInterface) *TaskHandler {
	return &TaskHandler{
		config:    cfg,
		db:        db,
		directory: members.NewDirectory(db, members.WithEmailDomain(cfg.PhoneEmailDomain)),
		now:       time.Now,
	}
}

// taskView 带倒计时文本的任务
type taskView struct {
	models.Task
	Remaining string `json:"remaining,omitempty"`
}

// ListAvailable 当前成员可做的任务
func (h *TaskHandler) ListAvailable(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	list, err := h.directory.AvailableTasks(r.Context(), p.ID)
	if utils.WriteDomainError(w, err, "Error al cargar las tareas") {
		return
	}

	now := h.now()
	views := make([]taskView, 0, len(list))
	for _, t := range list {
		views = append(views, taskView{Task: t, Remaining: tasks.Remaining(t.Deadline, now)})
	}
	utils.WriteSuccessResponse(w, views)
}

// Complete 结算任务奖励；重复完成返回 duplicate=true
func (h *TaskHandler) Complete(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	id, err := int64Param(r, "id")
	if err != nil {
		utils.WriteValidationErrorResponse(w, "Tarea inválida", "id")
		return
	}

	res, err := h.directory.SettleTask(r.Context(), id, p.ID)
	if err != nil {
		logging.L().Info("task settlement rejected",
			zap.Int64("task_id", id),
			zap.String("member_id", p.ID),
			zap.Error(err),
		)
		utils.WriteDomainError(w, err, "Error al registrar la tarea")
		return
	}
	utils.WriteSuccessResponse(w, res)
}

// ListPosts 管理端任务分页列表
func (h *TaskHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	page, limit := models.NormalizePage(utils.GetQueryInt(r, "page", 1), utils.GetQueryInt(r, "limit", 10))

	list, total, err := h.db.ListTasks(page, limit)
	if err != nil {
		logging.L().Error("list posts failed", zap.Error(err))
		utils.WriteInternalServerErrorResponse(w, "Error interno del servidor")
		return
	}
	utils.WritePaginatedResponse(w, list, page, limit, total)
}

// AddPost 新建任务
func (h *TaskHandler) AddPost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caption      string   `json:"caption"`
		Description  string   `json:"description"`
		Points       flexInt  `json:"points"`
		Thumbnail    string   `json:"thumbnail"`
		LinkURL      string   `json:"link_url"`
		Deadline     string   `json:"deadline"`
		ScopeMembers flexInt  `json:"scope_members"`
		IsFixed      flexBool `json:"is_fixed"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Caption) == "" {
		utils.WriteValidationErrorResponse(w, "El título es obligatorio", "caption")
		return
	}

	deadline, err := parseDeadline(req.Deadline)
	if utils.WriteDomainError(w, err, "") {
		return
	}

	// scope_members 缺省或为0时按1处理
	scope := int(req.ScopeMembers)
	if scope == 0 {
		scope = 1
	}

	task := &models.Task{
		Caption:      strings.TrimSpace(req.Caption),
		Description:  req.Description,
		Points:       int(req.Points),
		Thumbnail:    req.Thumbnail,
		LinkURL:      strings.TrimSpace(req.LinkURL),
		Deadline:     deadline,
		ScopeMembers: scope,
		IsFixed:      bool(req.IsFixed),
	}
	if err := h.db.CreateTask(task); err != nil {
		logging.L().Error("create post failed", zap.Error(err))
		utils.WriteInternalServerErrorResponse(w, "Error al guardar la publicación")
		return
	}
	utils.WriteCreatedResponse(w, task)
}

// SetPostHidden 隐藏或显示任务
func (h *TaskHandler) SetPostHidden(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	err := h.db.SetTaskHidden(int64(req.ID), bool(req.Blocked))
	if utils.WriteDomainError(w, err, "Error al actualizar la publicación") {
		return
	}
	utils.WriteSuccessResponse(w, map[string]string{"message": "Ok"})
}
