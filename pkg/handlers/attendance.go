package handlers

import (
	"errors"
	"net/http"
	"time"

	"xsch-membership-backend/pkg/attendance"
	"xsch-membership-backend/pkg/config"
	"xsch-membership-backend/pkg/database"
	"xsch-membership-backend/pkg/logging"
	"xsch-membership-backend/pkg/models"
	"xsch-membership-backend/pkg/utils"

	"go.uber.org/zap"
)

// 二维码图片尺寸范围（像素）
const (
	defaultQRSize = 256
	minQRSize     = 128
	maxQRSize     = 1024
)

// AttendanceHandler 签到二维码处理器
type AttendanceHandler struct {
	config *config.Config
	db     database.DatabaseInterface
	now    func() time.Time
}

// NewAttendanceHandler 创建签到二维码处理器
func NewAttendanceHandler(cfg *config.Config, db database.DatabaseInterface) *AttendanceHandler {
	return &AttendanceHandler{
		config: cfg,
		db:     db,
		now:    time.Now,
	}
}

func (h *AttendanceHandler) window() time.Duration {
	if h.config.AttendanceWindow > 0 {
		return h.config.AttendanceWindow
	}
	return attendance.DefaultWindow
}

// payload 为当前成员生成本时间段的签到内容
func (h *AttendanceHandler) payload(w http.ResponseWriter, r *http.Request) (attendance.Payload, bool) {
	p, ok := principal(w, r)
	if !ok {
		return attendance.Payload{}, false
	}

	conf, err := h.db.GetSystemConf()
	if errors.Is(err, models.ErrNotFound) {
		conf = &models.SystemConf{}
	} else if err != nil {
		logging.L().Error("load system conf failed", zap.Error(err))
		utils.WriteInternalServerErrorResponse(w, "Error interno del servidor")
		return attendance.Payload{}, false
	}

	payload, err := attendance.NewPayload(p.ID, *conf, h.now(), h.window())
	if utils.WriteDomainError(w, err, "Error al generar el QR") {
		return attendance.Payload{}, false
	}
	return payload, true
}

// Payload 签到内容（JSON）
func (h *AttendanceHandler) Payload(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.payload(w, r)
	if !ok {
		return
	}

	content, err := payload.Encode()
	if utils.WriteDomainError(w, err, "Error al generar el QR") {
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{
		"payload":        payload,
		"content":        content,
		"window_seconds": int(h.window().Seconds()),
	})
}

// QR 签到二维码（PNG）
func (h *AttendanceHandler) QR(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.payload(w, r)
	if !ok {
		return
	}

	size := utils.GetQueryInt(r, "size", defaultQRSize)
	if size < minQRSize {
		size = minQRSize
	} else if size > maxQRSize {
		size = maxQRSize
	}

	png, err := attendance.RenderPNG(payload, size)
	if err != nil {
		logging.L().Error("render attendance qr failed", zap.Error(err))
		utils.WriteInternalServerErrorResponse(w, "Error al generar el QR")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
