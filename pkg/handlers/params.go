package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"xsch-membership-backend/pkg/middleware"
	"xsch-membership-backend/pkg/models"
	"xsch-membership-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
)

// flexBool 接受 true/false、1/0 以及它们的字符串形式（管理端开关控件会发送数字）
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	switch strings.Trim(string(bytes.TrimSpace(data)), `"`) {
	case "true", "1":
		*b = true
	case "false", "0", "", "null":
		*b = false
	default:
		return errors.New("invalid boolean")
	}
	return nil
}

// flexInt 接受数字或数字字符串，无法解析时为0
type flexInt int

func (n *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	if v, err := strconv.Atoi(s); err == nil {
		*n = flexInt(v)
		return nil
	}
	var f float64
	if err := json.Unmarshal([]byte(s), &f); err != nil {
		*n = 0
		return nil
	}
	*n = flexInt(f)
	return nil
}

// toggleRequest is the body of the admin hide/delete switches.
type toggleRequest struct {
	ID      flexInt  `json:"id"`
	Blocked flexBool `json:"blocked"`
}

var deadlineLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseDeadline 解析管理端提交的截止时间，空字符串表示不限期
func parseDeadline(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range deadlineLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, models.NewValidationError("deadline", "Fecha límite inválida")
}

// principal 读取调用者，未认证时写入401并返回false
func principal(w http.ResponseWriter, r *http.Request) (*models.Principal, bool) {
	p, err := middleware.RequirePrincipal(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return nil, false
	}
	return p, true
}

// int64Param 读取路由中的整数参数
func int64Param(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}
