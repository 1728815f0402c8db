package database

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"xsch-membership-backend/pkg/logging"
	"xsch-membership-backend/pkg/models"

	"go.uber.org/zap"
)

// SupabaseDatabase Supabase数据库实现（PostgREST + RPC + GoTrue 管理接口）
type SupabaseDatabase struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// supabaseError PostgREST / GoTrue 错误响应
type supabaseError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Msg     string `json:"msg"`
}

func (e *supabaseError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Msg
	}
	return fmt.Sprintf("API request failed with status %d: %s %s", e.Status, e.Code, msg)
}

// NewSupabaseDatabase 创建Supabase数据库实例
func NewSupabaseDatabase(baseURL, key string) DatabaseInterface {
	// 确保URL格式正确
	if !strings.HasPrefix(baseURL, "http") {
		baseURL = "https://" + baseURL
	}

	return &SupabaseDatabase{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  key,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// makeRequest 发送HTTP请求到 PostgREST
func (db *SupabaseDatabase) makeRequest(method, endpoint string, body interface{}) ([]byte, error) {
	data, _, err := db.makeRequestWithHeaders(method, "/rest/v1"+endpoint, body, nil)
	return data, err
}

// makeRequestWithHeaders 发送HTTP请求到Supabase（支持自定义头），返回响应头
func (db *SupabaseDatabase) makeRequestWithHeaders(method, path string, body interface{}, customHeaders map[string]string) ([]byte, http.Header, error) {
	var reqBody io.Reader

	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, db.baseURL+path, reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	// 设置默认请求头
	req.Header.Set("apikey", db.apiKey)
	req.Header.Set("Authorization", "Bearer "+db.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	for key, value := range customHeaders {
		req.Header.Set(key, value)
	}

	resp, err := db.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &supabaseError{Status: resp.StatusCode}
		if json.Unmarshal(respBody, apiErr) != nil {
			apiErr.Message = string(respBody)
		}
		logging.L().Debug("Supabase request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("code", apiErr.Code),
		)
		return nil, resp.Header, mapSupabaseError(apiErr)
	}

	return respBody, resp.Header, nil
}

// mapSupabaseError 把唯一约束冲突映射为领域错误
func mapSupabaseError(e *supabaseError) error {
	if e.Status != http.StatusConflict && e.Code != "23505" {
		return e
	}
	text := e.Message + " " + e.Details
	switch {
	case strings.Contains(text, "members_phone_key"), strings.Contains(text, "(phone)"):
		return models.ErrDuplicatePhone
	case strings.Contains(text, "identity_card"):
		return models.ErrDuplicateIdentityCard
	case strings.Contains(text, "id_slot"):
		return models.ErrDuplicateSlot
	case strings.Contains(text, "post_id"), strings.Contains(text, "completion"):
		return models.ErrDuplicateCompletion
	}
	return e
}

// decodeFirst 解码数组响应的第一行
func decodeFirst[T any](data []byte) (*T, error) {
	var rows []T
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(rows) == 0 {
		return nil, models.ErrNotFound
	}
	return &rows[0], nil
}

// contentRangeTotal 解析 Content-Range: 0-9/123
func contentRangeTotal(h http.Header) int {
	cr := h.Get("Content-Range")
	if i := strings.LastIndex(cr, "/"); i >= 0 {
		if n, err := strconv.Atoi(cr[i+1:]); err == nil {
			return n
		}
	}
	return 0
}

// listWithCount 分页查询并返回总数
func (db *SupabaseDatabase) listWithCount(endpoint string, from, to int, out interface{}) (int, error) {
	data, headers, err := db.makeRequestWithHeaders("GET", "/rest/v1"+endpoint, nil, map[string]string{
		"Prefer":     "count=exact",
		"Range-Unit": "items",
		"Range":      fmt.Sprintf("%d-%d", from, to),
	})
	if err != nil {
		return 0, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}
	return contentRangeTotal(headers), nil
}

// ================= 认证 =================

// CreateAuthUser 通过 GoTrue 管理接口创建已确认的账号
func (db *SupabaseDatabase) CreateAuthUser(email, password string) (string, error) {
	data, _, err := db.makeRequestWithHeaders("POST", "/auth/v1/admin/users", map[string]interface{}{
		"email":         email,
		"password":      password,
		"email_confirm": true,
	}, nil)
	if err != nil {
		var apiErr *supabaseError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnprocessableEntity {
			return "", models.ErrDuplicatePhone
		}
		return "", fmt.Errorf("failed to create auth user: %w", err)
	}

	var user struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &user); err != nil || user.ID == "" {
		return "", fmt.Errorf("failed to decode auth user")
	}
	return user.ID, nil
}

// DeleteAuthUser 删除认证账号
func (db *SupabaseDatabase) DeleteAuthUser(id string) error {
	_, _, err := db.makeRequestWithHeaders("DELETE", "/auth/v1/admin/users/"+url.PathEscape(id), nil, nil)
	return err
}

// AuthenticateMember 使用密码授权流程校验访问码
func (db *SupabaseDatabase) AuthenticateMember(email, accessCode string) (string, error) {
	data, _, err := db.makeRequestWithHeaders("POST", "/auth/v1/token?grant_type=password", map[string]string{
		"email":    email,
		"password": accessCode,
	}, nil)
	if err != nil {
		var apiErr *supabaseError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusBadRequest {
			return "", models.ErrInvalidCredentials
		}
		return "", err
	}

	var session struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	if err := json.Unmarshal(data, &session); err != nil || session.User.ID == "" {
		return "", models.ErrInvalidCredentials
	}
	return session.User.ID, nil
}

// IsAdmin 检查 admins 表
func (db *SupabaseDatabase) IsAdmin(userID string) (bool, error) {
	data, err := db.makeRequest("GET", "/admins?select=id&id=eq."+url.QueryEscape(userID), nil)
	if err != nil {
		return false, err
	}
	var rows []map[string]interface{}
	if err := json.Unmarshal(data, &rows); err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// ================= 成员 =================

// CreateMember 插入成员
func (db *SupabaseDatabase) CreateMember(member *models.Member) error {
	payload := map[string]interface{}{
		"id":            member.ID,
		"auth_id":       nullIfEmpty(member.AuthID),
		"name":          member.Name,
		"email":         member.Email,
		"phone":         member.Phone,
		"identity_card": member.IdentityCard,
		"birth_date":    member.BirthDate,
		"points":        0,
		"referrer_id":   member.ReferrerID,
		"is_verified":   member.IsVerified,
		"locality":      member.Locality,
		"voting_place":  member.VotingPlace,
		"voting_table":  member.VotingTable,
		"manager_phone": member.ManagerPhone,
		"member_type":   member.MemberType,
		"tier":          member.Tier,
		"id_slot":       member.SlotID,
	}
	data, err := db.makeRequest("POST", "/members", payload)
	if err != nil {
		return fmt.Errorf("failed to create member: %w", err)
	}
	if created, err := decodeFirst[models.Member](data); err == nil {
		member.CreatedAt = created.CreatedAt
	}
	return nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func (db *SupabaseDatabase) getMember(filter string) (*models.Member, error) {
	data, err := db.makeRequest("GET", "/members?select=*&limit=1&"+filter, nil)
	if err != nil {
		return nil, err
	}
	return decodeFirst[models.Member](data)
}

// GetMemberByID 根据ID获取成员
func (db *SupabaseDatabase) GetMemberByID(id string) (*models.Member, error) {
	return db.getMember("id=eq." + url.QueryEscape(id))
}

// GetMemberByPhone 根据手机号获取成员
func (db *SupabaseDatabase) GetMemberByPhone(phone string) (*models.Member, error) {
	return db.getMember("phone=eq." + url.QueryEscape(phone))
}

// GetMemberByIdentityCard 根据证件号获取成员
func (db *SupabaseDatabase) GetMemberByIdentityCard(identityCard string) (*models.Member, error) {
	return db.getMember("identity_card=eq." + url.QueryEscape(identityCard))
}

// UpdateMember 部分更新成员字段
func (db *SupabaseDatabase) UpdateMember(id string, patch map[string]interface{}) error {
	for k := range patch {
		if !memberPatchColumns[k] {
			return fmt.Errorf("column %q cannot be updated", k)
		}
	}
	data, err := db.makeRequest("PATCH", "/members?id=eq."+url.QueryEscape(id), patch)
	if err != nil {
		return fmt.Errorf("failed to update member: %w", err)
	}
	var rows []map[string]interface{}
	if json.Unmarshal(data, &rows) == nil && len(rows) == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteMember 删除成员及其认证账号
func (db *SupabaseDatabase) DeleteMember(id string) error {
	data, err := db.makeRequest("DELETE", "/members?id=eq."+url.QueryEscape(id), nil)
	if err != nil {
		return fmt.Errorf("failed to delete member: %w", err)
	}
	var rows []map[string]interface{}
	if json.Unmarshal(data, &rows) == nil && len(rows) == 0 {
		return models.ErrNotFound
	}
	if err := db.DeleteAuthUser(id); err != nil {
		logging.L().Warn("Member deleted but auth user removal failed", zap.String("member_id", id), zap.Error(err))
	}
	return nil
}

// ListMembers 分页查询成员
func (db *SupabaseDatabase) ListMembers(filter models.MemberFilter) ([]models.Member, int, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("order", "created_at.desc")
	if name := strings.TrimSpace(filter.Name); name != "" {
		q.Set("name", "ilike.*"+name+"*")
	}
	if ci := strings.TrimSpace(filter.IdentityCard); ci != "" {
		q.Set("identity_card", "ilike.*"+ci+"*")
	}
	if phone := nonDigits.ReplaceAllString(filter.Phone, ""); phone != "" {
		q.Set("phone", "eq."+phone)
	}

	from, to := filter.Range()
	var members []models.Member
	total, err := db.listWithCount("/members?"+q.Encode(), from, to, &members)
	if err != nil {
		return nil, 0, err
	}
	return members, total, nil
}

// ListReferrals 推荐人名下成员，按创建时间升序
func (db *SupabaseDatabase) ListReferrals(referrerID string) ([]models.Member, error) {
	data, err := db.makeRequest("GET", "/members?select=*&order=created_at.asc&referrer_id=eq."+url.QueryEscape(referrerID), nil)
	if err != nil {
		return nil, err
	}
	members := make([]models.Member, 0)
	if err := json.Unmarshal(data, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// CountMembers 成员总数
func (db *SupabaseDatabase) CountMembers() (int, error) {
	var rows []map[string]interface{}
	return db.listWithCount("/members?select=id", 0, 0, &rows)
}

// SlotTaken 推荐名额是否已被占用
func (db *SupabaseDatabase) SlotTaken(referrerID string, slot int) (bool, error) {
	data, err := db.makeRequest("GET", fmt.Sprintf("/members?select=id&referrer_id=eq.%s&id_slot=eq.%d",
		url.QueryEscape(referrerID), slot), nil)
	if err != nil {
		return false, err
	}
	var rows []map[string]interface{}
	if err := json.Unmarshal(data, &rows); err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// ================= 任务 =================

// ListTasks 管理端任务列表
func (db *SupabaseDatabase) ListTasks(page, limit int) ([]models.Task, int, error) {
	from, to := pageRange(page, limit)
	var tasks []models.Task
	total, err := db.listWithCount("/social_media_post?select=*&order=created_at.desc", from, to, &tasks)
	return tasks, total, err
}

// CreateTask 新建任务
func (db *SupabaseDatabase) CreateTask(task *models.Task) error {
	payload := map[string]interface{}{
		"caption":       task.Caption,
		"description":   task.Description,
		"points":        task.Points,
		"thumbnail":     task.Thumbnail,
		"link_url":      task.LinkURL,
		"deadline":      task.Deadline,
		"scope_members": task.ScopeMembers,
		"is_hidden":     task.IsHidden,
		"is_fixed":      task.IsFixed,
	}
	data, err := db.makeRequest("POST", "/social_media_post", payload)
	if err != nil {
		return err
	}
	created, err := decodeFirst[models.Task](data)
	if err != nil {
		return err
	}
	task.ID, task.CreatedAt = created.ID, created.CreatedAt
	return nil
}

// GetTask 按ID读取任务
func (db *SupabaseDatabase) GetTask(id int64) (*models.Task, error) {
	data, err := db.makeRequest("GET", fmt.Sprintf("/social_media_post?select=*&limit=1&id=eq.%d", id), nil)
	if err != nil {
		return nil, err
	}
	return decodeFirst[models.Task](data)
}

// SetTaskHidden 隐藏或显示任务
func (db *SupabaseDatabase) SetTaskHidden(id int64, hidden bool) error {
	return db.patchOne(fmt.Sprintf("/social_media_post?id=eq.%d", id), map[string]bool{"is_hidden": hidden})
}

// ListAvailableTasks 调用 get_available_posts，并在本地剔除已过期任务
func (db *SupabaseDatabase) ListAvailableTasks(memberID string, now time.Time) ([]models.Task, error) {
	data, err := db.makeRequest("POST", "/rpc/get_available_posts", map[string]string{"user_uuid": memberID})
	if err != nil {
		return nil, err
	}
	var tasks []models.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("failed to decode tasks: %w", err)
	}

	out := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		if !t.ExpiredAt(now) {
			out = append(out, t)
		}
	}
	return out, nil
}

// CompleteTask 调用 process_task_completion，随后读取新的积分余额
func (db *SupabaseDatabase) CompleteTask(taskID int64, memberID string, points int) (int, error) {
	if points < 0 {
		points = 0
	}
	_, rpcErr := db.makeRequest("POST", "/rpc/process_task_completion", map[string]interface{}{
		"p_post_id": taskID,
		"p_user_id": memberID,
		"p_points":  points,
	})
	if rpcErr != nil && !errors.Is(rpcErr, models.ErrDuplicateCompletion) {
		return 0, rpcErr
	}

	member, err := db.GetMemberByID(memberID)
	if err != nil {
		return 0, err
	}
	return member.Points, rpcErr
}

// ================= 社交媒体负责人 =================

// ListManagers 负责人分页列表（view_managers_with_stats）
func (db *SupabaseDatabase) ListManagers(page, limit int) ([]models.SocialMediaManager, int, error) {
	from, to := pageRange(page, limit)
	var managers []models.SocialMediaManager
	total, err := db.listWithCount("/view_managers_with_stats?select=*&order=created_at.desc", from, to, &managers)
	return managers, total, err
}

// ListActiveManagers 未隐藏的负责人
func (db *SupabaseDatabase) ListActiveManagers() ([]models.SocialMediaManager, error) {
	data, err := db.makeRequest("GET", "/view_managers_with_stats?select=*&is_hidden=eq.false&order=name.asc", nil)
	if err != nil {
		return nil, err
	}
	managers := make([]models.SocialMediaManager, 0)
	err = json.Unmarshal(data, &managers)
	return managers, err
}

// CreateManager 新建负责人
func (db *SupabaseDatabase) CreateManager(manager *models.SocialMediaManager) error {
	data, err := db.makeRequest("POST", "/social_media_managers", map[string]interface{}{
		"name":      manager.Name,
		"phone":     manager.Phone,
		"team_size": manager.TeamSize,
		"is_hidden": manager.IsHidden,
	})
	if err != nil {
		return err
	}
	created, err := decodeFirst[models.SocialMediaManager](data)
	if err != nil {
		return err
	}
	manager.ID, manager.CreatedAt = created.ID, created.CreatedAt
	return nil
}

// SetManagerHidden 隐藏或显示负责人
func (db *SupabaseDatabase) SetManagerHidden(id int64, hidden bool) error {
	return db.patchOne(fmt.Sprintf("/social_media_managers?id=eq.%d", id), map[string]bool{"is_hidden": hidden})
}

// ================= 活动 =================

// ListEvents 未删除的活动
func (db *SupabaseDatabase) ListEvents() ([]models.Event, error) {
	data, err := db.makeRequest("GET", "/events?select=*&is_delete=eq.false&order=created_at.desc", nil)
	if err != nil {
		return nil, err
	}
	events := make([]models.Event, 0)
	err = json.Unmarshal(data, &events)
	return events, err
}

// CreateEvent 新建活动
func (db *SupabaseDatabase) CreateEvent(event *models.Event) error {
	data, err := db.makeRequest("POST", "/events", map[string]interface{}{
		"name":          event.Name,
		"image_link":    event.ImageLink,
		"redirect_link": event.RedirectLink,
		"event_code":    event.EventCode,
	})
	if err != nil {
		return err
	}
	created, err := decodeFirst[models.Event](data)
	if err != nil {
		return err
	}
	event.ID, event.CreatedAt = created.ID, created.CreatedAt
	return nil
}

// SetEventDeleted 软删除或恢复活动
func (db *SupabaseDatabase) SetEventDeleted(id int64, deleted bool) error {
	return db.patchOne(fmt.Sprintf("/events?id=eq.%d", id), map[string]bool{"is_delete": deleted})
}

// ================= 商店、捐款与展示配置 =================

// ListProducts 商品列表
func (db *SupabaseDatabase) ListProducts() ([]models.Product, error) {
	data, err := db.makeRequest("GET", "/products?select=*&order=id.asc", nil)
	if err != nil {
		return nil, err
	}
	products := make([]models.Product, 0)
	err = json.Unmarshal(data, &products)
	return products, err
}

// GetSystemConf 全局配置
func (db *SupabaseDatabase) GetSystemConf() (*models.SystemConf, error) {
	data, err := db.makeRequest("GET", "/system_conf?select=*&limit=1", nil)
	if err != nil {
		return nil, err
	}
	conf, err := decodeFirst[models.SystemConf](data)
	if errors.Is(err, models.ErrNotFound) {
		return &models.SystemConf{}, nil
	}
	return conf, err
}

// GetLatestDonationQR 最新的捐款二维码
func (db *SupabaseDatabase) GetLatestDonationQR() (*models.DonationQR, error) {
	data, err := db.makeRequest("GET", "/qr_link?select=*&order=id.desc&limit=1", nil)
	if err != nil {
		return nil, err
	}
	return decodeFirst[models.DonationQR](data)
}

// GetStatistics 成员进度展示配置
func (db *SupabaseDatabase) GetStatistics() (*models.Statistics, error) {
	data, err := db.makeRequest("GET", "/statistics?select=*&limit=1", nil)
	if err != nil {
		return nil, err
	}
	stats, err := decodeFirst[models.Statistics](data)
	if errors.Is(err, models.ErrNotFound) {
		return &models.Statistics{}, nil
	}
	return stats, err
}

// patchOne PATCH 一行，未命中返回 ErrNotFound
func (db *SupabaseDatabase) patchOne(endpoint string, patch interface{}) error {
	data, err := db.makeRequest("PATCH", endpoint, patch)
	if err != nil {
		return err
	}
	var rows []map[string]interface{}
	if json.Unmarshal(data, &rows) == nil && len(rows) == 0 {
		return models.ErrNotFound
	}
	return nil
}

// HealthCheck 健康检查
func (db *SupabaseDatabase) HealthCheck() error {
	_, err := db.makeRequest("GET", "/", nil)
	return err
}

// Close 关闭连接
func (db *SupabaseDatabase) Close() error {
	// HTTP客户端无需显式关闭
	return nil
}
