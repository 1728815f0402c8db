// Package client talks to the membership API on behalf of a signed-in member.
// It satisfies tasks.Catalog and referral.Registrar so the settlement
// controller and the slot allocator can run against a remote server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"xsch-membership-backend/pkg/logging"
	"xsch-membership-backend/pkg/models"
	"xsch-membership-backend/pkg/referral"
	"xsch-membership-backend/pkg/session"
	"xsch-membership-backend/pkg/tasks"
	"xsch-membership-backend/pkg/utils"

	"go.uber.org/zap"
)

const (
	refreshPath  = "/api/auth/refresh"
	maxBodyBytes = 4 << 20
)

var (
	_ tasks.Catalog      = (*Client)(nil)
	_ tasks.Settler      = (*Client)(nil)
	_ referral.Registrar = (*Client)(nil)
)

// envelope mirrors utils.APIResponse with the payload left undecoded
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *utils.APIError `json:"error"`
}

// Error is a failure response that does not map to a domain error.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api request failed with status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api request failed with status %d (%s): %s", e.Status, e.Code, e.Message)
}

// Client 成员端API客户端
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New 创建客户端，baseURL 形如 https://api.example.com
func New(baseURL string, opts ...Option) *Client {
	if !strings.HasPrefix(baseURL, "http") {
		baseURL = "https://" + baseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: logging.L().Named("client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetTokens installs a token pair, e.g. one restored from the session cache
func (c *Client) SetTokens(access, refresh string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken, c.refreshToken = access, refresh
}

func (c *Client) tokens() (string, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken, c.refreshToken
}

// Login 手机号 + 访问码登录，成功后保存令牌
func (c *Client) Login(ctx context.Context, phone, accessCode string) (*models.LoginResponse, error) {
	var resp models.LoginResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/login", models.LoginRequest{Phone: phone, AccessCode: accessCode}, &resp)
	if err != nil {
		return nil, err
	}
	c.SetTokens(resp.AccessToken, resp.RefreshToken)
	return &resp, nil
}

// SignIn logs in and replaces the cached session with the returned member.
func (c *Client) SignIn(ctx context.Context, sessions *session.Manager, phone, accessCode string) (*session.Session, error) {
	resp, err := c.Login(ctx, phone, accessCode)
	if err != nil {
		return nil, err
	}

	s := session.FromMember(resp.Member)
	s.AccessToken = resp.AccessToken
	s.RefreshToken = resp.RefreshToken
	if err := sessions.SignIn(s); err != nil {
		return nil, fmt.Errorf("failed to cache session: %w", err)
	}
	return s, nil
}

// Restore 从会话缓存恢复令牌
func (c *Client) Restore(sessions *session.Manager) (*session.Session, error) {
	s, err := sessions.Load()
	if err != nil {
		return nil, err
	}
	c.SetTokens(s.AccessToken, s.RefreshToken)
	return s, nil
}

// Refresh exchanges the refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context) error {
	_, refresh := c.tokens()
	if refresh == "" {
		return errors.New("no refresh token")
	}

	var resp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := c.send(ctx, http.MethodPost, refreshPath, models.RefreshTokenRequest{RefreshToken: refresh}, &resp, ""); err != nil {
		return err
	}
	c.SetTokens(resp.AccessToken, refresh)
	return nil
}

// Me 当前成员资料
func (c *Client) Me(ctx context.Context) (*models.Member, error) {
	var m models.Member
	if err := c.do(ctx, http.MethodGet, "/api/members/me", nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// SubmitVerification 提交身份验证资料
func (c *Client) SubmitVerification(ctx context.Context, sub models.VerificationSubmission) (*models.Member, error) {
	var m models.Member
	if err := c.do(ctx, http.MethodPost, "/api/members/me/verification", sub, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Register submits a directory registration through /api/add-user.
func (c *Client) Register(ctx context.Context, req *models.RegistrationRequest) (*models.RegistrationResult, error) {
	var res models.RegistrationResult
	if err := c.do(ctx, http.MethodPost, "/api/add-user", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Roster 当前成员的推荐名额表
func (c *Client) Roster(ctx context.Context) (*referral.Roster, error) {
	var r referral.Roster
	if err := c.do(ctx, http.MethodGet, "/api/referrals/slots", nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// RegisterSlot 在名额 index 登记新成员
func (c *Client) RegisterSlot(ctx context.Context, index int, form referral.RegistrationForm) (*referral.Outcome, error) {
	var out referral.Outcome
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/referrals/slots/%d", index), form, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AvailableTasks lists the signed-in member's open tasks. The member is
// taken from the access token.
func (c *Client) AvailableTasks(ctx context.Context, _ string) ([]models.Task, error) {
	var list []models.Task
	if err := c.do(ctx, http.MethodGet, "/api/tasks", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// SettleTask asks the server to settle taskID for the signed-in member and
// returns the reward it decided on.
func (c *Client) SettleTask(ctx context.Context, taskID int64, _ string) (*models.CompleteTaskResponse, error) {
	var res models.CompleteTaskResponse
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/tasks/%d/complete", taskID), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CompleteTask is SettleTask in tasks.Catalog form. The server decides the
// reward from the stored task, so points is informational only.
func (c *Client) CompleteTask(ctx context.Context, taskID int64, memberID string, points int) (int, error) {
	res, err := c.SettleTask(ctx, taskID, memberID)
	if err != nil {
		return 0, err
	}
	if res.Duplicate {
		return res.Balance, models.ErrDuplicateCompletion
	}
	if res.PointsAwarded != points {
		c.log.Debug("server reward differs from cached task",
			zap.Int64("task_id", taskID),
			zap.Int("expected", points),
			zap.Int("awarded", res.PointsAwarded),
		)
	}
	return res.Balance, nil
}

// do 发送请求；访问令牌失效时用刷新令牌重试一次
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	access, refresh := c.tokens()
	err := c.send(ctx, method, path, body, out, access)

	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized && refresh != "" {
		if rerr := c.Refresh(ctx); rerr != nil {
			c.log.Debug("token refresh failed", zap.Error(rerr))
			return err
		}
		access, _ = c.tokens()
		return c.send(ctx, method, path, body, out, access)
	}
	return err
}

func (c *Client) send(ctx context.Context, method, path string, body, out interface{}, token string) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		if resp.StatusCode >= 400 {
			return &Error{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.StatusCode >= 400 || !env.Success {
		return mapError(resp.StatusCode, env.Error)
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}

// mapError 把错误响应还原为领域错误
func mapError(status int, e *utils.APIError) error {
	if e == nil {
		return &Error{Status: status, Message: http.StatusText(status)}
	}

	switch e.Code {
	case utils.CodeDuplicatePhone:
		return models.ErrDuplicatePhone
	case utils.CodeDuplicateIdentityCard:
		return models.ErrDuplicateIdentityCard
	case utils.CodeSlotTaken:
		return models.ErrDuplicateSlot
	case utils.CodeInvalidCredentials:
		return models.ErrInvalidCredentials
	case utils.CodeTaskExpired:
		return models.ErrTaskExpired
	case utils.CodeValidation:
		return models.NewValidationError(e.Details, e.Message)
	}

	if status == http.StatusNotFound {
		return fmt.Errorf("%s: %w", e.Message, models.ErrNotFound)
	}
	return &Error{Status: status, Code: e.Code, Message: e.Message}
}
