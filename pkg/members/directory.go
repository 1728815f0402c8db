// Package members is the member directory: registration, login,
// verification and the task catalog, on top of a DatabaseInterface.
package members

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"xsch-membership-backend/pkg/database"
	"xsch-membership-backend/pkg/logging"
	"xsch-membership-backend/pkg/models"
	"xsch-membership-backend/pkg/monitoring"
	"xsch-membership-backend/pkg/utils"

	"go.uber.org/zap"
)

// Directory 成员目录服务
type Directory struct {
	db          database.DatabaseInterface
	emailDomain string
	now         func() time.Time
	log         *zap.Logger
}

// Option configures a Directory
type Option func(*Directory)

// WithEmailDomain sets the domain of phone-derived login emails
func WithEmailDomain(domain string) Option {
	return func(d *Directory) { d.emailDomain = domain }
}

// WithClock overrides time.Now for deadline checks
func WithClock(now func() time.Time) Option {
	return func(d *Directory) { d.now = now }
}

// NewDirectory 创建成员目录服务
func NewDirectory(db database.DatabaseInterface, opts ...Option) *Directory {
	d := &Directory{
		db:          db,
		emailDomain: "app.com",
		now:         time.Now,
		log:         logging.L().Named("members"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// GetMember 按ID读取成员
func (d *Directory) GetMember(_ context.Context, id string) (*models.Member, error) {
	return d.db.GetMemberByID(id)
}

// ListReferrals 推荐人名下成员，按创建时间升序
func (d *Directory) ListReferrals(_ context.Context, referrerID string) ([]models.Member, error) {
	return d.db.ListReferrals(referrerID)
}

// Register creates the auth account and the member row for req. The phone
// and identity card must be unused and, for a referral, the slot must be
// free. If the member insert fails the auth account is removed again.
func (d *Directory) Register(_ context.Context, req *models.RegistrationRequest) (*models.RegistrationResult, error) {
	req.Phone = strings.TrimSpace(req.Phone)
	req.IdentityCard = strings.TrimSpace(req.IdentityCard)
	if req.Phone == "" {
		return nil, models.NewValidationError("phone", "El número de teléfono es obligatorio")
	}

	if err := d.ensureFree(req); err != nil {
		return nil, err
	}

	code := req.AccessCode
	if code == "" {
		var err error
		if code, err = utils.GenerateAccessCode(); err != nil {
			return nil, fmt.Errorf("failed to generate access code: %w", err)
		}
	}

	email := models.PhoneEmail(req.Phone, d.emailDomain)
	authID, err := d.db.CreateAuthUser(email, code)
	if err != nil {
		return nil, err
	}

	member := req.ToMember()
	member.ID = authID
	member.AuthID = authID
	member.Email = email

	if err := d.db.CreateMember(member); err != nil {
		d.log.Error("member insert failed, removing auth user",
			zap.String("auth_id", authID),
			zap.Error(err),
		)
		if derr := d.db.DeleteAuthUser(authID); derr != nil {
			d.log.Error("failed to remove orphaned auth user", zap.String("auth_id", authID), zap.Error(derr))
		}
		return nil, err
	}

	d.log.Info("member registered",
		zap.String("member_id", member.ID),
		zap.Stringer("member_type", member.MemberType),
	)

	result := &models.RegistrationResult{Member: member}
	result.Auth.ID = authID
	result.Auth.Email = email
	result.Auth.TemporaryPassword = code
	return result, nil
}

func (d *Directory) ensureFree(req *models.RegistrationRequest) error {
	if _, err := d.db.GetMemberByPhone(req.Phone); err == nil {
		return models.ErrDuplicatePhone
	} else if !errors.Is(err, models.ErrNotFound) {
		return err
	}

	if req.IdentityCard != "" {
		if _, err := d.db.GetMemberByIdentityCard(req.IdentityCard); err == nil {
			return models.ErrDuplicateIdentityCard
		} else if !errors.Is(err, models.ErrNotFound) {
			return err
		}
	}

	if req.ReferrerID != nil && req.SlotID != nil {
		taken, err := d.db.SlotTaken(*req.ReferrerID, *req.SlotID)
		if err != nil {
			return err
		}
		if taken {
			return models.ErrDuplicateSlot
		}
	}
	return nil
}

// Login checks phone and access code and returns the member.
func (d *Directory) Login(_ context.Context, phone, accessCode string) (*models.Member, error) {
	phone = utils.DigitsOnly(phone)
	accessCode = strings.TrimSpace(accessCode)
	if phone == "" || accessCode == "" {
		return nil, models.NewValidationError("phone", "Teléfono y código requeridos")
	}

	id, err := d.db.AuthenticateMember(models.PhoneEmail(phone, d.emailDomain), accessCode)
	if err != nil {
		return nil, err
	}

	member, err := d.db.GetMemberByID(id)
	if errors.Is(err, models.ErrNotFound) {
		// 有认证账号但没有成员记录
		return nil, models.ErrInvalidCredentials
	}
	return member, err
}

// SubmitVerification stores the member's identity data and moves the
// member to InReview. Only Pending and Rejected members may submit.
func (d *Directory) SubmitVerification(_ context.Context, memberID string, sub models.VerificationSubmission) (*models.Member, error) {
	sub.IdentityCard = strings.TrimSpace(sub.IdentityCard)
	sub.BirthDate = strings.TrimSpace(sub.BirthDate)
	if sub.IdentityCard == "" {
		return nil, models.NewValidationError("identity_card", "CI requerido")
	}
	if _, err := time.Parse("2006-01-02", sub.BirthDate); err != nil {
		return nil, models.NewValidationError("birth_date", "Fecha de nacimiento inválida")
	}

	member, err := d.db.GetMemberByID(memberID)
	if err != nil {
		return nil, err
	}
	switch member.IsVerified {
	case models.VerificationPending, models.VerificationRejected:
	default:
		return nil, models.NewValidationError("is_verified", "La verificación ya fue enviada")
	}

	if other, err := d.db.GetMemberByIdentityCard(sub.IdentityCard); err == nil && other.ID != memberID {
		return nil, models.ErrDuplicateIdentityCard
	} else if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	patch := map[string]interface{}{
		"identity_card": sub.IdentityCard,
		"birth_date":    sub.BirthDate,
		"facebook_link": emptyToNil(sub.FacebookLink),
		"tiktok_link":   emptyToNil(sub.TiktokLink),
		"is_verified":   models.VerificationInReview,
	}
	if err := d.db.UpdateMember(memberID, patch); err != nil {
		return nil, err
	}
	return d.db.GetMemberByID(memberID)
}

// Verify 管理员审核成员
func (d *Directory) Verify(_ context.Context, memberID, name string, status models.VerificationStatus) (*models.Member, error) {
	if status < models.VerificationPending || status > models.VerificationRejected {
		return nil, models.NewValidationError("is_verified", "Estado de verificación inválido")
	}
	patch := map[string]interface{}{"is_verified": status}
	if name = strings.TrimSpace(name); name != "" {
		patch["name"] = name
	}
	if err := d.db.UpdateMember(memberID, patch); err != nil {
		return nil, err
	}
	return d.db.GetMemberByID(memberID)
}

// Delete removes the member row and then its auth account.
func (d *Directory) Delete(_ context.Context, memberID string) error {
	if err := d.db.DeleteMember(memberID); err != nil {
		return err
	}
	if err := d.db.DeleteAuthUser(memberID); err != nil && !errors.Is(err, models.ErrNotFound) {
		return err
	}
	d.log.Info("member deleted", zap.String("member_id", memberID))
	return nil
}

// AvailableTasks lists the tasks memberID can still complete.
func (d *Directory) AvailableTasks(_ context.Context, memberID string) ([]models.Task, error) {
	return d.db.ListAvailableTasks(memberID, d.now())
}

// CompleteTask records a completion and returns the member's balance.
func (d *Directory) CompleteTask(_ context.Context, taskID int64, memberID string, points int) (int, error) {
	if points < 0 {
		points = 0
	}
	return d.db.CompleteTask(taskID, memberID, points)
}

// SettleTask completes taskID for memberID with the reward stored on the
// task. Hidden tasks and tasks out of the member's scope are not found. A
// repeated completion reports Duplicate and leaves the balance unchanged.
func (d *Directory) SettleTask(ctx context.Context, taskID int64, memberID string) (*models.CompleteTaskResponse, error) {
	task, err := d.db.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	member, err := d.db.GetMemberByID(memberID)
	if err != nil {
		return nil, err
	}
	if task.IsHidden || !task.VisibleTo(member.MemberType) {
		return nil, models.ErrNotFound
	}

	if task.ExpiredAt(d.now()) {
		monitoring.SettlementsTotal.WithLabelValues("expired").Inc()
		return nil, models.ErrTaskExpired
	}

	reward := task.Reward()
	balance, err := d.CompleteTask(ctx, taskID, memberID, reward)
	switch {
	case errors.Is(err, models.ErrDuplicateCompletion):
		monitoring.SettlementsTotal.WithLabelValues("duplicate").Inc()
		return &models.CompleteTaskResponse{TaskID: taskID, Duplicate: true, Balance: balance}, nil
	case err != nil:
		monitoring.SettlementsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	monitoring.SettlementsTotal.WithLabelValues("awarded").Inc()
	monitoring.PointsAwardedTotal.Add(float64(reward))
	d.log.Info("task settled",
		zap.Int64("task_id", taskID),
		zap.String("member_id", memberID),
		zap.Int("points", reward),
	)
	return &models.CompleteTaskResponse{TaskID: taskID, PointsAwarded: reward, Balance: balance}, nil
}

// Progress 成员进度：真实人数加上配置的偏移量
type Progress struct {
	Count      int `json:"count"`
	TargetGoal int `json:"target_goal"`
	Trending   int `json:"trending"`
}

// Progress returns the member count shown on the progress bar.
func (d *Directory) Progress(_ context.Context) (*Progress, error) {
	count, err := d.db.CountMembers()
	if err != nil {
		return nil, err
	}
	stats, err := d.db.GetStatistics()
	if errors.Is(err, models.ErrNotFound) {
		stats = &models.Statistics{}
	} else if err != nil {
		return nil, err
	}
	return &Progress{Count: count + stats.FakeMembersCount, TargetGoal: stats.TargetGoal, Trending: stats.Trending}, nil
}

func emptyToNil(s *string) interface{} {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return strings.TrimSpace(*s)
}
