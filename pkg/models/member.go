package models

import (
	"fmt"
	"time"
)

// MemberType 成员类型（驱动推荐名额模板与前端分支）
type MemberType int

const (
	MemberTypeGuest     MemberType = 0 // Invitado
	MemberTypeVolunteer MemberType = 1 // Voluntario
	MemberTypeMilitant  MemberType = 2 // Militante
	MemberTypeCouncilor MemberType = 3 // Concejal
	MemberTypeAssembly  MemberType = 4 // Asambleísta
)

// String 返回成员类型的显示名称
func (t MemberType) String() string {
	switch t {
	case MemberTypeGuest:
		return "Invitado"
	case MemberTypeVolunteer:
		return "Voluntario"
	case MemberTypeMilitant:
		return "Militante"
	case MemberTypeCouncilor:
		return "Concejal"
	case MemberTypeAssembly:
		return "Asambleísta"
	default:
		return fmt.Sprintf("MemberType(%d)", int(t))
	}
}

// SlotTemplate 推荐名额模板：前 Guests 个为游客名额，随后 Volunteers 个为下一级志愿者名额
type SlotTemplate struct {
	Guests     int
	Volunteers int
}

// Size 名额总数
func (t SlotTemplate) Size() int {
	return t.Guests + t.Volunteers
}

// SlotTemplate 返回该成员类型作为推荐人时的名额模板。未知类型按20个游客名额处理
func (t MemberType) SlotTemplate() SlotTemplate {
	switch t {
	case MemberTypeVolunteer:
		return SlotTemplate{Guests: 3, Volunteers: 2}
	case MemberTypeMilitant:
		return SlotTemplate{Guests: 10}
	default:
		return SlotTemplate{Guests: 20}
	}
}

// VerificationStatus 成员验证状态，数据库字段 is_verified
type VerificationStatus int

const (
	VerificationPending  VerificationStatus = 0
	VerificationInReview VerificationStatus = 1
	VerificationVerified VerificationStatus = 2
	VerificationRejected VerificationStatus = 3
)

func (s VerificationStatus) String() string {
	switch s {
	case VerificationPending:
		return "pending"
	case VerificationInReview:
		return "in_review"
	case VerificationVerified:
		return "verified"
	case VerificationRejected:
		return "rejected"
	default:
		return fmt.Sprintf("VerificationStatus(%d)", int(s))
	}
}

// SelfAssignable reports whether a registrant may start in this state.
// Verified and Rejected are set by an admin only.
func (s VerificationStatus) SelfAssignable() bool {
	return s == VerificationPending || s == VerificationInReview
}

// Member represents a row of the members table
type Member struct {
	ID           string             `json:"id" db:"id"`
	AuthID       string             `json:"auth_id,omitempty" db:"auth_id"`
	Name         string             `json:"name" db:"name"`
	Email        string             `json:"email,omitempty" db:"email"`
	Phone        string             `json:"phone" db:"phone"`
	IdentityCard string             `json:"identity_card" db:"identity_card"`
	BirthDate    *string            `json:"birth_date" db:"birth_date"` // YYYY-MM-DD
	Points       int                `json:"points" db:"points"`
	ReferrerID   *string            `json:"referrer_id" db:"referrer_id"`
	IsVerified   VerificationStatus `json:"is_verified" db:"is_verified"`
	Locality     string             `json:"locality,omitempty" db:"locality"`
	VotingPlace  string             `json:"voting_place,omitempty" db:"voting_place"`
	VotingTable  string             `json:"voting_table,omitempty" db:"voting_table"`
	ManagerPhone *string            `json:"manager_phone,omitempty" db:"manager_phone"`
	MemberType   MemberType         `json:"member_type" db:"member_type"`
	Tier         *int               `json:"tier" db:"tier"`
	SlotID       *int               `json:"id_slot" db:"id_slot"`
	FacebookLink *string            `json:"facebook_link,omitempty" db:"facebook_link"`
	TiktokLink   *string            `json:"tiktok_link,omitempty" db:"tiktok_link"`
	CreatedAt    time.Time          `json:"created_at" db:"created_at"`
}

// TierOrDefault 返回成员等级，未设置时按 1 计算
func (m Member) TierOrDefault() int {
	if m.Tier == nil || *m.Tier <= 0 {
		return 1
	}
	return *m.Tier
}

// RegistrationRequest is the body accepted by POST /api/add-user
type RegistrationRequest struct {
	Name         string             `json:"name"`
	Phone        string             `json:"phone"`
	IdentityCard string             `json:"identity_card"`
	BirthDate    *string            `json:"birth_date"`
	ReferrerID   *string            `json:"referrer_id"`
	IsVerified   VerificationStatus `json:"is_verified"`
	Locality     string             `json:"locality,omitempty"`
	VotingPlace  string             `json:"voting_place,omitempty"`
	VotingTable  string             `json:"voting_table,omitempty"`
	ManagerPhone *string            `json:"manager_phone,omitempty"`
	MemberType   MemberType         `json:"member_type"`
	Tier         *int               `json:"tier"`
	SlotID       *int               `json:"id_slot"`
	AccessCode   string             `json:"access_code,omitempty"`
}

// ToMember 把注册请求转换为成员记录（不含ID）。积分从 0 开始，访问码只进入认证账号
func (r RegistrationRequest) ToMember() *Member {
	return &Member{
		Name:         r.Name,
		Phone:        r.Phone,
		IdentityCard: r.IdentityCard,
		BirthDate:    r.BirthDate,
		ReferrerID:   r.ReferrerID,
		IsVerified:   r.IsVerified,
		Locality:     r.Locality,
		VotingPlace:  r.VotingPlace,
		VotingTable:  r.VotingTable,
		ManagerPhone: r.ManagerPhone,
		MemberType:   r.MemberType,
		Tier:         r.Tier,
		SlotID:       r.SlotID,
	}
}

// RegistrationResult is returned after a member is created
type RegistrationResult struct {
	Member *Member `json:"member"`
	Auth   struct {
		ID                string `json:"id"`
		Email             string `json:"email"`
		TemporaryPassword string `json:"temporary_password,omitempty"`
	} `json:"auth"`
}

// VerificationSubmission is the member-side verification form
type VerificationSubmission struct {
	IdentityCard string  `json:"identity_card"`
	BirthDate    string  `json:"birth_date"`
	FacebookLink *string `json:"facebook_link"`
	TiktokLink   *string `json:"tiktok_link"`
}

// MemberFilter 管理端成员列表筛选条件
type MemberFilter struct {
	Name         string
	Phone        string
	IdentityCard string
	Page         int
	Limit        int
}

// Range 返回分页区间 [from, to]
func (f MemberFilter) Range() (int, int) {
	p, l := NormalizePage(f.Page, f.Limit)
	from := (p - 1) * l
	return from, from + l - 1
}

// NormalizePage 规范化分页参数（默认第1页，每页10条）
func NormalizePage(page, limit int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}
	return page, limit
}

// PhoneEmail 由手机号派生登录邮箱
func PhoneEmail(phone, domain string) string {
	if domain == "" {
		domain = "app.com"
	}
	return phone + "@" + domain
}
