package database

import (
	"time"

	"xsch-membership-backend/pkg/logging"
	"xsch-membership-backend/pkg/models"

	"go.uber.org/zap"
)

// DatabaseInterface 定义数据库访问接口
type DatabaseInterface interface {
	// 认证账号（成员ID与认证账号ID一致）
	CreateAuthUser(email, password string) (string, error)
	DeleteAuthUser(id string) error
	// AuthenticateMember 校验手机号派生邮箱与访问码，返回认证账号ID
	AuthenticateMember(email, accessCode string) (string, error)
	IsAdmin(userID string) (bool, error)

	// 成员管理
	CreateMember(member *models.Member) error
	GetMemberByID(id string) (*models.Member, error)
	GetMemberByPhone(phone string) (*models.Member, error)
	GetMemberByIdentityCard(identityCard string) (*models.Member, error)
	// UpdateMember performs a partial update using the provided patch map.
	// Allowed keys: "name","is_verified","identity_card","birth_date","facebook_link",
	// "tiktok_link","points","locality","voting_place","voting_table".
	UpdateMember(id string, patch map[string]interface{}) error
	DeleteMember(id string) error
	ListMembers(filter models.MemberFilter) ([]models.Member, int, error)
	// ListReferrals 返回推荐人名下的成员，按创建时间升序
	ListReferrals(referrerID string) ([]models.Member, error)
	CountMembers() (int, error)
	SlotTaken(referrerID string, slot int) (bool, error)

	// 任务（social_media_post）
	ListTasks(page, limit int) ([]models.Task, int, error)
	CreateTask(task *models.Task) error
	GetTask(id int64) (*models.Task, error)
	SetTaskHidden(id int64, hidden bool) error
	// ListAvailableTasks 返回成员可见、未过期且未完成的任务
	ListAvailableTasks(memberID string, now time.Time) ([]models.Task, error)
	// CompleteTask 记录完成并加分，返回新的积分余额。
	// 重复完成返回 models.ErrDuplicateCompletion，积分不变。
	CompleteTask(taskID int64, memberID string, points int) (int, error)

	// 社交媒体负责人
	ListManagers(page, limit int) ([]models.SocialMediaManager, int, error)
	ListActiveManagers() ([]models.SocialMediaManager, error)
	CreateManager(manager *models.SocialMediaManager) error
	SetManagerHidden(id int64, hidden bool) error

	// 活动
	ListEvents() ([]models.Event, error)
	CreateEvent(event *models.Event) error
	SetEventDeleted(id int64, deleted bool) error

	// 商店、捐款与展示配置
	ListProducts() ([]models.Product, error)
	GetSystemConf() (*models.SystemConf, error)
	GetLatestDonationQR() (*models.DonationQR, error)
	GetStatistics() (*models.Statistics, error)

	// 健康检查
	HealthCheck() error

	// 关闭连接
	Close() error
}

// 可写入 members 的补丁字段
var memberPatchColumns = map[string]bool{
	"name":          true,
	"is_verified":   true,
	"identity_card": true,
	"birth_date":    true,
	"facebook_link": true,
	"tiktok_link":   true,
	"points":        true,
	"locality":      true,
	"voting_place":  true,
	"voting_table":  true,
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	UseLocalDB   bool
	LocalDataDir string
	PostgresDSN  string
	SupabaseURL  string
	SupabaseKey  string
	Debug        bool
}

// NewDatabase 根据环境与配置选择数据库实现
func NewDatabase(config DatabaseConfig) DatabaseInterface {
	log := logging.L()

	if config.UseLocalDB {
		log.Info("💾 Using local database", zap.String("dir", config.LocalDataDir))
		return NewLocalDatabase(config.LocalDataDir)
	}

	if IsVercelEnvironment() {
		log.Info("🧭 Detected Vercel production environment")

		// Vercel 优先使用 Supabase（避免 IPv6）
		if config.SupabaseURL != "" && config.SupabaseKey != "" {
			log.Info("🚀 Using Supabase REST API (Vercel optimized)")
			return NewSupabaseDatabase(config.SupabaseURL, config.SupabaseKey)
		}

		// 次选 PostgreSQL
		if config.PostgresDSN != "" {
			log.Warn("🌐 Using PostgreSQL in Vercel (may have IPv6 issues)")
			return NewPostgresDatabase(config.PostgresDSN)
		}

		// 未配置受支持的数据库，直接失败
		panic("No valid database configured for Vercel environment. Please set SUPABASE_URL+SUPABASE_SERVICE_ROLE_KEY or POSTGRES_DSN")
	}

	// 非 Vercel 环境：PostgreSQL > Supabase
	if config.PostgresDSN != "" {
		log.Info("🗄️ Using PostgreSQL database")
		return NewPostgresDatabase(config.PostgresDSN)
	}

	if config.SupabaseURL != "" && config.SupabaseKey != "" {
		log.Info("🧰 Using Supabase REST API")
		return NewSupabaseDatabase(config.SupabaseURL, config.SupabaseKey)
	}

	panic("No valid database configuration found. Please configure POSTGRES_DSN or SUPABASE_URL+SUPABASE_SERVICE_ROLE_KEY")
}
