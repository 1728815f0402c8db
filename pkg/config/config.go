package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config 应用配置结构
type Config struct {
	// 环境配置
	Environment string
	Port        string

	// 数据库配置
	UseLocalDB   bool
	LocalDataDir string
	PostgresDSN  string
	SupabaseURL  string
	SupabaseKey  string

	// JWT配置（与托管认证服务共用同一密钥，便于校验其访问令牌）
	JWTSecret string

	// 会员端配置
	CountryCode      string // WhatsApp 链接使用的国家区号
	AppURL           string // 志愿者激活链接
	PhoneEmailDomain string // 手机号派生邮箱域名
	AttendanceWindow time.Duration

	// 管理端会话
	SessionCookieName string

	// CORS配置
	AllowedOrigins []string

	// 调试配置
	Debug bool
}

// LoadConfig 加载配置（支持本地和Vercel环境）
func LoadConfig() *Config {
	// 根据环境加载对应的 .env 文件
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development" // 默认开发环境
	}

	// 按优先级加载环境文件，已存在的环境变量不会被覆盖
	switch env {
	case "production":
		loadEnvFile(".env.production")
	default:
		loadEnvFile(".env.local")
	}

	config := &Config{
		// 默认值
		Environment:       getEnvWithDefault("ENVIRONMENT", "development"),
		Port:              getEnvWithDefault("PORT", "3001"),
		UseLocalDB:        getEnvBool("USE_LOCAL_DB", true),
		LocalDataDir:      getEnvWithDefault("LOCAL_DATA_DIR", ""),
		JWTSecret:         getEnvWithDefault("JWT_SECRET", "your-secret-key-change-in-production"),
		CountryCode:       getEnvWithDefault("COUNTRY_CODE", "591"),
		AppURL:            getEnvWithDefault("APP_URL", "https://pwa-xsch-client.vercel.app/"),
		PhoneEmailDomain:  getEnvWithDefault("PHONE_EMAIL_DOMAIN", "app.com"),
		AttendanceWindow:  getEnvDuration("ATTENDANCE_WINDOW", 30*time.Second),
		SessionCookieName: getEnvWithDefault("SESSION_COOKIE", "__session"),
		Debug:             getEnvBool("DEBUG", false),
	}

	// 数据库配置
	// Trim whitespace to avoid trailing spaces/newlines from env sources
	config.PostgresDSN = strings.TrimSpace(os.Getenv("POSTGRES_DSN"))
	config.SupabaseURL = strings.TrimSpace(os.Getenv("SUPABASE_URL"))
	config.SupabaseKey = strings.TrimSpace(os.Getenv("SUPABASE_SERVICE_ROLE_KEY"))
	if config.SupabaseKey == "" {
		config.SupabaseKey = strings.TrimSpace(os.Getenv("SUPABASE_SERVICE_KEY"))
	}
	if secret := strings.TrimSpace(os.Getenv("SUPABASE_JWT_SECRET")); secret != "" {
		config.JWTSecret = secret
	}

	// CORS配置
	allowedOrigins := getEnvWithDefault("ALLOWED_ORIGINS", "*")
	if allowedOrigins == "*" {
		config.AllowedOrigins = []string{"*"}
	} else {
		config.AllowedOrigins = strings.Split(allowedOrigins, ",")
	}

	// 配置了外部数据库时不使用本地存储
	if config.PostgresDSN != "" || (config.SupabaseURL != "" && config.SupabaseKey != "") {
		config.UseLocalDB = false
	}

	// 环境特定配置
	if config.Environment == "production" {
		if config.UseLocalDB {
			fmt.Println("⚠️  WARNING: Production environment using local database. Please configure POSTGRES_DSN or SUPABASE_URL+SUPABASE_SERVICE_ROLE_KEY")
		}
		// 生产环境关闭调试
		config.Debug = false
	}

	return config
}

// Cached config (initialized once per cold start)
var (
	cachedConfig *Config
	configOnce   sync.Once
)

// GetCached returns the process-wide cached Config.
// On serverless (Vercel), it initializes once per cold start and
// reuses it across warm invocations, avoiding per-request parsing.
func GetCached() *Config {
	configOnce.Do(func() {
		cachedConfig = LoadConfig()
	})
	return cachedConfig
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	if c.JWTSecret == "" || c.JWTSecret == "your-secret-key-change-in-production" {
		if c.Environment == "production" {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
	}

	if c.AttendanceWindow <= 0 {
		return fmt.Errorf("ATTENDANCE_WINDOW must be positive")
	}

	if c.UseLocalDB {
		// 本地存储，无需额外验证
	} else if c.PostgresDSN != "" {
		// PostgreSQL
	} else if c.SupabaseURL != "" && c.SupabaseKey != "" {
		// Supabase
	} else {
		return fmt.Errorf("数据库配置不完整：请配置 POSTGRES_DSN 或 SUPABASE_URL+SUPABASE_SERVICE_ROLE_KEY")
	}

	return nil
}

// IsProduction 检查是否为生产环境
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment 检查是否为开发环境
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// 辅助函数

// getEnvWithDefault 获取环境变量，如果不存在则使用默认值
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool 获取布尔类型的环境变量
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration 获取时间间隔类型的环境变量（如 "30s"）
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// loadEnvFile 加载 .env 文件到环境变量，文件不存在时静默返回
func loadEnvFile(filename string) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return
	}
	if err := godotenv.Load(filename); err != nil {
		fmt.Printf("⚠️  Failed to load %s: %v\n", filename, err)
	}
}
