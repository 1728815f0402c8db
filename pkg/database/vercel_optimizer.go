package database

import (
	"fmt"
	"hash/fnv"
	"os"
	"sync"
	"time"

	"xsch-membership-backend/pkg/logging"

	"go.uber.org/zap"
)

// VercelOptimizer 无服务器环境下按配置复用连接
type VercelOptimizer struct {
	connections map[string]DatabaseInterface
	lastUsed    map[string]time.Time
	mu          sync.Mutex
}

var (
	vercelOptimizer *VercelOptimizer
	optimizerOnce   sync.Once
)

// GetVercelOptimizer 获取Vercel优化器单例
func GetVercelOptimizer() *VercelOptimizer {
	optimizerOnce.Do(func() {
		vercelOptimizer = newVercelOptimizer()
		go vercelOptimizer.backgroundCleanup(5 * time.Minute)
	})
	return vercelOptimizer
}

func newVercelOptimizer() *VercelOptimizer {
	return &VercelOptimizer{
		connections: make(map[string]DatabaseInterface),
		lastUsed:    make(map[string]time.Time),
	}
}

// GetOptimizedConnection 获取优化的数据库连接
func (vo *VercelOptimizer) GetOptimizedConnection(config DatabaseConfig) DatabaseInterface {
	return vo.connection(config, NewDatabase)
}

func (vo *VercelOptimizer) connection(config DatabaseConfig, open func(DatabaseConfig) DatabaseInterface) DatabaseInterface {
	key := configKey(config)
	log := logging.L().With(zap.String("key", key))

	vo.mu.Lock()
	defer vo.mu.Unlock()

	if conn, ok := vo.connections[key]; ok {
		if err := conn.HealthCheck(); err == nil {
			vo.lastUsed[key] = time.Now()
			log.Debug("♻️ Reusing optimized database connection")
			return conn
		} else {
			log.Warn("❌ Connection unhealthy, removing", zap.Error(err))
			_ = conn.Close()
			delete(vo.connections, key)
			delete(vo.lastUsed, key)
		}
	}

	log.Debug("🔄 Creating new optimized database connection")
	conn := open(config)
	vo.connections[key] = conn
	vo.lastUsed[key] = time.Now()
	return conn
}

// configKey 生成配置的短键（不暴露密钥原文）
func configKey(config DatabaseConfig) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%t|%s|%s|%s|%s", config.UseLocalDB, config.LocalDataDir, config.PostgresDSN, config.SupabaseURL, config.SupabaseKey)
	return fmt.Sprintf("%016x", h.Sum64())
}

// backgroundCleanup 后台清理过期连接
func (vo *VercelOptimizer) backgroundCleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for range ticker.C {
		vo.cleanupExpiredConnections(time.Now(), poolMaxIdle)
	}
}

// cleanupExpiredConnections 清理空闲超过 maxIdle 的连接，返回清理数量
func (vo *VercelOptimizer) cleanupExpiredConnections(now time.Time, maxIdle time.Duration) int {
	vo.mu.Lock()
	defer vo.mu.Unlock()

	cleaned := 0
	for key, lastUsed := range vo.lastUsed {
		if now.Sub(lastUsed) <= maxIdle {
			continue
		}
		if conn, ok := vo.connections[key]; ok {
			_ = conn.Close()
		}
		delete(vo.connections, key)
		delete(vo.lastUsed, key)
		cleaned++
	}

	if cleaned > 0 {
		logging.L().Info("🧹 Cleaned up expired connections", zap.Int("count", cleaned))
	}
	return cleaned
}

// Size 当前缓存的连接数
func (vo *VercelOptimizer) Size() int {
	vo.mu.Lock()
	defer vo.mu.Unlock()
	return len(vo.connections)
}

// GetOptimizedDatabase 全局函数，获取优化的数据库连接
func GetOptimizedDatabase(config DatabaseConfig) DatabaseInterface {
	if IsVercelEnvironment() {
		return GetVercelOptimizer().GetOptimizedConnection(config)
	}
	return GetDatabase(config)
}

// IsVercelEnvironment 检查是否在Vercel环境中
func IsVercelEnvironment() bool {
	return os.Getenv("VERCEL_ENV") != "" ||
		os.Getenv("VERCEL_URL") != "" ||
		os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}
