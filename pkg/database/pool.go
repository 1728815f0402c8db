package database

import (
	"sync"
	"time"

	"xsch-membership-backend/pkg/logging"

	"go.uber.org/zap"
)

// 连接过期与空闲阈值
const (
	poolMaxAge  = 30 * time.Minute
	poolMaxIdle = 10 * time.Minute
)

// DatabasePool 数据库连接池（进程内单例）
type DatabasePool struct {
	instance DatabaseInterface
	config   DatabaseConfig
	mu       sync.RWMutex
	lastUsed time.Time
}

// PoolStats 连接池状态，供 /health 展示
type PoolStats struct {
	Status      string `json:"status"`
	LastUsed    string `json:"last_used,omitempty"`
	Age         string `json:"age,omitempty"`
	UseLocalDB  bool   `json:"use_local_db"`
	HasPostgres bool   `json:"has_postgres"`
	HasSupabase bool   `json:"has_supabase"`
}

var (
	globalPool *DatabasePool
	poolMutex  sync.Mutex
)

// GetDatabase 获取数据库连接（单例模式 + 连接池）
func GetDatabase(config DatabaseConfig) DatabaseInterface {
	poolMutex.Lock()
	defer poolMutex.Unlock()

	log := logging.L()

	if globalPool == nil || shouldRecreateConnection(globalPool, config) {
		log.Debug("🔄 Creating new database connection pool")

		if globalPool != nil && globalPool.instance != nil {
			_ = globalPool.instance.Close()
		}

		globalPool = &DatabasePool{
			instance: NewDatabase(config),
			config:   config,
			lastUsed: time.Now(),
		}
		return globalPool.instance
	}

	globalPool.mu.Lock()
	globalPool.lastUsed = time.Now()
	globalPool.mu.Unlock()
	log.Debug("♻️ Reusing existing database connection")

	return globalPool.instance
}

// shouldRecreateConnection 判断是否需要重新创建连接
func shouldRecreateConnection(pool *DatabasePool, newConfig DatabaseConfig) bool {
	if pool == nil || pool.instance == nil {
		return true
	}

	log := logging.L()

	if pool.config != newConfig {
		log.Info("🔄 Database configuration changed, recreating connection")
		return true
	}

	pool.mu.RLock()
	expired := time.Since(pool.lastUsed) > poolMaxAge
	pool.mu.RUnlock()
	if expired {
		log.Info("⏰ Database connection expired, recreating")
		return true
	}

	if err := pool.instance.HealthCheck(); err != nil {
		log.Warn("❌ Database health check failed, recreating", zap.Error(err))
		return true
	}

	return false
}

// CleanupIdleConnections 清理空闲连接（可以在后台定期调用）
func CleanupIdleConnections() {
	poolMutex.Lock()
	defer poolMutex.Unlock()

	if globalPool == nil {
		return
	}

	globalPool.mu.RLock()
	idle := time.Since(globalPool.lastUsed) > poolMaxIdle
	globalPool.mu.RUnlock()

	if idle {
		logging.L().Info("🧹 Cleaning up idle database connection")
		if globalPool.instance != nil {
			_ = globalPool.instance.Close()
		}
		globalPool = nil
	}
}

// GetConnectionStats 获取连接池统计信息
func GetConnectionStats() PoolStats {
	poolMutex.Lock()
	defer poolMutex.Unlock()

	if globalPool == nil {
		return PoolStats{Status: "no_connection"}
	}

	globalPool.mu.RLock()
	lastUsed := globalPool.lastUsed
	globalPool.mu.RUnlock()

	return PoolStats{
		Status:      "connected",
		LastUsed:    lastUsed.Format(time.RFC3339),
		Age:         time.Since(lastUsed).String(),
		UseLocalDB:  globalPool.config.UseLocalDB,
		HasPostgres: globalPool.config.PostgresDSN != "",
		HasSupabase: globalPool.config.SupabaseURL != "",
	}
}
