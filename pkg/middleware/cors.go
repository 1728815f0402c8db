package middleware

import (
	"net/http"
	"strings"

	"xsch-membership-backend/pkg/config"

	"github.com/go-chi/cors"
)

// CORS 创建CORS中间件
func CORS(cfg *config.Config) func(http.Handler) http.Handler {
	corsOptions := cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Requested-With",
		},
		ExposedHeaders: []string{
			"Content-Disposition",
		},
		MaxAge: 300, // 5分钟
	}

	// 配置了具体来源时才允许携带凭据（管理端cookie）
	if len(cfg.AllowedOrigins) > 0 && !contains(cfg.AllowedOrigins, "*") {
		allowed := cfg.AllowedOrigins
		corsOptions.AllowedOrigins = nil
		corsOptions.AllowOriginFunc = func(r *http.Request, origin string) bool {
			return isOriginAllowed(origin, allowed)
		}
		corsOptions.AllowCredentials = true
	}

	return cors.Handler(corsOptions)
}

// isOriginAllowed 检查来源是否被允许，支持 "https://*.vercel.app" 形式的通配
func isOriginAllowed(origin string, allowedOrigins []string) bool {
	if origin == "" {
		return false
	}
	if contains(allowedOrigins, "*") || contains(allowedOrigins, origin) {
		return true
	}

	for _, allowed := range allowedOrigins {
		star := strings.Index(allowed, "*")
		if star < 0 {
			continue
		}
		prefix, suffix := allowed[:star], allowed[star+1:]
		if len(origin) >= len(prefix)+len(suffix) && strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, suffix) {
			return true
		}
	}
	return false
}

// contains 检查切片是否包含指定的字符串
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
