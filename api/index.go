package handler

import (
	"net/http"

	"xsch-membership-backend/pkg/config"
	"xsch-membership-backend/pkg/database"
	"xsch-membership-backend/pkg/logging"
	"xsch-membership-backend/pkg/server"
	"xsch-membership-backend/pkg/utils"
)

// Handler 是Vercel函数的入口点
// 所有API端点集中在一个Chi路由器中管理
func Handler(w http.ResponseWriter, r *http.Request) {
	// 加载配置
	cfg := config.GetCached()

	// 验证配置
	if err := cfg.Validate(); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Configuration error: "+err.Error())
		return
	}

	if err := logging.InitOnce(cfg.IsProduction()); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Logger error: "+err.Error())
		return
	}

	// 获取优化的数据库连接（自动适配Vercel环境）
	db := database.GetOptimizedDatabase(database.DatabaseConfig{
		UseLocalDB:   cfg.UseLocalDB,
		LocalDataDir: cfg.LocalDataDir,
		PostgresDSN:  cfg.PostgresDSN,
		SupabaseURL:  cfg.SupabaseURL,
		SupabaseKey:  cfg.SupabaseKey,
		Debug:        cfg.Debug,
	})
	// 注意：连接由优化器管理，无需手动关闭

	server.NewRouter(cfg, db).ServeHTTP(w, r)
}
