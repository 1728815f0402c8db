// Package server assembles the chi router shared by the Vercel function and
// the standalone binary.
package server

import (
	"fmt"
	"net/http"
	"time"

	"xsch-membership-backend/pkg/config"
	"xsch-membership-backend/pkg/database"
	"xsch-membership-backend/pkg/handlers"
	customMiddleware "xsch-membership-backend/pkg/middleware"
	"xsch-membership-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 请求体上限
const maxBodyBytes = 1 << 20

// NewRouter 创建路由器并挂载全部中间件与路由
func NewRouter(cfg *config.Config, db database.DatabaseInterface) *chi.Mux {
	router := chi.NewRouter()
	setupMiddleware(router, cfg)
	setupRoutes(router, cfg, db)
	return router
}

// setupMiddleware 设置全局中间件
func setupMiddleware(router *chi.Mux, cfg *config.Config) {
	// 基础中间件
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	// Normalize path and restore scheme/host before logging and routing
	router.Use(customMiddleware.Normalize())
	router.Use(customMiddleware.RequestLogger())
	router.Use(customMiddleware.Recovery(cfg))

	// CORS中间件
	router.Use(customMiddleware.CORS(cfg))

	// 超时中间件（Vercel函数有时间限制）
	router.Use(middleware.Timeout(25 * time.Second)) // 留5秒缓冲

	// 压缩中间件
	router.Use(middleware.Compress(5))
	router.Use(customMiddleware.MaxBodySize(maxBodyBytes))

	// 开发环境额外中间件
	if cfg.IsDevelopment() {
		router.Use(middleware.Heartbeat("/ping"))
	}
}

// setupRoutes 设置所有API路由
func setupRoutes(router *chi.Mux, cfg *config.Config, db database.DatabaseInterface) {
	jwtSvc := utils.NewJWTService(cfg.JWTSecret)

	// 创建处理器
	authHandler := handlers.NewAuthHandler(cfg, db)
	memberHandler := handlers.NewMemberHandler(cfg, db)
	referralHandler := handlers.NewReferralHandler(cfg, db)
	taskHandler := handlers.NewTaskHandler(cfg, db)
	catalogHandler := handlers.NewCatalogHandler(cfg, db)
	shopHandler := handlers.NewShopHandler(cfg, db)
	attendanceHandler := handlers.NewAttendanceHandler(cfg, db)

	// 健康检查端点
	router.Get("/", authHandler.HealthCheck)
	router.Handle("/metrics", promhttp.Handler())

	// 管理端会话
	router.With(customMiddleware.ContentTypeJSON).Post("/sessionLogin", authHandler.SessionLogin)
	router.Get("/logout", authHandler.Logout)

	// 数据库连接池状态端点（调试用）
	if cfg.IsDevelopment() {
		router.Get("/debug/db-pool", func(w http.ResponseWriter, r *http.Request) {
			var stats map[string]interface{}

			if database.IsVercelEnvironment() {
				// Vercel环境显示优化器状态
				stats = map[string]interface{}{
					"connections":    database.GetVercelOptimizer().Size(),
					"optimizer_type": "vercel",
				}
			} else {
				// 非Vercel环境显示连接池状态
				stats = map[string]interface{}{
					"pool":           database.GetConnectionStats(),
					"optimizer_type": "standard",
				}
			}

			utils.WriteSuccessResponse(w, stats)
		})
	}

	// API路由组
	router.Route("/api", func(r chi.Router) {
		r.Use(customMiddleware.ContentTypeJSON)

		// 公开路由（不需要认证）
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.RefreshToken)
		})
		r.Post("/add-user", memberHandler.AddUser)
		r.Get("/get-referidos", memberHandler.GetReferidos)
		r.Get("/events", catalogHandler.ListEvents)
		r.Get("/stats/members", memberHandler.Stats)

		// 成员路由
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.AuthMiddleware(jwtSvc))

			r.Route("/members/me", func(r chi.Router) {
				r.Get("/", memberHandler.Me)
				r.Post("/verification", memberHandler.SubmitVerification)
			})

			r.Route("/referrals", func(r chi.Router) {
				r.Get("/", referralHandler.List)
				r.Get("/slots", referralHandler.Slots)
				r.Post("/slots/{slot}", referralHandler.Register)
			})

			r.Route("/tasks", func(r chi.Router) {
				r.Get("/", taskHandler.ListAvailable)
				r.Post("/{id}/complete", taskHandler.Complete)
			})

			r.Route("/shop", func(r chi.Router) {
				r.Get("/products", shopHandler.Products)
				r.Post("/order", shopHandler.Order)
			})
			r.Get("/donation", shopHandler.Donation)

			r.Route("/attendance", func(r chi.Router) {
				r.Get("/qr", attendanceHandler.QR)
				r.Get("/payload", attendanceHandler.Payload)
			})
		})

		// 管理端路由
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.AdminAuthMiddleware(jwtSvc, db, cfg.SessionCookieName))

			r.Get("/get-data", memberHandler.GetData)
			r.Get("/members/export", memberHandler.Export)
			r.Post("/delete-user", memberHandler.DeleteUser)
			r.Post("/verify-user", memberHandler.VerifyUser)

			r.Get("/posts", taskHandler.ListPosts)
			r.Post("/post-add", taskHandler.AddPost)
			r.Post("/post-update-hidden", taskHandler.SetPostHidden)

			r.Get("/managers", catalogHandler.ListManagers)
			r.Get("/managers-active", catalogHandler.ListActiveManagers)
			r.Post("/manager-add", catalogHandler.AddManager)
			r.Post("/manager-update-hidden", catalogHandler.SetManagerHidden)

			r.Post("/event-add", catalogHandler.AddEvent)
			r.Post("/event-delete", catalogHandler.DeleteEvent)
		})
	})

	// 404处理
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteNotFoundResponse(w, fmt.Sprintf("Route not found: %s %s", r.Method, r.URL.Path))
	})

	// 405处理
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteErrorResponseWithCode(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			fmt.Sprintf("Method %s not allowed for %s", r.Method, r.URL.Path), "")
	})
}
