package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/approvhq/approv-backend/internal/config"
	"github.com/approvhq/approv-backend/internal/http/handlers"
	"github.com/approvhq/approv-backend/internal/http/middleware"
	"github.com/approvhq/approv-backend/internal/obs"
	"github.com/approvhq/approv-backend/internal/service"
)

// SetupRouter собирает все маршруты и цепочку middleware.
func SetupRouter(
	cfg *config.Config,
	authHandler *handlers.AuthHandler,
	approvalHandler *handlers.ApprovalHandler,
	clientHandler *handlers.ClientHandler,
	projectHandler *handlers.ProjectHandler,
	dashboardHandler *handlers.DashboardHandler,
	portalHandler *handlers.PortalHandler,
	webhookHandler *handlers.WebhookHandler,
	notificationHandler *handlers.NotificationHandler,
	uploadHandler *handlers.UploadHandler,
	integrationHandler *handlers.IntegrationHandler,
	auditHandler *handlers.AuditHandler,
	settingsHandler *handlers.SettingsHandler,
	seedHandler *handlers.SeedHandler,
	healthHandler *handlers.HealthHandler,
	wsHandler *handlers.WSHandler,
	tokenManager *service.TokenManager,
	rdb *redis.Client,
) *gin.Engine {
	production := cfg.Env == "production"
	if production {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(middleware.RequestLogger())
	r.Use(obs.Instrument())
	r.Use(middleware.ErrorHandler(production))

	r.GET("/health", healthHandler.Health)
	r.GET("/metrics", gin.WrapH(obs.Handler()))

	// Вебхуки провайдеров: без авторизации, подлинность по подписи.
	webhooks := r.Group("/webhooks")
	webhooks.Use(middleware.RateLimitMiddleware(rdb, "webhooks", 60, time.Minute))
	{
		webhooks.GET("/dropbox", webhookHandler.DropboxChallenge)
		webhooks.POST("/dropbox", webhookHandler.DropboxNotify)
		webhooks.POST("/monday", webhookHandler.MondayNotify)
	}

	// Клиентский портал: доступ по токену из ссылки, лимит строже
	// общего API.
	portal := r.Group("/portal")
	portal.Use(middleware.RateLimitMiddleware(rdb, "portal", cfg.PortalRateLimit, cfg.RateLimitPeriod))
	{
		portal.GET("/approvals/:token", portalHandler.View)
		portal.POST("/approvals/:token/approve", portalHandler.Approve)
		portal.POST("/approvals/:token/request-changes", portalHandler.RequestChanges)
		portal.GET("/me/:portalToken", portalHandler.ClientOverview)
	}

	api := r.Group("/api")
	api.Use(middleware.RateLimitMiddleware(rdb, "api", cfg.RateLimitLimit, cfg.RateLimitPeriod))

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware(rdb, "auth", 10, cfg.RateLimitPeriod))
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.POST("/logout", authHandler.Logout)
	}

	// WebSocket авторизуется токеном в query, OAuth-callback приходит
	// редиректом браузера, заголовка Authorization нет ни там, ни там.
	api.GET("/ws", wsHandler.Handle)
	api.GET("/integrations/:provider/callback", integrationHandler.Callback)

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokenManager))
	{
		protected.GET("/auth/me", authHandler.Me)

		protected.GET("/members", authHandler.ListMembers)

		protected.GET("/clients", clientHandler.List)
		protected.GET("/clients/:id", middleware.UUIDValidator("id"), clientHandler.Get)

		protected.GET("/projects", projectHandler.List)
		protected.GET("/projects/:id", middleware.UUIDValidator("id"), projectHandler.Get)

		protected.POST("/approvals", approvalHandler.Create)
		protected.GET("/approvals", approvalHandler.List)
		protected.GET("/approvals/:id", middleware.UUIDValidator("id"), approvalHandler.Get)
		protected.POST("/approvals/:id/send", middleware.UUIDValidator("id"), approvalHandler.Send)
		protected.POST("/approvals/:id/resubmit", middleware.UUIDValidator("id"), approvalHandler.Resubmit)
		protected.POST("/approvals/:id/remind", middleware.UUIDValidator("id"), approvalHandler.Remind)
		protected.POST("/approvals/:id/revoke", middleware.UUIDValidator("id"), approvalHandler.Revoke)
		protected.GET("/approvals/:id/report", middleware.UUIDValidator("id"), approvalHandler.Report)
		protected.POST("/approvals/:id/files", middleware.UUIDValidator("id"), uploadHandler.Upload)

		protected.GET("/files/:id/link", middleware.UUIDValidator("id"), uploadHandler.Link)
		protected.DELETE("/files/:id", middleware.UUIDValidator("id"), uploadHandler.Remove)

		protected.GET("/dashboard/stats", dashboardHandler.Stats)
		protected.GET("/dashboard/recent", dashboardHandler.Recent)
		protected.GET("/dashboard/expiring", dashboardHandler.ExpiringSoon)
		protected.GET("/dashboard/overdue", dashboardHandler.Overdue)
		protected.GET("/dashboard/activity", dashboardHandler.Activity)

		protected.GET("/notifications", notificationHandler.List)
		protected.GET("/notifications/unread-count", notificationHandler.CountUnread)
		protected.PUT("/notifications/:id/read", middleware.UUIDValidator("id"), notificationHandler.MarkAsRead)
		protected.PUT("/notifications/read-all", notificationHandler.MarkAllAsRead)

		protected.GET("/audit", auditHandler.List)

		protected.GET("/organization", settingsHandler.GetOrganization)
		protected.GET("/settings/email-templates", settingsHandler.ListEmailTemplates)

		protected.GET("/integrations", integrationHandler.List)
		protected.GET("/integrations/:provider/boards", integrationHandler.MondayBoards)
		protected.GET("/integrations/:provider/files", integrationHandler.DropboxFiles)
		protected.GET("/integrations/:provider/files/link", integrationHandler.DropboxFileLink)

		if seedHandler != nil && !production {
			protected.POST("/seed", seedHandler.Seed)
		}
	}

	// Управление справочниками, сотрудниками и настройками доступно
	// только owner и admin.
	manager := protected.Group("/")
	manager.Use(middleware.RequireManager())
	{
		manager.POST("/members", authHandler.AddMember)
		manager.PUT("/members/:id/role", middleware.UUIDValidator("id"), authHandler.ChangeMemberRole)
		manager.DELETE("/members/:id", middleware.UUIDValidator("id"), authHandler.RemoveMember)

		manager.POST("/clients", clientHandler.Create)
		manager.PUT("/clients/:id", middleware.UUIDValidator("id"), clientHandler.Update)
		manager.POST("/clients/:id/regenerate-token", middleware.UUIDValidator("id"), clientHandler.RegeneratePortalToken)
		manager.DELETE("/clients/:id", middleware.UUIDValidator("id"), clientHandler.Archive)

		manager.POST("/projects", projectHandler.Create)
		manager.PUT("/projects/:id", middleware.UUIDValidator("id"), projectHandler.Update)

		manager.PUT("/organization", settingsHandler.UpdateOrganization)
		manager.PUT("/settings/email-templates/:kind", settingsHandler.UpsertEmailTemplate)
		manager.DELETE("/settings/email-templates/:kind", settingsHandler.DeleteEmailTemplate)

		manager.POST("/integrations/:provider/connect", integrationHandler.Connect)
		manager.PUT("/integrations/:provider/config", integrationHandler.ConfigureMonday)
		manager.DELETE("/integrations/:provider", integrationHandler.Disconnect)
	}

	return r
}
