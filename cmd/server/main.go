package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	"github.com/approvhq/approv-backend/internal/audit"
	"github.com/approvhq/approv-backend/internal/config"
	"github.com/approvhq/approv-backend/internal/db"
	"github.com/approvhq/approv-backend/internal/email"
	httpHandlers "github.com/approvhq/approv-backend/internal/http/handlers"
	httpRouter "github.com/approvhq/approv-backend/internal/http/router"
	"github.com/approvhq/approv-backend/internal/integrations/dropbox"
	"github.com/approvhq/approv-backend/internal/integrations/monday"
	"github.com/approvhq/approv-backend/internal/logger"
	"github.com/approvhq/approv-backend/internal/obs"
	"github.com/approvhq/approv-backend/internal/repository"
	"github.com/approvhq/approv-backend/internal/scheduler"
	"github.com/approvhq/approv-backend/internal/service"
	"github.com/approvhq/approv-backend/internal/storage"
	"github.com/approvhq/approv-backend/internal/ws"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	// Инициализация логгера
	logLevel := "info"
	if cfg.Env == "development" {
		logLevel = "debug"
		logger.Init(logLevel)
		logger.SetTextFormatter()
	} else {
		logger.Init(logLevel)
	}

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: ошибка миграций: %v", err)
	}

	// Redis опционален: без него rate limiter считает в памяти процесса,
	// а планировщик работает без аренды лидера.
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Printf("main: redis недоступен, продолжаем без него: %v", err)
		}
		cancel()
	}

	// Объектное хранилище файлов согласований.
	store, err := storage.New(ctx, storage.Config{
		Endpoint:    cfg.S3Endpoint,
		AccessKey:   cfg.S3AccessKey,
		SecretKey:   cfg.S3SecretKey,
		Bucket:      cfg.S3Bucket,
		UseSSL:      cfg.S3UseSSL,
		MaxUploadMB: cfg.MaxUploadMB,
	})
	if err != nil {
		log.Fatalf("main: не удалось подключить объектное хранилище: %v", err)
	}

	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.RefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	// Репозитории.
	userRepo := repository.NewUserRepository(dbConn)
	orgRepo := repository.NewOrganizationRepository(dbConn)
	clientRepo := repository.NewClientRepository(dbConn)
	projectRepo := repository.NewProjectRepository(dbConn)
	approvalRepo := repository.NewApprovalRepository(dbConn)
	fileRepo := repository.NewFileRepository(dbConn)
	reminderRepo := repository.NewReminderRepository(dbConn)
	notificationRepo := repository.NewNotificationRepository(dbConn)
	auditRepo := repository.NewAuditRepository(dbConn)
	templateRepo := repository.NewEmailTemplateRepository(dbConn)
	integrationRepo := repository.NewIntegrationRepository(dbConn)
	csrfRepo := repository.NewCsrfRepository(dbConn)

	auditor := audit.NewRecorder(auditRepo)

	// Почта: без ключа Resend письма уходят в лог.
	var sender email.Sender
	if cfg.ResendAPIKey != "" {
		sender = email.NewResendSender(cfg.ResendAPIKey, cfg.EmailFrom)
	} else {
		log.Printf("main: RESEND_API_KEY не задан, письма пишутся в лог")
		sender = email.NewLogSender()
	}
	renderer := email.NewRenderer(templateRepo)

	// Вебсокеты.
	hub := ws.NewHub(ctx)
	go hub.Run()

	// Сервисы.
	notificationService := service.NewNotificationService(notificationRepo, hub)
	cacheService := service.NewCacheService()
	csrfService := service.NewCsrfService(csrfRepo, cfg.CSRFTokenTTL)
	auditService := service.NewAuditService(auditRepo)
	authService := service.NewAuthService(userRepo, tokenManager, auditor)
	clientService := service.NewClientService(clientRepo, auditor)
	projectService := service.NewProjectService(projectRepo, clientRepo, auditor)
	organizationService := service.NewOrganizationService(orgRepo, templateRepo, auditor)
	dashboardService := service.NewDashboardService(approvalRepo, projectRepo, clientRepo, cacheService)
	uploadService := service.NewUploadService(approvalRepo, fileRepo, store, auditor)
	reportService := service.NewReportService(approvalRepo, orgRepo, auditService)
	seedService := service.NewSeedService(clientRepo, projectRepo, approvalRepo)

	// OAuth-конфигурации провайдеров: без ключей подключение недоступно,
	// остальное API интеграций продолжает работать.
	var mondayOAuth, dropboxOAuth *oauth2.Config
	if cfg.MondayClientID != "" && cfg.MondayClientSecret != "" {
		mondayOAuth = monday.OAuthConfig(cfg.MondayClientID, cfg.MondayClientSecret, cfg.MondayRedirectURL)
	}
	if cfg.DropboxAppKey != "" && cfg.DropboxAppSecret != "" {
		dropboxOAuth = dropbox.OAuthConfig(cfg.DropboxAppKey, cfg.DropboxAppSecret, cfg.DropboxRedirectURL)
	}
	integrationService := service.NewIntegrationService(integrationRepo, approvalRepo, auditor, mondayOAuth, dropboxOAuth, cfg.JWTSecret)

	approvalService := service.NewApprovalService(
		approvalRepo,
		projectRepo,
		orgRepo,
		reminderRepo,
		fileRepo,
		renderer,
		sender,
		auditor,
		integrationService,
		service.ApprovalServiceConfig{
			PortalBaseURL:     cfg.PortalBaseURL,
			DefaultExpiryDays: cfg.ApprovalExpiryDays,
			ReminderCooldown:  cfg.ReminderCooldown,
		},
	)
	portalService := service.NewPortalService(
		approvalRepo,
		clientRepo,
		projectRepo,
		fileRepo,
		store,
		userRepo,
		orgRepo,
		csrfService,
		renderer,
		sender,
		notificationService,
		auditor,
		integrationService,
	)
	reminderService := service.NewReminderService(
		approvalRepo,
		reminderRepo,
		orgRepo,
		renderer,
		sender,
		notificationService,
		auditor,
		cfg.ReminderMaxPerSweep,
		cfg.PortalBaseURL,
	)

	// Фоновые задачи: авто-напоминания и чистка истёкших CSRF-токенов
	// и сессий.
	var lease *scheduler.Lease
	if rdb != nil {
		lease = scheduler.NewLease(rdb, "approv:scheduler:lease", cfg.ReminderSweepEvery+time.Minute)
	}
	sched := scheduler.New(reminderService, csrfService, userRepo, lease, cfg.ReminderSweepEvery)
	go sched.Run(ctx)

	// HTTP хэндлеры.
	authHandler := httpHandlers.NewAuthHandler(authService)
	approvalHandler := httpHandlers.NewApprovalHandler(approvalService, reportService, cacheService)
	clientHandler := httpHandlers.NewClientHandler(clientService)
	projectHandler := httpHandlers.NewProjectHandler(projectService)
	dashboardHandler := httpHandlers.NewDashboardHandler(dashboardService, auditService)
	portalHandler := httpHandlers.NewPortalHandler(portalService, csrfService, cacheService, cfg.Env == "production")
	webhookHandler := httpHandlers.NewWebhookHandler(integrationRepo, notificationService, auditor, cfg.DropboxAppSecret, cfg.MondaySigningSecret)
	notificationHandler := httpHandlers.NewNotificationHandler(notificationService)
	uploadHandler := httpHandlers.NewUploadHandler(uploadService, cfg.MaxUploadMB)
	integrationHandler := httpHandlers.NewIntegrationHandler(integrationService, cfg.DashboardBaseURL)
	auditHandler := httpHandlers.NewAuditHandler(auditService)
	settingsHandler := httpHandlers.NewSettingsHandler(organizationService)
	seedHandler := httpHandlers.NewSeedHandler(seedService)
	healthHandler := httpHandlers.NewHealthHandler(dbConn, rdb)
	wsHandler := httpHandlers.NewWSHandler(hub, tokenManager)

	obs.Init()

	// Роутер.
	engine := httpRouter.SetupRouter(
		cfg,
		authHandler,
		approvalHandler,
		clientHandler,
		projectHandler,
		dashboardHandler,
		portalHandler,
		webhookHandler,
		notificationHandler,
		uploadHandler,
		integrationHandler,
		auditHandler,
		settingsHandler,
		seedHandler,
		healthHandler,
		wsHandler,
		tokenManager,
		rdb,
	)

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: engine,
	}

	// Завершаем сервер при получении сигнала.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: ошибка остановки http сервера: %v", err)
		}
	}()

	log.Printf("main: HTTP сервер запущен на порту %s", cfg.HTTPPort)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: ошибка закрытия базы: %v", err)
	}
}
