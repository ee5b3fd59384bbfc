// Package main runs the event collaboration HTTP server with WebSocket listeners and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eventdesk/backend/config"
	"github.com/eventdesk/backend/internal/access"
	"github.com/eventdesk/backend/internal/analytics"
	"github.com/eventdesk/backend/internal/apperr"
	"github.com/eventdesk/backend/internal/auth"
	"github.com/eventdesk/backend/internal/collaborators"
	"github.com/eventdesk/backend/internal/events"
	"github.com/eventdesk/backend/internal/guard"
	"github.com/eventdesk/backend/internal/metrics"
	"github.com/eventdesk/backend/internal/middleware"
	"github.com/eventdesk/backend/internal/models"
	"github.com/eventdesk/backend/internal/notifications"
	"github.com/eventdesk/backend/internal/organizations"
	"github.com/eventdesk/backend/internal/realtime"
	"github.com/eventdesk/backend/internal/threads"
	"github.com/eventdesk/backend/pkg/database"
	"github.com/eventdesk/backend/pkg/queue"
	"github.com/eventdesk/backend/pkg/redis"
	"github.com/eventdesk/backend/pkg/response"
	"github.com/eventdesk/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: time.Duration(cfg.Database.MaxConnLifetimeMin) * time.Minute,
	}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, redis.Options{
		Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB, PoolSize: cfg.Redis.PoolSize,
	}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// Attachments are optional; without a region the upload/download routes answer 503.
	var presigner threads.Presigner
	if cfg.AWS.Region != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			AttachmentsBucket:    cfg.AWS.AttachmentsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		} else {
			presigner = s3Client
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	sessions := auth.NewRedisSessionStore(rdb.Client)
	hub := realtime.NewHub(logger, realtime.NewRedisPubSub(rdb.Client, logger))
	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, sessions, logger)

	// Organizations
	orgRepo := organizations.NewRepository(pool)
	orgHandler := organizations.NewHandler(orgRepo)

	// Events and role resolution
	eventRepo := events.NewRepository(pool)
	collabRepo := collaborators.NewRepository(pool)
	evaluator := access.NewEvaluator(eventRepo, collabRepo, logger)
	authorizer := guard.NewAuthorizer(evaluator, orgRepo, logger)
	eventHandler := events.NewHandler(eventRepo, orgRepo, logger)

	// Collaborators and invites
	collabSvc := collaborators.NewService(collabRepo, eventRepo, authRepo, evaluator, jobQueue, collaborators.Config{
		BaseURL:   cfg.Server.BaseURL,
		InviteTTL: cfg.Invites.InviteTTL(),
	}, logger)
	collabHandler := collaborators.NewHandler(collabSvc)

	// Threads
	threadRepo := threads.NewRepository(pool)
	threadSvc := threads.NewService(threadRepo, evaluator, hub, hub, jobQueue, threads.Config{
		BlockResolvedReplies: cfg.Threads.BlockResolvedReplies,
	}, logger)
	threadHandler := threads.NewHandler(threadSvc, presigner, logger)

	// Notifications
	notificationRepo := notifications.NewRepository(pool)
	notificationHandler := notifications.NewHandler(notificationRepo, jobQueue, logger)
	inbox := notifications.NewInbox(hub, hub)

	analyticsHandler := analytics.NewHandler(collabRepo, threadRepo)

	authenticate := func(ctx context.Context, token string) (*auth.Principal, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return nil, apperr.ErrNotAuthenticated
		}
		live, err := sessions.Exists(ctx, claims.ID)
		if err != nil {
			return nil, apperr.Backend(err)
		}
		if !live {
			return nil, apperr.ErrNotAuthenticated
		}
		return auth.PrincipalFromClaims(claims), nil
	}
	listeners := realtime.Mux{"event": threadSvc, "thread": threadSvc, "user": inbox}

	router := gin.New()
	router.Use(gin.Recovery())
	origins := middleware.ParseOrigins(cfg.Server.CORSAllowedOrigins)
	router.Use(origins.Middleware())
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) {
		if err := pool.Ping(c.Request.Context()); err != nil || !rdb.Healthy(c.Request.Context()) {
			response.ServiceUnavailable(c, "dependencies unavailable")
			return
		}
		response.OK(c, gin.H{"status": "ok"})
	})
	if cfg.Metrics.Enabled {
		router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	view := guard.Requirement{EventPermissions: []access.EventPermission{access.EventView}}
	edit := guard.Requirement{EventPermissions: []access.EventPermission{access.EventEdit}}
	send := guard.Requirement{EventPermissions: []access.EventPermission{access.EventSendMessages}}
	manageCollaborators := guard.ManageCollaborators
	ownerOnly := guard.Requirement{Roles: []models.EventRole{models.EventOwner}}
	viewAnalytics := guard.Requirement{EventPermissions: []access.EventPermission{access.EventViewAnalytics}}

	// Protected API (JWT + live session required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService, sessions, logger))
	{
		api.POST("/auth/logout", authHandler.Logout)
		api.GET("/auth/me", authHandler.Me)

		// Users
		api.GET("/users", middleware.RequireRole(models.AccountAdmin), authHandler.List)
		api.GET("/users/lookup", authHandler.Lookup)

		// Organizations
		api.GET("/organizations", orgHandler.ListMyOrganizations)
		api.POST("/organizations", orgHandler.CreateOrganization)
		api.POST("/organizations/join", orgHandler.JoinOrganization)
		api.GET("/organizations/:id/members", orgHandler.ListMembers)

		// Events
		api.GET("/events", eventHandler.List)
		api.POST("/events", eventHandler.Create)
		api.GET("/events/:id", authorizer.RequireEvent(view), eventHandler.Get)
		api.PATCH("/events/:id", authorizer.RequireEvent(edit), eventHandler.Update)
		api.POST("/events/:id/status", authorizer.RequireEvent(edit), eventHandler.SetStatus)
		api.GET("/events/:id/capabilities", authorizer.Capabilities)
		api.GET("/events/:id/summary", authorizer.RequireEvent(viewAnalytics), analyticsHandler.GetSummary)

		// Collaborators and invites
		api.GET("/events/:id/collaborators", authorizer.RequireEvent(view), collabHandler.List)
		api.POST("/events/:id/collaborators", authorizer.RequireEvent(manageCollaborators), collabHandler.Add)
		api.DELETE("/events/:id/collaborators/:userId", authorizer.RequireEvent(manageCollaborators), collabHandler.Remove)
		api.PATCH("/events/:id/visibility", authorizer.RequireEvent(ownerOnly), collabHandler.UpdateVisibility)
		api.POST("/events/:id/invites", authorizer.RequireEvent(manageCollaborators), collabHandler.CreateInvite)
		api.POST("/invites/:token/redeem", collabHandler.Redeem)

		// Threads
		api.GET("/events/:id/threads", authorizer.RequireEvent(view), threadHandler.List)
		api.POST("/events/:id/threads", authorizer.RequireEvent(send), threadHandler.Create)
		api.GET("/threads/:id", threadHandler.Get)
		api.GET("/threads/:id/messages", threadHandler.Messages)
		api.POST("/threads/:id/messages", threadHandler.Send)
		api.POST("/threads/:id/resolve", threadHandler.Resolve)
		api.POST("/threads/:id/reopen", threadHandler.Reopen)
		api.POST("/threads/:id/read", threadHandler.MarkRead)
		api.POST("/threads/:id/attachments/upload-url", threadHandler.UploadURL)
		api.GET("/messages/:id/attachment", threadHandler.Attachment)

		// Notifications
		api.GET("/notifications", notificationHandler.ListMine)
		api.GET("/events/:id/notifications", authorizer.RequireEvent(manageCollaborators), notificationHandler.ListByEvent)
		api.POST("/events/:id/notifications/:logId/resend", authorizer.RequireEvent(manageCollaborators), notificationHandler.Resend)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(listeners, authenticate, origins.CheckOrigin, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
