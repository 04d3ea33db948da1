// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/storybook-forge/internal/auth"
	"github.com/yourusername/storybook-forge/internal/config"
	"github.com/yourusername/storybook-forge/internal/jobs"
	"github.com/yourusername/storybook-forge/internal/pdf"
	"github.com/yourusername/storybook-forge/internal/storage"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := log.Default()

	gin.SetMode(cfg.GinMode)

	store, err := storage.NewLocal(cfg.WorkDir)
	if err != nil {
		log.Fatalf("Failed to prepare work dir: %v", err)
	}
	pdfService, err := pdf.NewService(cfg, store, pdf.Options{Logger: logger})
	if err != nil {
		log.Fatalf("Failed to initialise pdf service: %v", err)
	}
	rasterizer, grayTool := pdfService.Tools()
	logger.Printf("tools rasterizer=%q grayscale=%q", rasterizer, grayTool)

	// 非同期ジョブは Redis が設定されている場合のみ有効
	var manager *jobs.Manager
	if cfg.QueueRedisURL != "" {
		publisher, err := setupPublisher(cfg)
		if err != nil {
			log.Fatalf("Failed to initialise result publisher: %v", err)
		}
		manager, err = setupJobs(cfg, pdfService, publisher, logger)
		if err != nil {
			log.Fatalf("Failed to initialise job manager: %v", err)
		}
		manager.StartWorkers()
	}

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()
	router.MaxMultipartMemory = 32 << 20

	// セッションストアの設定（クッキー署名鍵は必須）
	sessionStore := cookie.NewStore([]byte(cfg.SessionSecret))
	sessionStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   auth.SessionMaxAgeSeconds(),
		HttpOnly: true,
		Secure:   cfg.GinMode == gin.ReleaseMode,
		SameSite: http.SameSiteStrictMode,
	})
	router.Use(sessions.Sessions(auth.SessionCookieName, sessionStore))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
		auth.CSRFHeader,
	}
	// ダウンロード時に縮退やジョブIDをフロントエンドから読めるように公開
	corsConfig.ExposeHeaders = []string{auth.CSRFHeader, pdf.DegradedHeader, "X-Job-Id", "Content-Disposition"}
	router.Use(cors.New(corsConfig))

	setupRoutes(router, cfg, pdfService, manager)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Printf("Starting API server on %s (mode: %s)", srv.Addr, cfg.GinMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Printf("server shutdown: %v", err)
	}
	if manager != nil {
		if err := manager.Shutdown(ctx); err != nil {
			logger.Printf("job manager shutdown: %v", err)
		}
	}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "storybook-forge-api",
		"version": "0.1.0",
	})
}

// setupRoutes は API グループと認証周りの配線を行います。
func setupRoutes(router *gin.Engine, cfg *config.Config, pdfService *pdf.Service, manager *jobs.Manager) {
	router.GET("/health", handleHealth)

	authManager := auth.NewManager(cfg)

	opts := pdf.HandlerOptions{
		AsyncThresholdBytes: cfg.AsyncThresholdBytes,
		AsyncThresholdPages: cfg.AsyncThresholdPages,
	}
	if manager != nil {
		opts.Scheduler = manager
	}

	api := router.Group("/api")
	{
		authRoutes := api.Group("/auth")
		{
			// ログイン時はセッション未生成なので CSRF 検証は不要
			authRoutes.POST("/login", authManager.Login)
			authRoutes.POST("/logout",
				authManager.RequireLogin(),
				authManager.VerifyCSRF(),
				authManager.Logout,
			)
			authRoutes.GET("/me", authManager.RequireLogin(), authManager.Me)
		}

		protected := api.Group("")
		protected.Use(authManager.RequireLogin(), authManager.VerifyCSRF())
		{
			books := protected.Group("/books")
			books.POST("/inspect", pdf.InspectHandler(pdfService))
			books.POST("/postprocess", pdf.PostprocessHandler(pdfService, opts))
			books.POST("/grayscale", pdf.GrayscaleHandler(pdfService, opts))
			books.POST("/qr", pdf.QRPageHandler(pdfService, opts))

			if manager != nil {
				protected.GET("/jobs/:id", jobStatusHandler(manager))
			}
			protected.GET("/jobs/:id/download", jobDownloadHandler(pdfService))
		}
	}
}
