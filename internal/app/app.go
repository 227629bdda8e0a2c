package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/matchday/internal/auth"
	"github.com/hitoshi/matchday/internal/calendar"
	"github.com/hitoshi/matchday/internal/config"
	"github.com/hitoshi/matchday/internal/database"
	"github.com/hitoshi/matchday/internal/favorite"
	"github.com/hitoshi/matchday/internal/football"
	"github.com/hitoshi/matchday/internal/handler"
	"github.com/hitoshi/matchday/internal/logger"
	"github.com/hitoshi/matchday/internal/metrics"
	"github.com/hitoshi/matchday/internal/middleware"
	"github.com/hitoshi/matchday/internal/repository"
	"github.com/hitoshi/matchday/internal/security"
	"github.com/hitoshi/matchday/internal/worker/cleanup"
)

// dbPingTimeout は起動時のDB疎通確認のタイムアウト。
const dbPingTimeout = 5 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
func Init(w io.Writer) (*config.Config, error) {
	// 設定読み込みのエラーもJSONで出力できるよう、先にINFOレベルで初期化する
	logger.SetupDefault(w, slog.LevelInfo)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "3000"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.Ping(context.Background(), db, dbPingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")
	return db, nil
}

// newMetrics はプロセス固有のレジストリとコレクターを生成する。
func newMetrics() (*metrics.Collector, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return metrics.NewCollector(reg), reg
}

// buildRouter は設定とDB接続から全依存関係をワイヤリングしたルーターを構築する。
func buildRouter(cfg *config.Config, db *sql.DB) (http.Handler, error) {
	collector, reg := newMetrics()

	// 1. リポジトリ
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	rateLimitRepo := repository.NewPostgresRateLimitRepo(db)
	favoriteRepo := repository.NewPostgresFavoriteTeamRepo(db)

	// 2. セキュリティ
	cipher, err := security.NewTokenCipher(cfg.EncryptionSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create token cipher: %w", err)
	}
	ssrfGuard := security.NewSSRFGuard()
	if err := ssrfGuard.ValidateURL(cfg.FootballAPIBaseURL); err != nil {
		return nil, fmt.Errorf("invalid FOOTBALL_API_BASE_URL: %w", err)
	}
	outboundClient := ssrfGuard.NewSafeClient(cfg.OutboundTimeout)

	// 3. 認証
	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	sessions := auth.NewSessionManager(sessionRepo, userRepo, time.Duration(cfg.SessionMaxAge)*time.Second)
	authService := auth.NewService(oauthProvider, auth.NewResolver(userRepo, cipher), sessions)

	// 4. 連携機能
	footballClient := football.NewClient(outboundClient, football.Config{
		BaseURL:        cfg.FootballAPIBaseURL,
		APIKey:         cfg.FootballAPIKey,
		RequestsPerSec: cfg.FootballAPIRate,
	}, collector, slog.Default())
	googleClient := calendar.NewGoogleClient(outboundClient, calendar.GoogleClientConfig{}, collector)
	calendarService := calendar.NewService(googleClient, cipher, security.NewTextSanitizer(), collector)

	// 5. ルーター
	limiter := middleware.NewSlidingWindowLimiter(rateLimitRepo, middleware.RateLimitConfig{
		Window:      cfg.RateLimitWindow,
		MaxRequests: cfg.RateLimitMaxRequests,
	}, collector)

	return handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		Metrics:           collector,
		MetricsHandler:    metrics.Handler(reg),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		TrustProxy:        cfg.TrustProxy,
		HSTS:              cfg.CookieSecure,
		RateLimiter:       limiter,
		PrincipalLoader:   sessions,
		AuthService:       authService,
		AuthConfig: handler.AuthHandlerConfig{
			FrontendURL:   cfg.FrontendURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},
		FavoriteService: favorite.NewService(favoriteRepo),
		FootballClient:  footballClient,
		CalendarService: calendarService,
		DB:              db,
	}), nil
}

// runServe はAPIサーバーモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	router, err := buildRouter(cfg, db)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server listen failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 保持期間を超えたレート制限記録と期限切れセッションをCLEANUP_INTERVALごとに削除する。
func runWorker(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	collector, _ := newMetrics()
	job := cleanup.NewJob(
		repository.NewPostgresSessionRepo(db),
		repository.NewPostgresRateLimitRepo(db),
		cfg.RateLimitRetention,
		collector,
		slog.Default(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	job.Start(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はdistroless環境でのDockerヘルスチェック用サブコマンド。
// /api/v1/health にHTTPリクエストを送り、200以外ならエラーを返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/api/v1/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
