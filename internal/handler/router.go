package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/matchday/internal/metrics"
	"github.com/hitoshi/matchday/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger  *slog.Logger
	Metrics metrics.MetricsCollector
	// MetricsHandler は/metricsで公開するハンドラー。nilの場合は公開しない。
	MetricsHandler http.Handler

	// ミドルウェア依存
	CORSAllowedOrigin string
	TrustProxy        bool
	HSTS              bool
	RateLimiter       *middleware.SlidingWindowLimiter
	PrincipalLoader   middleware.PrincipalLoader

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 連携機能
	FavoriteService FavoriteServiceInterface
	FootballClient  FootballClientInterface
	CalendarService CalendarServiceInterface

	// ヘルスチェック
	DB Pinger
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → RequestID → (RealIP) → Logging → SecurityHeaders → CORS → RateLimit → AuthGate
//
// ヘルスチェックと/metricsはレート制限の対象外とする。
// 未定義ルートへの404/405もレート制限の対象に含める。
// AuthGateは保護対象のルートグループのみに適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(chimw.RequestID)
	if deps.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	rateLimit := deps.RateLimiter.Middleware()
	r.NotFound(rateLimit(http.HandlerFunc(NotFound)).ServeHTTP)
	r.MethodNotAllowed(rateLimit(http.HandlerFunc(MethodNotAllowed)).ServeHTTP)

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig, deps.Metrics)
	favoriteHandler := NewFavoriteHandler(deps.FavoriteService)
	footballHandler := NewFootballHandler(deps.FootballClient)
	googleHandler := NewGoogleHandler(deps.CalendarService)
	healthHandler := NewHealthHandler(deps.DB)

	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.Health)

		r.Group(func(r chi.Router) {
			r.Use(rateLimit)

			// --- 認証不要のルート ---
			r.Route("/oauth", func(r chi.Router) {
				r.Get("/google", authHandler.Login)
				r.Get("/google/callback", authHandler.Callback)
				r.Get("/check-session", authHandler.CheckSession)
				r.Get("/logout", authHandler.Logout)
			})

			// --- 認証が必要なルート ---
			r.Group(func(r chi.Router) {
				r.Use(middleware.NewAuthGate(deps.PrincipalLoader))

				r.Route("/favorite-teams", func(r chi.Router) {
					r.Get("/", favoriteHandler.List)
					r.Post("/", favoriteHandler.Add)
					r.Delete("/", favoriteHandler.Remove)
				})

				r.Route("/football-api", func(r chi.Router) {
					r.Get("/fixtures", footballHandler.Fixtures)
					r.Get("/teams", footballHandler.SearchTeams)
					r.Get("/team/{teamId}", footballHandler.TeamByID)
				})

				r.Route("/google-api", func(r chi.Router) {
					r.Post("/calendar", googleHandler.AddEvent)
					r.Get("/profile", googleHandler.Profile)
					r.Post("/check-fixtures", googleHandler.CheckFixtures)
				})
			})
		})
	})

	return r
}
