package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/storefront/internal/guard"
	"github.com/hitoshi/storefront/internal/metrics"
	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/model"
)

// HealthChecker はヘルスチェックでDB疎通を確認するためのインターフェース。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	HealthChecker     HealthChecker
	Visitors          middleware.VisitorStore
	VisitorConfig     middleware.VisitorConfig
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter

	// Logger はリクエストログの出力先。nilならslog.Default()。
	Logger *slog.Logger

	// 認証ガード
	GuardWait time.Duration
	Metrics   metrics.MetricsCollector
	// MetricsHandler はnilでなければ /metrics に公開する。
	MetricsHandler http.Handler

	AuthConfig AuthHandlerConfig

	Catalog CatalogServiceInterface
	Orders  OrderServiceInterface
	Admin   AdminServiceInterface
	Users   UserServiceInterface
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → Metrics → Recovery → SecurityHeaders → CORS → RateLimit(General) → Visitor → Logging → CSRF
//
// /health と /metrics は訪問者を生成しないようチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	authConfig := deps.AuthConfig
	authConfig.CSRF = deps.CSRFConfig
	authHandler := NewAuthHandler(authConfig)
	shopHandler := NewShopHandler(deps.Catalog)
	checkoutHandler := NewCheckoutHandler(deps.Orders)
	userHandler := NewUserHandler(deps.Users)
	adminHandler := NewAdminHandler(deps.Admin)

	guardOpts := []guard.MiddlewareOption{guard.WithMetrics(deps.Metrics)}
	if deps.GuardWait > 0 {
		guardOpts = append(guardOpts, guard.WithWait(deps.GuardWait))
	}
	requireUser := guard.Middleware(guard.RequireUser(), VisitorSession, guardOpts...)
	requireAdmin := guard.Middleware(guard.RequireRole(model.RoleAdmin), VisitorSession, guardOpts...)

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewVisitorMiddleware(deps.Visitors, deps.VisitorConfig))
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

		// --- 公開ページ ---
		r.Get("/session", authHandler.Session)
		r.Get("/shop", shopHandler.Shop)
		r.Get("/product/{id}", shopHandler.Product)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", shopHandler.Cart)
			r.Delete("/", shopHandler.ClearCart)
			r.Post("/items", shopHandler.AddToCart)
			r.Put("/items/{productID}", shopHandler.UpdateCartItem)
			r.Delete("/items/{productID}", shopHandler.RemoveCartItem)
		})

		// ログイン・新規登録は専用のレート制限を追加
		r.With(deps.RateLimiter.LoginMiddleware()).Post("/login", authHandler.Login)
		r.With(deps.RateLimiter.LoginMiddleware()).Post("/signup", authHandler.Signup)
		r.Post("/logout", authHandler.Logout)

		// --- ログインが必要なページ ---
		r.Group(func(r chi.Router) {
			r.Use(requireUser)

			r.Get("/checkout", checkoutHandler.Checkout)
			r.Post("/checkout", checkoutHandler.PlaceOrder)
			r.Get("/order-success", checkoutHandler.OrderSuccess)
			r.Get("/orders", checkoutHandler.Orders)
			r.Get("/profile", userHandler.GetProfile)
			r.Put("/profile", userHandler.UpdateProfile)
		})

		// --- 管理者のみ ---
		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAdmin)

			r.Get("/", adminHandler.Dashboard)
			r.Get("/products", adminHandler.Products)
			r.Post("/products", adminHandler.AddProduct)
			r.Post("/categories", adminHandler.AddCategory)
			r.Get("/orders", adminHandler.Orders)
			r.Patch("/orders/{id}/status", adminHandler.UpdateOrderStatus)
			r.Get("/carts", adminHandler.LiveCarts)
		})
	})

	return r
}

// healthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
// GET /health
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
