package guard

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/storefront/internal/metrics"
	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/session"
)

// DefaultWait は初回ロードの完了を待つ最大時間。
const DefaultWait = 2 * time.Second

// retryAfterSeconds はロード中レスポンスのRetry-Afterヘッダ値。
const retryAfterSeconds = 1

// Waiter は状態が条件を満たすまで待機する。session.Managerが実装する。
type Waiter interface {
	WaitFor(ctx context.Context, pred func(session.State) bool) (session.State, error)
}

// Lookup はリクエストに対応する訪問者の認証状態を返す。訪問者がいなければnil。
type Lookup func(r *http.Request) Waiter

// MiddlewareOption はMiddlewareの設定オプション。
type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	wait    time.Duration
	metrics metrics.MetricsCollector
}

// WithWait は初回ロードを待つ最大時間を設定する。
func WithWait(d time.Duration) MiddlewareOption {
	return func(c *middlewareConfig) { c.wait = d }
}

// WithMetrics はメトリクスコレクターを設定する。
func WithMetrics(m metrics.MetricsCollector) MiddlewareOption {
	return func(c *middlewareConfig) { c.metrics = m }
}

// Middleware は判定結果に従ってリクエストを通過させるか遷移させるミドルウェアを返す。
// ロード中のまま待機時間を超えた場合は503とRetry-Afterを返し、
// リダイレクトの場合は303 See Otherを返す。
func Middleware(req Requirement, lookup Lookup, opts ...MiddlewareOption) func(next http.Handler) http.Handler {
	cfg := middlewareConfig{wait: DefaultWait, metrics: metrics.Nop{}}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path

			d := decideRequest(r, req, lookup, cfg.wait, path)
			cfg.metrics.RecordGuardDecision(req.String(), string(d.Kind))

			switch d.Kind {
			case KindRender:
				next.ServeHTTP(w, r)
			case KindRedirect:
				http.Redirect(w, r, d.Location, http.StatusSeeOther)
			default:
				middleware.WriteRetryAfter(w, model.NewSessionLoadingError(), retryAfterSeconds)
			}
		})
	}
}

func decideRequest(r *http.Request, req Requirement, lookup Lookup, wait time.Duration, path string) Decision {
	waiter := lookup(r)
	if waiter == nil {
		return Decision{Kind: KindRedirect, Location: LoginLocation(path)}
	}

	ctx, cancel := context.WithTimeout(r.Context(), wait)
	defer cancel()

	st, err := waiter.WaitFor(ctx, func(s session.State) bool {
		return Decide(s, req, path).Kind != KindLoading
	})
	if err != nil {
		slog.Debug("guard wait ended before session resolved",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
	return Decide(st, req, path)
}
