// Package visitor はブラウザ単位のアプリケーションコンテキストを管理する。
// 訪問者ごとにゲートウェイクライアント、認証状態マネージャー、カートを1つずつ保持する。
package visitor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/storefront/internal/cart"
	"github.com/hitoshi/storefront/internal/gateway"
	"github.com/hitoshi/storefront/internal/metrics"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/session"
)

// DefaultMaxVisitors は同時に保持する訪問者数の上限の既定値。
const DefaultMaxVisitors = 10000

// Visitor は1つのブラウザに対応するコンテキスト。
type Visitor struct {
	ID      string
	Gateway *gateway.Client
	Session *session.Manager
	Cart    *cart.Manager

	lastSeen   atomic.Int64
	navigation atomic.Value // string
}

// LastSeen は最終アクセス時刻を返す。
func (v *Visitor) LastSeen() time.Time {
	return time.Unix(0, v.lastSeen.Load())
}

func (v *Visitor) touch(now time.Time) {
	v.lastSeen.Store(now.UnixNano())
}

// Navigate は認証状態マネージャーが要求した遷移先を記録する。
// HTTPハンドラーがTakeNavigationで取り出してリダイレクトとして実行する。
func (v *Visitor) Navigate(path string) {
	v.navigation.Store(path)
}

// TakeNavigation は記録された遷移先を取り出して消去する。
func (v *Visitor) TakeNavigation() (string, bool) {
	p, _ := v.navigation.Swap("").(string)
	return p, p != ""
}

func (v *Visitor) teardown() {
	v.Session.Stop()
	v.Gateway.Close()
}

// Option はRegistryの設定オプション。
type Option func(*Registry)

// WithLogger はロガーを設定する。
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithMetrics はメトリクスコレクターを設定する。
func WithMetrics(m metrics.MetricsCollector) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithRefreshSkew はアクセストークンを先行リフレッシュする猶予を設定する。
func WithRefreshSkew(d time.Duration) Option {
	return func(r *Registry) { r.refreshSkew = d }
}

// WithMaxVisitors は保持する訪問者数の上限を設定する。
// 上限に達した場合は最終アクセスが最も古い訪問者を破棄する。
func WithMaxVisitors(n int) Option {
	return func(r *Registry) { r.maxVisitors = n }
}

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// Registry は訪問者を保持し、生成と破棄を管理する。
type Registry struct {
	auth     gateway.Authenticator
	profiles gateway.ProfileStore

	logger      *slog.Logger
	metrics     metrics.MetricsCollector
	refreshSkew time.Duration
	maxVisitors int
	now         func() time.Time

	mu       sync.Mutex
	visitors map[string]*Visitor
	closed   bool
}

// NewRegistry は新しいRegistryを生成する。
func NewRegistry(auth gateway.Authenticator, profiles gateway.ProfileStore, opts ...Option) *Registry {
	r := &Registry{
		auth:        auth,
		profiles:    profiles,
		logger:      slog.Default(),
		metrics:     metrics.Nop{},
		refreshSkew: time.Minute,
		maxVisitors: DefaultMaxVisitors,
		now:         time.Now,
		visitors:    make(map[string]*Visitor),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create は新しい訪問者を生成して認証状態の解決を開始する。
// refreshTokenが空でなければ、保存済みの資格情報から初期セッションを復元する。
// Closeの後に呼ばれた場合はnilを返す。
func (r *Registry) Create(refreshToken string) *Visitor {
	v := &Visitor{ID: uuid.NewString()}
	clientOpts := []gateway.Option{
		gateway.WithRefreshSkew(r.refreshSkew),
		gateway.WithLogger(r.logger),
		gateway.WithMetrics(r.metrics),
		gateway.WithClock(r.now),
	}
	if refreshToken != "" {
		// 有効期限をゼロ値にして初回の取得でリフレッシュさせる
		clientOpts = append(clientOpts, gateway.WithSession(&model.Session{RefreshToken: refreshToken}))
	}
	v.Gateway = gateway.NewClient(r.auth, r.profiles, clientOpts...)
	v.Session = session.NewManager(v.Gateway,
		session.WithLogger(r.logger.With(slog.String("visitor_id", v.ID))),
		session.WithMetrics(r.metrics),
		session.WithNavigator(v),
	)
	v.Cart = cart.NewManager()
	v.touch(r.now())

	var evicted *Visitor

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		v.Gateway.Close()
		return nil
	}
	if r.maxVisitors > 0 && len(r.visitors) >= r.maxVisitors {
		evicted = r.oldestLocked()
		if evicted != nil {
			delete(r.visitors, evicted.ID)
		}
	}
	r.visitors[v.ID] = v
	count := len(r.visitors)
	r.mu.Unlock()

	if evicted != nil {
		r.logger.Warn("visitor evicted at capacity", slog.String("visitor_id", evicted.ID))
		evicted.teardown()
	}

	v.Session.Start(context.Background())
	r.metrics.SetActiveVisitors(count)
	return v
}

// Get は訪問者を取得し、最終アクセス時刻を更新する。
func (r *Registry) Get(id string) (*Visitor, bool) {
	r.mu.Lock()
	v, ok := r.visitors[id]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	v.touch(r.now())
	return v, true
}

// Remove は訪問者を破棄する。存在しなければ何もしない。
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	v, ok := r.visitors[id]
	if ok {
		delete(r.visitors, id)
	}
	count := len(r.visitors)
	r.mu.Unlock()

	if ok {
		v.teardown()
		r.metrics.SetActiveVisitors(count)
	}
}

// Reap は最終アクセスからidle以上経過した訪問者を破棄し、その数を返す。
func (r *Registry) Reap(idle time.Duration) int {
	cutoff := r.now().Add(-idle)

	var stale []*Visitor
	r.mu.Lock()
	for id, v := range r.visitors {
		if v.LastSeen().Before(cutoff) {
			stale = append(stale, v)
			delete(r.visitors, id)
		}
	}
	count := len(r.visitors)
	r.mu.Unlock()

	for _, v := range stale {
		v.teardown()
	}
	if len(stale) > 0 {
		r.logger.Info("idle visitors reaped",
			slog.Int("reaped", len(stale)),
			slog.Int("remaining", count),
		)
	}
	r.metrics.SetActiveVisitors(count)
	return len(stale)
}

// Len は保持中の訪問者数を返す。
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.visitors)
}

// Run はinterval毎にReapを実行する。ctxが終了するまでブロックする。
func (r *Registry) Run(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Reap(idle)
		}
	}
}

// Close は全ての訪問者を破棄する。以降のCreateはnilを返す。
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	all := make([]*Visitor, 0, len(r.visitors))
	for _, v := range r.visitors {
		all = append(all, v)
	}
	r.visitors = make(map[string]*Visitor)
	r.mu.Unlock()

	for _, v := range all {
		v.teardown()
	}
	r.metrics.SetActiveVisitors(0)
}

func (r *Registry) oldestLocked() *Visitor {
	var oldest *Visitor
	for _, v := range r.visitors {
		if oldest == nil || v.lastSeen.Load() < oldest.lastSeen.Load() {
			oldest = v
		}
	}
	return oldest
}
