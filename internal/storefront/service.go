// Package storefront は各画面のユースケースを提供する。
// 商品一覧・商品詳細・注文確定・注文履歴・管理画面の処理をまとめる。
package storefront

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/storefront/internal/metrics"
	"github.com/hitoshi/storefront/internal/repository"
)

// Sanitizer は管理者が入力したHTMLを安全な形に変換する。
type Sanitizer interface {
	Sanitize(rawHTML string) string
}

// Repositories はServiceが利用するリポジトリの集合。
type Repositories struct {
	Products   repository.ProductRepository
	Categories repository.CategoryRepository
	Orders     repository.OrderRepository
	Profiles   repository.ProfileRepository
	CartItems  repository.CartItemRepository
}

// Option はServiceの設定オプション。
type Option func(*Service)

// WithLogger はロガーを設定する。
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics はメトリクスコレクターを設定する。
func WithMetrics(m metrics.MetricsCollector) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service は画面ごとのユースケースを実装する。
type Service struct {
	products   repository.ProductRepository
	categories repository.CategoryRepository
	orders     repository.OrderRepository
	profiles   repository.ProfileRepository
	cartItems  repository.CartItemRepository
	sanitizer  Sanitizer

	logger  *slog.Logger
	metrics metrics.MetricsCollector
	now     func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repos Repositories, sanitizer Sanitizer, opts ...Option) *Service {
	s := &Service{
		products:   repos.Products,
		categories: repos.Categories,
		orders:     repos.Orders,
		profiles:   repos.Profiles,
		cartItems:  repos.CartItems,
		sanitizer:  sanitizer,
		logger:     slog.Default(),
		metrics:    metrics.Nop{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// isUUID はidがハイフン区切り36文字のUUIDかを返す。
func isUUID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
