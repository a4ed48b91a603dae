// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// セッション管理、ガード、ゲートウェイ、ワーカー、HTTP層から利用する。
type MetricsCollector interface {
	RecordAuthTransition(phase string)
	RecordGuardDecision(requirement, kind string)
	RecordGatewayError(op string)
	RecordTokenRefresh()
	RecordOrderPlaced(amount float64)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	SetActiveVisitors(count int)
	RecordTokensDeleted(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authTransitions *prometheus.CounterVec
	guardDecisions  *prometheus.CounterVec
	gatewayErrors   *prometheus.CounterVec
	tokenRefreshes  prometheus.Counter
	ordersPlaced    prometheus.Counter
	orderAmount     prometheus.Histogram
	httpStatus      *prometheus.CounterVec
	requestLatency  prometheus.Histogram
	activeVisitors  prometheus.Gauge
	tokensDeleted   prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_auth_transitions_total",
			Help: "認証状態の遷移数（遷移先フェーズ別）",
		}, []string{"phase"}),
		guardDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_guard_decisions_total",
			Help: "認可ガードの判定数",
		}, []string{"requirement", "kind"}),
		gatewayErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_gateway_errors_total",
			Help: "ゲートウェイ呼び出し失敗の合計数（操作別）",
		}, []string{"op"}),
		tokenRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_token_refreshes_total",
			Help: "アクセストークンのサイレントリフレッシュ回数",
		}),
		ordersPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_orders_placed_total",
			Help: "確定した注文の合計数",
		}),
		orderAmount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "storefront_order_amount",
			Help:    "注文合計金額の分布",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500},
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "storefront_request_latency_seconds",
			Help:    "HTTPリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		activeVisitors: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "storefront_active_visitors",
			Help: "メモリ上に保持している訪問者コンテキスト数",
		}),
		tokensDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_refresh_tokens_deleted_total",
			Help: "クリーンアップで削除したリフレッシュトークン数",
		}),
	}

	reg.MustRegister(
		c.authTransitions,
		c.guardDecisions,
		c.gatewayErrors,
		c.tokenRefreshes,
		c.ordersPlaced,
		c.orderAmount,
		c.httpStatus,
		c.requestLatency,
		c.activeVisitors,
		c.tokensDeleted,
	)

	return c
}

// RecordAuthTransition は認証状態の遷移を記録する。
func (c *Collector) RecordAuthTransition(phase string) {
	c.authTransitions.WithLabelValues(phase).Inc()
}

// RecordGuardDecision はガード判定を記録する。
func (c *Collector) RecordGuardDecision(requirement, kind string) {
	c.guardDecisions.WithLabelValues(requirement, kind).Inc()
}

// RecordGatewayError はゲートウェイ呼び出しの失敗を記録する。
func (c *Collector) RecordGatewayError(op string) {
	c.gatewayErrors.WithLabelValues(op).Inc()
}

// RecordTokenRefresh はトークンリフレッシュを記録する。
func (c *Collector) RecordTokenRefresh() {
	c.tokenRefreshes.Inc()
}

// RecordOrderPlaced は注文確定を記録する。
func (c *Collector) RecordOrderPlaced(amount float64) {
	c.ordersPlaced.Inc()
	c.orderAmount.Observe(amount)
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストのレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// SetActiveVisitors は保持中の訪問者数を設定する。
func (c *Collector) SetActiveVisitors(count int) {
	c.activeVisitors.Set(float64(count))
}

// RecordTokensDeleted はクリーンアップで削除したトークン数を記録する。
func (c *Collector) RecordTokensDeleted(count int64) {
	c.tokensDeleted.Add(float64(count))
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type Nop struct{}

func (Nop) RecordAuthTransition(string) {}
func (Nop) RecordGuardDecision(string, string) {}
func (Nop) RecordGatewayError(string) {}
func (Nop) RecordTokenRefresh() {}
func (Nop) RecordOrderPlaced(float64) {}
func (Nop) RecordHTTPStatus(int) {}
func (Nop) RecordRequestLatency(time.Duration) {}
func (Nop) SetActiveVisitors(int) {}
func (Nop) RecordTokensDeleted(int64) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
