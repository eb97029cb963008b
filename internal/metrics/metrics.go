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
// プレゼンス・エンゲージメントのサービス層から利用する。
type MetricsCollector interface {
	// RecordStoreOp はストア操作の結果を記録する。kindは model.FailureKind の値。
	RecordStoreOp(op, kind string, duration time.Duration)
	RecordSessionStarted()
	RecordHeartbeatFailure(kind string)
	SetOnlineUsers(n int)
	RecordEngagementChange(action string)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	storeOps          *prometheus.CounterVec
	storeLatency      *prometheus.HistogramVec
	sessionsStarted   prometheus.Counter
	heartbeatFailures *prometheus.CounterVec
	onlineUsers       prometheus.Gauge
	engagement        *prometheus.CounterVec
	httpStatus        *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptoinsight_store_ops_total",
			Help: "操作・結果種別ごとのストア操作数",
		}, []string{"op", "kind"}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cryptoinsight_store_latency_seconds",
			Help:    "ストア操作のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptoinsight_sessions_started_total",
			Help: "開始されたプレゼンスセッションの合計数",
		}),
		heartbeatFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptoinsight_heartbeat_failures_total",
			Help: "失敗種別ごとのハートビート失敗数",
		}, []string{"kind"}),
		onlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cryptoinsight_online_users",
			Help: "直近のリフレッシュ時点でオンラインと判定されたユーザー数",
		}),
		engagement: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptoinsight_engagement_changes_total",
			Help: "状態が変化したエンゲージメント操作の数",
		}, []string{"action"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptoinsight_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.storeOps,
		c.storeLatency,
		c.sessionsStarted,
		c.heartbeatFailures,
		c.onlineUsers,
		c.engagement,
		c.httpStatus,
	)

	return c
}

// RecordStoreOp はストア操作の結果とレイテンシを記録する。
func (c *Collector) RecordStoreOp(op, kind string, duration time.Duration) {
	c.storeOps.WithLabelValues(op, kind).Inc()
	c.storeLatency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordSessionStarted はセッション開始を記録する。
func (c *Collector) RecordSessionStarted() {
	c.sessionsStarted.Inc()
}

// RecordHeartbeatFailure はハートビート失敗を記録する。
func (c *Collector) RecordHeartbeatFailure(kind string) {
	c.heartbeatFailures.WithLabelValues(kind).Inc()
}

// SetOnlineUsers はオンラインユーザー数を設定する。
func (c *Collector) SetOnlineUsers(n int) {
	c.onlineUsers.Set(float64(n))
}

// RecordEngagementChange はlike/unlike/bookmark/unbookmark/viewの状態変化を記録する。
func (c *Collector) RecordEngagementChange(action string) {
	c.engagement.WithLabelValues(action).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Noop は何も記録しないMetricsCollector。テストやCLIの単発コマンドで使用する。
type Noop struct{}

func (Noop) RecordStoreOp(string, string, time.Duration) {}
func (Noop) RecordSessionStarted()                       {}
func (Noop) RecordHeartbeatFailure(string)               {}
func (Noop) SetOnlineUsers(int)                          {}
func (Noop) RecordEngagementChange(string)               {}
func (Noop) RecordHTTPStatus(int)                        {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Noop{}
)
