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
// ミドルウェアやサービス層から利用する。
type MetricsCollector interface {
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordFeedRequest(algorithm string)
	RecordPostsServed(count int)
	RecordIngestEvents(kind string, count int)
	RecordIngestBatchFailure()
	RecordVisitor(result string)
	RecordAccountToken(purpose, result string)
	RecordAuthFailure(guard, reason string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpStatus      *prometheus.CounterVec
	requestLatency  prometheus.Histogram
	feedRequests    *prometheus.CounterVec
	postsServed     prometheus.Counter
	ingestEvents    *prometheus.CounterVec
	ingestBatchFail prometheus.Counter
	visitorRecords  *prometheus.CounterVec
	accountTokens   *prometheus.CounterVec
	authFailures    *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skygate_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "skygate_request_latency_seconds",
			Help:    "HTTPリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		feedRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skygate_feed_requests_total",
			Help: "アルゴリズム別のフィードスケルトン要求数",
		}, []string{"algorithm"}),
		postsServed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skygate_feed_posts_served_total",
			Help: "フィードスケルトンで返した投稿参照の合計数",
		}),
		ingestEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skygate_ingest_events_total",
			Help: "種別ごとの取り込みイベント数",
		}, []string{"kind"}),
		ingestBatchFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skygate_ingest_batches_failed_total",
			Help: "書き込みに失敗した取り込みバッチの合計数",
		}),
		visitorRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skygate_visitor_records_total",
			Help: "訪問記録の結果別件数",
		}, []string{"result"}),
		accountTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skygate_account_tokens_total",
			Help: "用途・結果別のアカウント操作トークン発行数",
		}, []string{"purpose", "result"}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skygate_auth_failures_total",
			Help: "ガード・理由別の認証失敗数",
		}, []string{"guard", "reason"}),
	}

	reg.MustRegister(
		c.httpStatus,
		c.requestLatency,
		c.feedRequests,
		c.postsServed,
		c.ingestEvents,
		c.ingestBatchFail,
		c.visitorRecords,
		c.accountTokens,
		c.authFailures,
	)

	return c
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストのレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordFeedRequest はフィード要求を記録する。
func (c *Collector) RecordFeedRequest(algorithm string) {
	c.feedRequests.WithLabelValues(algorithm).Inc()
}

// RecordPostsServed は返した投稿参照の数を記録する。
func (c *Collector) RecordPostsServed(count int) {
	c.postsServed.Add(float64(count))
}

// RecordIngestEvents は適用した取り込みイベント数を記録する。
func (c *Collector) RecordIngestEvents(kind string, count int) {
	c.ingestEvents.WithLabelValues(kind).Add(float64(count))
}

// RecordIngestBatchFailure は取り込みバッチの失敗を記録する。
func (c *Collector) RecordIngestBatchFailure() {
	c.ingestBatchFail.Inc()
}

// RecordVisitor は訪問記録の結果を記録する。
func (c *Collector) RecordVisitor(result string) {
	c.visitorRecords.WithLabelValues(result).Inc()
}

// RecordAccountToken はトークン発行の結果を記録する。
func (c *Collector) RecordAccountToken(purpose, result string) {
	c.accountTokens.WithLabelValues(purpose, result).Inc()
}

// RecordAuthFailure は認証失敗を記録する。
func (c *Collector) RecordAuthFailure(guard, reason string) {
	c.authFailures.WithLabelValues(guard, reason).Inc()
}

// Nop は何も記録しないMetricsCollector。
type Nop struct{}

func (Nop) RecordHTTPStatus(int)               {}
func (Nop) RecordRequestLatency(time.Duration) {}
func (Nop) RecordFeedRequest(string)           {}
func (Nop) RecordPostsServed(int)              {}
func (Nop) RecordIngestEvents(string, int)     {}
func (Nop) RecordIngestBatchFailure()          {}
func (Nop) RecordVisitor(string)               {}
func (Nop) RecordAccountToken(string, string)  {}
func (Nop) RecordAuthFailure(string, string)   {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
