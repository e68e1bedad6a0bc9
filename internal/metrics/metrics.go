// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 認証処理の結果ラベル
const (
	ResultSuccess   = "success"
	ResultDuplicate = "duplicate"
	ResultRejected  = "rejected"
	ResultError     = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層とミドルウェアから利用する。
type MetricsCollector interface {
	RecordRegistration(result string)
	RecordLogin(result string)
	RecordTokenRejected()
	RecordTaskCreated(category string)
	RecordTaskUpdated()
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	registrations  *prometheus.CounterVec
	logins         *prometheus.CounterVec
	tokenRejected  prometheus.Counter
	tasksCreated   *prometheus.CounterVec
	tasksUpdated   prometheus.Counter
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskman_registrations_total",
			Help: "ユーザー登録の結果別合計数",
		}, []string{"result"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskman_logins_total",
			Help: "ログインの結果別合計数",
		}, []string{"result"}),
		tokenRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskman_token_rejected_total",
			Help: "検証に失敗したセッショントークンの合計数",
		}),
		tasksCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskman_tasks_created_total",
			Help: "カテゴリ別の作成タスク数",
		}, []string{"category"}),
		tasksUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskman_tasks_updated_total",
			Help: "更新されたタスクの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskman_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "taskman_request_latency_seconds",
			Help:    "HTTPリクエスト処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.registrations,
		c.logins,
		c.tokenRejected,
		c.tasksCreated,
		c.tasksUpdated,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// RecordRegistration はユーザー登録の結果を記録する。
func (c *Collector) RecordRegistration(result string) {
	c.registrations.WithLabelValues(result).Inc()
}

// RecordLogin はログインの結果を記録する。
func (c *Collector) RecordLogin(result string) {
	c.logins.WithLabelValues(result).Inc()
}

// RecordTokenRejected はトークン検証失敗を記録する。
func (c *Collector) RecordTokenRejected() {
	c.tokenRejected.Inc()
}

// RecordTaskCreated はタスク作成を記録する。
func (c *Collector) RecordTaskCreated(category string) {
	c.tasksCreated.WithLabelValues(category).Inc()
}

// RecordTaskUpdated はタスク更新を記録する。
func (c *Collector) RecordTaskUpdated() {
	c.tasksUpdated.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエスト処理のレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// NopCollector は何も記録しないMetricsCollector。
type NopCollector struct{}

func (NopCollector) RecordRegistration(string) {}
func (NopCollector) RecordLogin(string) {}
func (NopCollector) RecordTokenRejected() {}
func (NopCollector) RecordTaskCreated(string) {}
func (NopCollector) RecordTaskUpdated() {}
func (NopCollector) RecordHTTPStatus(int) {}
func (NopCollector) RecordRequestLatency(time.Duration) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
// 収集時のエラーはHTTP 500として返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{ErrorHandling: promhttp.HTTPErrorOnError})
}

// HTTPMiddleware はレスポンスのステータスコードとレイテンシを記録するミドルウェアを返す。
func HTTPMiddleware(c MetricsCollector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rec, r)

			c.RecordHTTPStatus(rec.statusCode)
			c.RecordRequestLatency(time.Since(start))
		})
	}
}

// statusRecorder はレスポンスのステータスコードを記録するResponseWriterラッパー。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}
