package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// ProctorEventCounter 按事件类型与是否落库统计监考事件
	ProctorEventCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proctor_events_total",
			Help: "Classified proctor events by type and storage decision",
		},
		[]string{"event_type", "stored"},
	)

	// QuestionSourceCounter 统计题目来源（题库/AI生成/本地兜底）
	QuestionSourceCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interview_questions_total",
			Help: "Interview questions created by source",
		},
		[]string{"source"},
	)

	// LiveWatcherGauge 当前在线的 HR 监考观察连接数
	LiveWatcherGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "proctor_live_watchers",
			Help: "Currently connected live proctoring watchers",
		},
	)

	FrameAnalysisDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "proctor_frame_analysis_seconds",
			Help:    "Duration of proctor frame analysis",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(ProctorEventCounter)
	prometheus.MustRegister(QuestionSourceCounter)
	prometheus.MustRegister(LiveWatcherGauge)
	prometheus.MustRegister(FrameAnalysisDuration)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
