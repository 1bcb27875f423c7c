package api

import (
	"os"

	"github.com/prometheus/client_golang/prometheus"
)

func metricLabels() prometheus.Labels {
	service := os.Getenv("SERVICE_NAME")
	if service == "" {
		service = "space-tab-api"
	}
	instance := os.Getenv("INSTANCE_ID")
	if instance == "" {
		instance, _ = os.Hostname()
	}
	return prometheus.Labels{"service": service, "instance": instance}
}

var reg = prometheus.WrapRegistererWith(metricLabels(), prometheus.DefaultRegisterer)

var (
	// RequestDuration 记录请求耗时
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// RequestTotal 记录请求总数
	RequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// loginAttemptsTotal 登录结果: success / bad_credentials / banned / rate_limited / error
	loginAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_login_attempts_total",
			Help: "Total number of login attempts by result",
		},
		[]string{"result"},
	)

	// sessionLookupsTotal 会话缓存命中情况: hit / miss / error
	sessionLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_session_lookups_total",
			Help: "Total number of session cache lookups by result",
		},
		[]string{"result"},
	)

	// mirrorFetchDurationSeconds 镜像请求耗时
	mirrorFetchDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_mirror_fetch_duration_seconds",
			Help:    "Latency of release mirror fetches in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
		},
		[]string{"result"},
	)

	// auditTransitionsTotal 审核操作计数
	auditTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_audit_transitions_total",
			Help: "Total number of audit status changes by target and status",
		},
		[]string{"target", "status"},
	)
)

func init() {
	reg.MustRegister(RequestDuration)
	reg.MustRegister(RequestTotal)
	reg.MustRegister(loginAttemptsTotal)
	reg.MustRegister(sessionLookupsTotal)
	reg.MustRegister(mirrorFetchDurationSeconds)
	reg.MustRegister(auditTransitionsTotal)
}
