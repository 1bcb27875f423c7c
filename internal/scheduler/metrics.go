package scheduler

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
	banSweepRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ban_sweep_runs_total",
			Help: "封禁到期清理执行次数",
		},
		[]string{"result"},
	)

	bansLiftedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bans_lifted_total",
			Help: "自动解除的到期封禁数",
		},
	)
)

func init() {
	reg.MustRegister(banSweepRunsTotal)
	reg.MustRegister(bansLiftedTotal)
}

func observeBanSweep(result string, lifted int64) {
	banSweepRunsTotal.WithLabelValues(result).Inc()
	if lifted > 0 {
		bansLiftedTotal.Add(float64(lifted))
	}
}
