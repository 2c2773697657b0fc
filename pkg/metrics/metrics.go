// Package metrics 报名引擎的 Prometheus 指标
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 报名、取消、通知与定时任务指标
// 所有方法对 nil 接收者安全，未启用指标时可直接传 nil
type Metrics struct {
	Registrations   *prometheus.CounterVec
	Denials         *prometheus.CounterVec
	Cancellations   *prometheus.CounterVec
	Notifications   *prometheus.CounterVec
	RegisterLatency prometheus.Histogram
	JobDuration     *prometheus.HistogramVec
	JobRuns         *prometheus.CounterVec
}

// New 在给定注册器上注册全部指标
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Registrations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "immersion_registrations_total",
			Help: "Successful registrations by kind (individual, group)",
		}, []string{"kind"}),
		Denials: f.NewCounterVec(prometheus.CounterOpts{
			Name: "immersion_registration_denials_total",
			Help: "Registration engine denials by stable tag",
		}, []string{"tag"}),
		Cancellations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "immersion_cancellations_total",
			Help: "Cancellations by origin (user, manager, system)",
		}, []string{"origin"}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "immersion_notifications_total",
			Help: "Outbound messages by template and status",
		}, []string{"template", "status"}),
		RegisterLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "immersion_register_duration_seconds",
			Help:    "Duration of the registration critical path",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		JobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "immersion_job_duration_seconds",
			Help:    "Duration of scheduled commands",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"command"}),
		JobRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "immersion_job_runs_total",
			Help: "Scheduled command runs by outcome",
		}, []string{"command", "success"}),
	}
}

// IncRegistration 记录一次成功报名
func (m *Metrics) IncRegistration(kind string) {
	if m == nil {
		return
	}
	m.Registrations.WithLabelValues(kind).Inc()
}

// IncDenial 记录一次业务拒绝
func (m *Metrics) IncDenial(tag string) {
	if m == nil {
		return
	}
	m.Denials.WithLabelValues(tag).Inc()
}

// IncCancellation 记录一次取消
func (m *Metrics) IncCancellation(origin string) {
	if m == nil {
		return
	}
	m.Cancellations.WithLabelValues(origin).Inc()
}

// IncNotification 记录一条通知的投递结果
func (m *Metrics) IncNotification(template, status string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(template, status).Inc()
}

// ObserveRegister 记录报名关键路径耗时，传入开始时间
func (m *Metrics) ObserveRegister(start time.Time) {
	if m == nil {
		return
	}
	m.RegisterLatency.Observe(time.Since(start).Seconds())
}

// ObserveJob 记录定时命令耗时与结果
func (m *Metrics) ObserveJob(command string, start time.Time, success bool) {
	if m == nil {
		return
	}
	m.JobDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())
	s := "false"
	if success {
		s = "true"
	}
	m.JobRuns.WithLabelValues(command, s).Inc()
}
