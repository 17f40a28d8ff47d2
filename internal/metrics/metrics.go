package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"
)

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

type Metrics struct {
	registry *prometheus.Registry
	logger   *slog.Logger

	SentEmailsCounter   *prometheus.CounterVec
	BatchSizeHistogram  prometheus.Histogram
	BatchDuration       prometheus.Histogram
	InProgressRunsGauge prometheus.Gauge
	MemoryUsageGauge    *prometheus.GaugeVec
	CpuUsageGauge       *prometheus.GaugeVec
}

// New creates the collectors on a private registry, so several instances can coexist.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		logger:   slog.With("component", "metrics"),
		SentEmailsCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailer_emails_total",
				Help: "Total number of send attempts by outcome.",
			},
			[]string{"status"},
		),
		BatchSizeHistogram: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mailer_batch_size",
				Help:    "Number of recipients per dispatched batch.",
				Buckets: []float64{1, 5, 10, 25, 50, 100},
			},
		),
		BatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mailer_batch_duration_seconds",
				Help:    "Time until every send of a batch settled.",
				Buckets: prometheus.DefBuckets,
			},
		),
		InProgressRunsGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mailer_in_progress_runs",
				Help: "Number of bulk runs currently dispatching.",
			},
		),
		MemoryUsageGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mailer_memory_usage_bytes",
				Help: "Host memory usage.",
			},
			[]string{"type"},
		),
		CpuUsageGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mailer_cpu_usage_percent",
				Help: "CPU usage percentage.",
			},
			[]string{"cpu"},
		),
	}

	m.registry.MustRegister(
		m.SentEmailsCounter,
		m.BatchSizeHistogram,
		m.BatchDuration,
		m.InProgressRunsGauge,
		m.MemoryUsageGauge,
		m.CpuUsageGauge,
	)

	return m
}

func (m *Metrics) ObserveOutcome(success bool) {
	status := StatusFailed
	if success {
		status = StatusSent
	}
	m.SentEmailsCounter.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveBatch(size int, elapsed time.Duration) {
	m.BatchSizeHistogram.Observe(float64(size))
	m.BatchDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) RunStarted() {
	m.InProgressRunsGauge.Inc()
}

func (m *Metrics) RunFinished() {
	m.InProgressRunsGauge.Dec()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// CollectMemoryAndCpu samples host memory and per-CPU usage into the gauges.
func (m *Metrics) CollectMemoryAndCpu(ctx context.Context) error {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to read memory stats: %w", err)
	}
	m.MemoryUsageGauge.WithLabelValues("used").Set(float64(vm.Used))
	m.MemoryUsageGauge.WithLabelValues("available").Set(float64(vm.Available))
	m.MemoryUsageGauge.WithLabelValues("total").Set(float64(vm.Total))

	percents, err := cpu.PercentWithContext(ctx, 0, true)
	if err != nil {
		return fmt.Errorf("failed to read cpu stats: %w", err)
	}
	for i, percent := range percents {
		m.CpuUsageGauge.WithLabelValues(strconv.Itoa(i)).Set(percent)
	}

	return nil
}

// Collect samples system usage every interval until ctx is done.
func (m *Metrics) Collect(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := m.CollectMemoryAndCpu(ctx); err != nil && ctx.Err() == nil {
			m.logger.Warn(fmt.Sprintf("failed to collect system metrics, error: %s", err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
