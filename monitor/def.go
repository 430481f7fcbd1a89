package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"time"

	"FloorPlanServer/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

var (
	memUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "memory_usage_Megabytes",
		Help: "Memory usage in Megabytes",
	})
	cpuUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cpu_usage_percent",
		Help: "CPU usage in percent",
	})

	// RequestsTotal is labelled by transport (http, ws, grpc) and outcome.
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "floorplan_requests_total",
		Help: "Total number of analysis requests processed",
	}, []string{"transport", "status"})

	InferenceSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "floorplan_inference_seconds",
		Help:    "Time spent waiting for the detector gateway",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	DetectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "floorplan_detections_total",
		Help: "Detected elements by class",
	}, []string{"class"})
)

// NewRegistry returns a registry holding every metric of the service.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(memUsage, cpuUsage, RequestsTotal, InferenceSeconds, DetectionsTotal)
	return registry
}

func ObserveRequest(transport, status string) {
	RequestsTotal.WithLabelValues(transport, status).Inc()
}

func ObserveInference(d time.Duration) {
	InferenceSeconds.Observe(d.Seconds())
}

func ObserveDetection(class string) {
	DetectionsTotal.WithLabelValues(class).Inc()
}

func checkProcessInfo(p *process.Process) {
	memInfo, err := p.MemoryInfo()
	if err == nil {
		memUsage.Set(float64(memInfo.RSS / 1024 / 1024))
	}
	cpuPercent, err := p.CPUPercent()
	if err == nil {
		cpuUsage.Set(math.Round(cpuPercent*100) / 100)
	}
}

// StartMon serves /metrics on port and samples process stats until ctx is done.
func StartMon(ctx context.Context, port int) {
	p := &process.Process{Pid: int32(os.Getpid())}

	mux := http.NewServeMux()
	registry := NewRegistry()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log().Error("metrics server ListenAndServe error", zap.Error(err))
		}
	}()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
checkPcs:
	for {
		select {
		case <-ctx.Done():
			break checkPcs
		case <-ticker.C:
			checkProcessInfo(p)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log().Error("metrics server Shutdown error", zap.Error(err))
	}
}
