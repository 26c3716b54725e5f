package metrics

import (
	"context"
	"errors"
	"github.com/fzft/go-wcam/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"net/http"
	"time"
)

const namespace = "wcam"

// Metrics groups the server's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	connections    prometheus.Gauge
	accepted       prometheus.Counter
	closed         *prometheus.CounterVec
	rejected       prometheus.Counter
	frames         *prometheus.CounterVec
	bytesSent      prometheus.Counter
	published      prometheus.Counter
	publishedBytes prometheus.Histogram
	loopEvents     prometheus.Gauge
	poolPending    prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Number of live client connections",
		}),
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_accepted_total",
			Help:      "Total number of accepted connections",
		}),
		closed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_closed_total",
			Help:      "Total number of torn down connections by reason",
		}, []string{"reason"}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_capacity_rejections_total",
			Help:      "Total number of registrations rejected by the event loop capacity",
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Total number of dispatched frames by subsystem and status",
		}, []string{"subsystem", "status"}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sent_bytes_total",
			Help:      "Total number of bytes written to clients",
		}),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "video_frames_published_total",
			Help:      "Total number of frames published for transfer",
		}),
		publishedBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "video_frame_bytes",
			Help:      "Size of published JPEG frames",
			Buckets:   prometheus.ExponentialBuckets(4096, 2, 8),
		}),
		loopEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_loop_registered",
			Help:      "Number of events registered with the event loop",
		}),
		poolPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_pending_jobs",
			Help:      "Number of queued worker pool jobs",
		}),
	}

	m.Registry.MustRegister(
		m.connections, m.accepted, m.closed, m.rejected, m.frames, m.bytesSent,
		m.published, m.publishedBytes, m.loopEvents, m.poolPending,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) ConnAccepted() {
	if m == nil {
		return
	}
	m.accepted.Inc()
	m.connections.Inc()
}

// ConnClosed records a teardown; reason is one of "peer", "error", "idle", "shutdown".
func (m *Metrics) ConnClosed(reason string) {
	if m == nil {
		return
	}
	m.closed.WithLabelValues(reason).Inc()
	m.connections.Dec()
}

func (m *Metrics) CapacityRejected() {
	if m == nil {
		return
	}
	m.rejected.Inc()
}

func (m *Metrics) Frame(subsystem, status string) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(subsystem, status).Inc()
}

func (m *Metrics) Sent(n int) {
	if m == nil {
		return
	}
	m.bytesSent.Add(float64(n))
}

func (m *Metrics) Published(size int) {
	if m == nil {
		return
	}
	m.published.Inc()
	m.publishedBytes.Observe(float64(size))
}

func (m *Metrics) LoopEvents(n int) {
	if m == nil {
		return
	}
	m.loopEvents.Set(float64(n))
}

func (m *Metrics) PoolPending(n int) {
	if m == nil {
		return
	}
	m.poolPending.Set(float64(n))
}

// Serve exposes the registry on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Logger.Info("metrics listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
