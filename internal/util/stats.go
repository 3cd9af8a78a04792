package util

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Registry holds every salvo collector. It is separate from the prometheus
// default registry so tests and embedders get a clean namespace.
var Registry = prometheus.NewRegistry()

// Stats is the process-wide traffic/connection counter.
var Stats = newStats(Registry)

type stats struct {
	PacketsSent  *prometheus.CounterVec // by packet type
	PacketsRecv  *prometheus.CounterVec // by packet type
	BytesSent    prometheus.Counter     // bytes written to the peer
	BytesRecv    prometheus.Counter     // bytes read from the peer
	Conns        prometheus.Counter     // links that reached the connected state
	Closures     *prometheus.CounterVec // by kind: controlled / abrupt
	DecodeErrors prometheus.Counter     // malformed stream data
}

func newStats(reg prometheus.Registerer) *stats {
	factory := promauto.With(reg)

	return &stats{
		PacketsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salvo",
			Name:      "packets_sent_total",
			Help:      "Total number of packets written to the peer",
		}, []string{"type"}),

		PacketsRecv: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salvo",
			Name:      "packets_received_total",
			Help:      "Total number of packets decoded from the peer",
		}, []string{"type"}),

		BytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "salvo",
			Name:      "bytes_sent_total",
			Help:      "Total bytes written to the peer",
		}),

		BytesRecv: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "salvo",
			Name:      "bytes_received_total",
			Help:      "Total bytes read from the peer",
		}),

		Conns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "salvo",
			Name:      "connections_total",
			Help:      "Total number of links that reached the connected state",
		}),

		Closures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salvo",
			Name:      "closures_total",
			Help:      "Total number of closed links by closure kind",
		}, []string{"kind"}),

		DecodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "salvo",
			Name:      "decode_errors_total",
			Help:      "Total number of malformed packets or lost stream synchronizations",
		}),
	}
}

func (s *stats) AddConn()               { s.Conns.Inc() }
func (s *stats) AddClosure(kind string) { s.Closures.WithLabelValues(kind).Inc() }
func (s *stats) AddDecodeError()        { s.DecodeErrors.Inc() }

func (s *stats) AddSent(typ string, n int) {
	s.PacketsSent.WithLabelValues(typ).Inc()
	s.BytesSent.Add(float64(n))
}

func (s *stats) AddRecv(typ string) { s.PacketsRecv.WithLabelValues(typ).Inc() }
func (s *stats) AddRecvBytes(n int) { s.BytesRecv.Add(float64(n)) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs link statistics
// every interval. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var prevSent, prevRecv float64
		for {
			select {
			case <-ticker.C:
				sent := counterValue(Stats.BytesSent)
				recv := counterValue(Stats.BytesRecv)

				outS := (sent - prevSent) / interval.Seconds()
				inS := (recv - prevRecv) / interval.Seconds()

				if sent != prevSent || recv != prevRecv {
					pterm.DefaultLogger.Info(formatStats(inS, outS))
				}

				prevSent = sent
				prevRecv = recv

			case <-ctx.Done():
				return
			}
		}
	}()
}

// counterValue reads the current value of a counter through its protobuf
// representation.
func counterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil || m.Counter == nil {
		return 0
	}
	return m.Counter.GetValue()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current rates for display in the logger.
func formatStats(inS, outS float64) string {
	return fmt.Sprintf("In: %s/s | Out: %s/s", formatBytes(inS), formatBytes(outS))
}

// ──────────────────────────────────────────────────────────────────────────────
// Metrics endpoint
// ──────────────────────────────────────────────────────────────────────────────

// MetricsHandler returns a router exposing Registry at /metrics.
func MetricsHandler() http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))
	return r
}

// ServeMetrics serves MetricsHandler on addr until ctx is cancelled. It
// returns once the listener is bound; serving continues in the background.
func ServeMetrics(ctx context.Context, addr string) (net.Addr, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for metrics on %s: %w", addr, err)
	}

	srv := &http.Server{Handler: MetricsHandler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			LogError("metrics server stopped: %v", err)
		}
	}()

	return listener.Addr(), nil
}
