// Package metrics exposes Prometheus counters/gauges for the rollback engine
// plus a cheap in-process snapshot for hosts that don't scrape Prometheus.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/nullframe/rollback/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus series.
var (
	InputPacketsTx = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollback_input_packets_tx_total",
		Help: "Total Input messages sent to peers.",
	})
	InputPacketsRx = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollback_input_packets_rx_total",
		Help: "Total Input messages received from peers.",
	})
	KeepAlivesTx = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollback_keepalives_tx_total",
		Help: "Total KeepAlive messages sent.",
	})
	MalformedPackets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollback_malformed_packets_total",
		Help: "Total packets dropped due to bad magic, truncation, or stale sequence.",
	})
	RollbackFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollback_rewound_frames_total",
		Help: "Total frames re-simulated due to misprediction.",
	})
	RollbackDepthMax = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rollback_depth_max",
		Help: "Largest rollback depth observed in the most recent AdvanceFrame call.",
	})
	PredictionBarrierStalls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollback_prediction_barrier_stalls_total",
		Help: "Total AdvanceFrame calls that returned no requests due to the prediction barrier.",
	})
	DesyncsDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollback_desyncs_detected_total",
		Help: "Total checksum mismatches between local and remote confirmed state.",
	})
	PeersConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rollback_peers_connected",
		Help: "Current number of peers in the Running state.",
	})
	PeersDisconnected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollback_peers_disconnected_total",
		Help: "Total peer disconnects (timeout or explicit).",
	})
	SpectatorFanout = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rollback_spectator_fanout",
		Help: "Number of spectators targeted by the most recent broadcast.",
	})
	SpectatorQueueDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollback_spectator_queue_drops_total",
		Help: "Total frames dropped for spectators whose outbound queue was full.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rollback_build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollback_errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound series cardinality).
const (
	ErrDecode           = "decode"
	ErrHandshakeTimeout = "handshake_timeout"
	ErrSocketSend       = "socket_send"
	ErrCompression      = "compression_overflow"
)

// StartHTTP serves Prometheus metrics at /metrics and a readiness probe at
// /ready on addr.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for hosts that prefer periodic log lines over scraping.
var (
	localInputTx      uint64
	localInputRx      uint64
	localMalformed    uint64
	localRewound      uint64
	localBarrierStall uint64
	localDesyncs      uint64
	localDisconnects  uint64
	localErrors       uint64
)

// Snapshot is a cheap copy of the local counters.
type Snapshot struct {
	InputTx      uint64
	InputRx      uint64
	Malformed    uint64
	Rewound      uint64
	BarrierStall uint64
	Desyncs      uint64
	Disconnects  uint64
	Errors       uint64
}

func Snap() Snapshot {
	return Snapshot{
		InputTx:      atomic.LoadUint64(&localInputTx),
		InputRx:      atomic.LoadUint64(&localInputRx),
		Malformed:    atomic.LoadUint64(&localMalformed),
		Rewound:      atomic.LoadUint64(&localRewound),
		BarrierStall: atomic.LoadUint64(&localBarrierStall),
		Desyncs:      atomic.LoadUint64(&localDesyncs),
		Disconnects:  atomic.LoadUint64(&localDisconnects),
		Errors:       atomic.LoadUint64(&localErrors),
	}
}

func IncInputTx() { InputPacketsTx.Inc(); atomic.AddUint64(&localInputTx, 1) }
func IncInputRx() { InputPacketsRx.Inc(); atomic.AddUint64(&localInputRx, 1) }
func IncKeepAliveTx() { KeepAlivesTx.Inc() }

func IncMalformed() { MalformedPackets.Inc(); atomic.AddUint64(&localMalformed, 1) }

func AddRewoundFrames(n int) {
	RollbackFrames.Add(float64(n))
	atomic.AddUint64(&localRewound, uint64(n))
}

func SetRollbackDepth(n int) { RollbackDepthMax.Set(float64(n)) }

func IncPredictionBarrierStall() {
	PredictionBarrierStalls.Inc()
	atomic.AddUint64(&localBarrierStall, 1)
}

func IncDesync() { DesyncsDetected.Inc(); atomic.AddUint64(&localDesyncs, 1) }

func SetPeersConnected(n int) { PeersConnected.Set(float64(n)) }

func IncPeerDisconnected() {
	PeersDisconnected.Inc()
	atomic.AddUint64(&localDisconnects, 1)
}

func SetSpectatorFanout(n int) { SpectatorFanout.Set(float64(n)) }
func IncSpectatorQueueDrop()   { SpectatorQueueDrops.Inc() }

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// InitBuildInfo sets the build info gauge and pre-registers known error
// label series so the first real error doesn't pay registration latency.
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, lbl := range []string{ErrDecode, ErrHandshakeTimeout, ErrSocketSend, ErrCompression} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil {
		return true
	}
	return fn()
}

// Ready is a concise alias used at call sites.
func Ready() bool { return IsReady() }
