// Package telemetry provides Prometheus metrics and OpenTelemetry tracing setup.
package telemetry

import (
	"time"

	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	MessagesDispatched   prometheus.Counter
	MessagesVetoed       prometheus.Counter
	CallbackPanics       prometheus.Counter
	Reconnects           prometheus.Counter
	Rejoins              prometheus.Counter
	BansIssued           prometheus.Counter
	MessagesSpoken       prometheus.Counter
	TokenRefreshes       prometheus.Counter
	TokenRefreshFailures prometheus.Counter

	// Histograms (seconds)
	PlaybackDuration prometheus.Observer

	// Gauges
	ActiveConnectionsGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		MessagesDispatched = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_messages_dispatched_total", Help: "Inbound chat messages delivered to subscribers"})
		MessagesVetoed = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_messages_vetoed_total", Help: "Inbound chat messages suppressed by an admin callback"})
		CallbackPanics = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_callback_panics_total", Help: "Subscriber callbacks that panicked during dispatch"})
		Reconnects = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_reconnects_total", Help: "Reconnect attempts triggered by the supervisor"})
		Rejoins = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_rejoins_total", Help: "Channel rejoins issued for connected-but-not-joined connections"})
		BansIssued = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_bans_issued_total", Help: "Ban commands sent by moderation"})
		MessagesSpoken = promauto.NewCounter(prometheus.CounterOpts{Name: "tts_messages_spoken_total", Help: "Chat messages rendered and played by TTS"})
		TokenRefreshes = promauto.NewCounter(prometheus.CounterOpts{Name: "token_refreshes_total", Help: "Successful API token refreshes"})
		TokenRefreshFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "token_refresh_failures_total", Help: "Failed API token refreshes"})
		PlaybackDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "tts_playback_duration_seconds", Help: "TTS playback duration seconds", Buckets: prometheus.DefBuckets})
		ActiveConnectionsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_active_connections", Help: "Current number of live chat connections"})
	})
}

// SetActiveConnections records the current registry size.
func SetActiveConnections(n int) {
	if ActiveConnectionsGauge != nil {
		ActiveConnectionsGauge.Set(float64(n))
	}
}

func IncDispatched() { inc(MessagesDispatched) }
func IncVetoed()     { inc(MessagesVetoed) }
func IncPanic()      { inc(CallbackPanics) }
func IncReconnect()  { inc(Reconnects) }
func IncRejoin()     { inc(Rejoins) }
func IncBan()        { inc(BansIssued) }

func IncTokenRefreshed()     { inc(TokenRefreshes) }
func IncTokenRefreshFailed() { inc(TokenRefreshFailures) }

// ObserveSpoken records one completed playback and its duration.
func ObserveSpoken(d time.Duration) {
	inc(MessagesSpoken)
	if PlaybackDuration != nil {
		PlaybackDuration.Observe(d.Seconds())
	}
}

func inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}
