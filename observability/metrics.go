package observability

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"musicbattle/settlement"
)

// BattleBotMetrics is the collector bundle for the battle bot.
type BattleBotMetrics struct {
	events          *prometheus.CounterVec
	eventLatency    *prometheus.HistogramVec
	backendRequests *prometheus.CounterVec
	backendLatency  *prometheus.HistogramVec
	battles         *prometheus.CounterVec
	votes           *prometheus.CounterVec
	walletFlushes   *prometheus.CounterVec
	duplicates      prometheus.Counter
	throttles       *prometheus.CounterVec
	journalFailures prometheus.Counter
	deliveries      *prometheus.CounterVec
}

var (
	battleBotOnce     sync.Once
	battleBotRegistry *BattleBotMetrics
)

// BattleBot returns the lazily registered battle bot metrics.
func BattleBot() *BattleBotMetrics {
	battleBotOnce.Do(func() {
		battleBotRegistry = &BattleBotMetrics{
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "musicbattle",
				Subsystem: "bot",
				Name:      "events_total",
				Help:      "Inbound events segmented by kind and outcome.",
			}, []string{"kind", "outcome"}),
			eventLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "musicbattle",
				Subsystem: "bot",
				Name:      "event_duration_seconds",
				Help:      "Time spent handling an inbound event, including replies.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"kind"}),
			backendRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "musicbattle",
				Subsystem: "settlement",
				Name:      "requests_total",
				Help:      "Settlement backend calls segmented by operation and outcome.",
			}, []string{"op", "outcome"}),
			backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "musicbattle",
				Subsystem: "settlement",
				Name:      "request_duration_seconds",
				Help:      "Latency of settlement backend calls.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"op"}),
			battles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "musicbattle",
				Subsystem: "battle",
				Name:      "attempts_total",
				Help:      "Battle creation attempts by final stage and the stage reached before failing.",
			}, []string{"outcome", "failed_at"}),
			votes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "musicbattle",
				Subsystem: "battle",
				Name:      "votes_total",
				Help:      "Classified vote submissions.",
			}, []string{"status"}),
			walletFlushes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "musicbattle",
				Subsystem: "wallet",
				Name:      "flushes_total",
				Help:      "Wallet registry persistence attempts by outcome.",
			}, []string{"outcome"}),
			duplicates: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "musicbattle",
				Subsystem: "bot",
				Name:      "duplicate_deliveries_total",
				Help:      "Inbound deliveries dropped as duplicates.",
			}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "musicbattle",
				Subsystem: "bot",
				Name:      "throttles_total",
				Help:      "Inbound events rejected by throttling.",
			}, []string{"reason"}),
			journalFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "musicbattle",
				Subsystem: "journal",
				Name:      "write_failures_total",
				Help:      "Journal entries that could not be recorded.",
			}),
			deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "musicbattle",
				Subsystem: "bot",
				Name:      "outbound_messages_total",
				Help:      "Outbound messages by delivery outcome.",
			}, []string{"outcome"}),
		}
		prometheus.MustRegister(
			battleBotRegistry.events,
			battleBotRegistry.eventLatency,
			battleBotRegistry.backendRequests,
			battleBotRegistry.backendLatency,
			battleBotRegistry.battles,
			battleBotRegistry.votes,
			battleBotRegistry.walletFlushes,
			battleBotRegistry.duplicates,
			battleBotRegistry.throttles,
			battleBotRegistry.journalFailures,
			battleBotRegistry.deliveries,
		)
	})
	return battleBotRegistry
}

func label(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

// ObserveEvent records a handled inbound event.
func (m *BattleBotMetrics) ObserveEvent(kind, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	kind = label(kind, "unknown")
	m.events.WithLabelValues(kind, label(outcome, "unknown")).Inc()
	m.eventLatency.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// ObserveBackend records a settlement call. Rejections and transport
// failures are counted separately.
func (m *BattleBotMetrics) ObserveBackend(op string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, settlement.ErrBackendRejected):
		outcome = "rejected"
	case errors.Is(err, settlement.ErrTransport):
		outcome = "transport"
	default:
		outcome = "error"
	}
	op = label(op, "unknown")
	m.backendRequests.WithLabelValues(op, outcome).Inc()
	m.backendLatency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveBattleAttempt records the end of a battle creation attempt.
func (m *BattleBotMetrics) ObserveBattleAttempt(outcome, failedAt string) {
	if m == nil {
		return
	}
	m.battles.WithLabelValues(label(outcome, "unknown"), label(failedAt, "none")).Inc()
}

// ObserveVote records a classified vote.
func (m *BattleBotMetrics) ObserveVote(status string) {
	if m == nil {
		return
	}
	m.votes.WithLabelValues(label(status, "unknown")).Inc()
}

// ObserveWalletFlush records a wallet persistence attempt.
func (m *BattleBotMetrics) ObserveWalletFlush(err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.walletFlushes.WithLabelValues(outcome).Inc()
}

// RecordDuplicate counts a dropped duplicate delivery.
func (m *BattleBotMetrics) RecordDuplicate() {
	if m == nil {
		return
	}
	m.duplicates.Inc()
}

// RecordThrottle counts a throttled event. Reasons should be stable strings
// such as "participant_rate".
func (m *BattleBotMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	m.throttles.WithLabelValues(label(reason, "unspecified")).Inc()
}

// RecordJournalFailure counts a journal write that failed.
func (m *BattleBotMetrics) RecordJournalFailure() {
	if m == nil {
		return
	}
	m.journalFailures.Inc()
}

// RecordDelivery counts an outbound message by outcome.
func (m *BattleBotMetrics) RecordDelivery(err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.deliveries.WithLabelValues(outcome).Inc()
}
