package conversation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// messagesTotal counts inbound messages by outcome: reply, fallback, empty.
	messagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wa_mentor_messages_total",
		Help: "Inbound messages by outcome",
	}, []string{"outcome"})

	// retrievalTotal counts gate decisions and query results.
	retrievalTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wa_mentor_retrieval_total",
		Help: "Retrieval decisions by result",
	}, []string{"result"})

	// fallbacksTotal counts apology replies by cause.
	fallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wa_mentor_fallbacks_total",
		Help: "Fallback replies by cause",
	}, []string{"cause"})

	replyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wa_mentor_reply_duration_seconds",
		Help:    "Time from inbound message to reply text",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
	})
)

const (
	outcomeReply    = "reply"
	outcomeFallback = "fallback"
	outcomeEmpty    = "empty"

	retrievalSkipped = "skipped"
	retrievalEmpty   = "empty"
	retrievalHit     = "hit"
	retrievalError   = "error"

	causeProvider = "provider"
	causeSession  = "session"
	causeIndex    = "index"
	causePanic    = "panic"
)
