// Package metrics exposes the service's Prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "supportchat_messages_stored_total",
		Help: "Messages appended to the store.",
	})

	DuplicateSubmissions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "supportchat_duplicate_submissions_total",
		Help: "Submissions deduplicated by client token.",
	})

	ReadMarks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "supportchat_read_marks_total",
		Help: "Read watermark advances.",
	})

	SignalUpserts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "supportchat_signal_upserts_total",
		Help: "Typing and heartbeat signal writes.",
	})

	ConversationsArchived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "supportchat_conversations_archived_total",
		Help: "Conversations archived by agents.",
	})

	PollTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "supportchat_poll_ticks_total",
		Help: "Sync poller ticks by kind.",
	}, []string{"kind"})

	PollFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "supportchat_poll_failures_total",
		Help: "Sync poller tick failures by kind.",
	}, []string{"kind"})
)
