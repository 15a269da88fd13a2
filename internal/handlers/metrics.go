package handlers

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	moderationDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: "feedback",
			Name:      "moderation_decisions_total",
			Help:      "Moderation decisions taken by admins",
		},
		[]string{"decision"},
	)

	feedbackSubmissions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Subsystem: "feedback",
			Name:      "submissions_total",
			Help:      "Feedback records submitted",
		},
	)

	avatarRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: "avatar",
			Name:      "rejections_total",
			Help:      "Avatar uploads rejected during validation",
		},
		[]string{"code"},
	)
)

func init() {
	prometheus.MustRegister(moderationDecisions, feedbackSubmissions, avatarRejections)
}
