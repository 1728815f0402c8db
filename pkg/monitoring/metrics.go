package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ResponseTimeHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_time_seconds",
			Help:    "Histogram of response times",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// RegistrationsTotal counts member registrations by kind (guest/volunteer/direct) and result
	RegistrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xsch_registrations_total",
			Help: "Member registrations by kind and result",
		},
		[]string{"kind", "result"},
	)

	// SlotConflictsTotal counts referral records that lost a slot during reconciliation
	SlotConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xsch_slot_conflicts_total",
			Help: "Referral records discarded because another record held the same slot",
		},
	)

	// SettlementsTotal counts task completion settlements by result (awarded/duplicate/failed/expired)
	SettlementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xsch_task_settlements_total",
			Help: "Task completion settlements by result",
		},
		[]string{"result"},
	)

	// PointsAwardedTotal sums the points credited through task completions
	PointsAwardedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xsch_points_awarded_total",
			Help: "Points credited to members through task completions",
		},
	)
)
