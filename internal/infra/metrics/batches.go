package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		batchesSettledTotal,
		reviewActionsTotal,
	)
}

var (
	batchesSettledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batches_settled_total",
			Help: "Total number of batches reaching a terminal status.",
		},
		[]string{"status"}, // 'completed', 'failed', 'partial'
	)

	reviewActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_actions_total",
			Help: "Total number of post-review actions performed.",
		},
		[]string{"action"}, // 'approve', 'reject', 'repost'
	)
)

func IncBatchSettled(status string) {
	batchesSettledTotal.WithLabelValues(norm(status)).Inc()
}

func IncReviewAction(action string) {
	reviewActionsTotal.WithLabelValues(norm(action)).Inc()
}
