package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(jobsResumedTotal)
}

var jobsResumedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "stuck_jobs_resumed_total",
		Help: "Total number of stuck processing jobs the sweeper re-attached to their backend request.",
	},
)

func IncJobResumed() {
	jobsResumedTotal.Inc()
}
