package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		jobsProcessedTotal,
		pipelineStepsTotal,
	)
}

var (
	jobsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_jobs_processed_total",
			Help: "Total number of generation jobs settled, labeled by terminal status.",
		},
		[]string{"status"}, // 'completed', 'failed'
	)

	pipelineStepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_steps_completed_total",
			Help: "Total number of pipeline steps that produced a result, by step type.",
		},
		[]string{"type"},
	)
)

func IncJobProcessed(status string) {
	jobsProcessedTotal.WithLabelValues(norm(status)).Inc()
}

func IncPipelineStep(stepType string) {
	pipelineStepsTotal.WithLabelValues(norm(stepType)).Inc()
}
