package processor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "processor_tasks_processed_total",
		Help: "The total number of tasks completed successfully",
	})
	tasksFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "processor_tasks_failed_total",
		Help: "The total number of tasks dead-lettered after exhausting retries",
	})
	taskRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "processor_task_retries_total",
		Help: "The total number of retry attempts scheduled",
	})
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "processor_queue_depth",
		Help: "The current number of queued tasks across all priorities",
	})
)
