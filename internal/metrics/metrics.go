package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codejudge_executions_total",
			Help: "Total number of sandboxed executions",
		},
		[]string{"language", "status"}, // status: ok, compile_error, runtime_error, timeout, failed
	)

	ExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codejudge_execution_duration_ms",
			Help:    "Execution duration in milliseconds",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"language", "phase"}, // phase: compile, run, total
	)

	MemoryUsage = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codejudge_memory_usage_kb",
			Help:    "Peak memory usage per execution in KB",
			Buckets: []float64{1024, 4096, 16384, 65536, 131072, 262144},
		},
		[]string{"language"},
	)

	ContainerCreationTime = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "codejudge_container_creation_ms",
			Help:    "Time to create and start a container",
			Buckets: []float64{50, 100, 200, 500, 1000, 2000},
		},
	)

	ActiveContainers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "codejudge_active_containers",
			Help: "Number of admission slots currently held",
		},
	)

	AdmissionRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "codejudge_admission_rejections_total",
			Help: "Executions rejected because every container slot was busy",
		},
	)

	ReapedContainers = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "codejudge_reaped_containers_total",
			Help: "Leftover containers removed by the background sweep",
		},
	)

	TestCasesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codejudge_test_cases_total",
			Help: "Judged test cases by verdict",
		},
		[]string{"verdict"},
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "codejudge_rate_limit_hits_total",
			Help: "Total number of requests rejected by rate limiter",
		},
	)
)
