package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "printorder",
			Name:      "jobs_total",
			Help:      "Processing jobs by result (success, validation, write, internal)",
		},
		[]string{"result"},
	)

	stageLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "printorder",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	pagesClassified = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "printorder",
			Name:      "pages_classified_total",
			Help:      "Pages run through blank detection, labeled by verdict",
		},
		[]string{"verdict"},
	)

	blankCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "printorder",
			Name:      "blank_cache_lookups_total",
			Help:      "Blank verdict cache lookups by tier (memory, redis) and result (hit, miss, error)",
		},
		[]string{"tier", "result"},
	)

	thumbnailsRendered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "printorder",
			Name:      "thumbnails_rendered_total",
			Help:      "Thumbnails produced from print-data pages",
		},
	)

	tasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "printorder",
			Name:      "coordinator_tasks_total",
			Help:      "Coordinator tasks by outcome (ok, error, timeout)",
		},
		[]string{"outcome"},
	)

	registerOnce sync.Once
)

// Init registers collectors. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(jobsTotal, stageLatency, pagesClassified, blankCache, thumbnailsRendered, tasksTotal)
	})
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func IncJob(result string) { jobsTotal.WithLabelValues(result).Inc() }

func ObserveStage(stage string, dur time.Duration) {
	stageLatency.WithLabelValues(stage).Observe(dur.Seconds())
}

// Since observes the time elapsed from start for stage; meant for defer.
func Since(stage string, start time.Time) { ObserveStage(stage, time.Since(start)) }

func IncClassified(blank bool) { pagesClassified.WithLabelValues(verdict(blank)).Inc() }

func IncBlankCache(tier, result string) { blankCache.WithLabelValues(tier, result).Inc() }

func AddThumbnails(n int) { thumbnailsRendered.Add(float64(n)) }

func IncTask(outcome string) { tasksTotal.WithLabelValues(outcome).Inc() }

func verdict(blank bool) string {
	if blank {
		return "blank"
	}
	return "content"
}
