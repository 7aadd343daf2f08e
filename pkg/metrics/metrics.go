package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	bulkSubsystem = "bulk"

	// Job metrics
	jobsCreatedTotal    = "jobs_created_total"
	ingestChunksTotal   = "ingest_chunks_total"
	uploadedBytesTotal  = "uploaded_bytes_total"
	requestsTotal       = "requests_total"
	requestDurationSecs = "request_duration_seconds"

	// Labels
	jobKindLabel      = "kind"
	chunkResultLabel  = "result"
	requestMethodLbl  = "method"
	requestStatusLbl  = "status"
	ChunkResultOK     = "success"
	ChunkResultFailed = "failure"
)

var jobsCreatedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: bulkSubsystem,
		Name:      jobsCreatedTotal,
		Help:      "number of remote bulk jobs opened, by job kind",
	},
	[]string{jobKindLabel},
)

var ingestChunksTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: bulkSubsystem,
		Name:      ingestChunksTotal,
		Help:      "number of ingest chunks processed, by outcome",
	},
	[]string{chunkResultLabel},
)

var uploadedBytesTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: bulkSubsystem,
		Name:      uploadedBytesTotal,
		Help:      "number of CSV bytes streamed to ingest jobs",
	},
)

var requestsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: bulkSubsystem,
		Name:      requestsTotal,
		Help:      "number of requests sent to the bulk api, by method and status class",
	},
	[]string{requestMethodLbl, requestStatusLbl},
)

var requestDurationMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Subsystem: bulkSubsystem,
		Name:      requestDurationSecs,
		Help:      "latency of requests sent to the bulk api",
		Buckets:   []float64{0.1, 0.3, 1, 5, 30, 120},
	},
	[]string{requestMethodLbl},
)

func IncreaseJobsCreatedMetric(kind string) {
	jobsCreatedTotalMetric.With(prometheus.Labels{jobKindLabel: kind}).Inc()
}

func IncreaseIngestChunksMetric(result string) {
	ingestChunksTotalMetric.With(prometheus.Labels{chunkResultLabel: result}).Inc()
}

func AddUploadedBytesMetric(n int64) {
	uploadedBytesTotalMetric.Add(float64(n))
}

// ObserveRequest records one remote call. A zero status means the request
// never produced a response.
func ObserveRequest(method string, status int, elapsed time.Duration) {
	requestsTotalMetric.With(prometheus.Labels{
		requestMethodLbl: method,
		requestStatusLbl: statusClass(status),
	}).Inc()
	requestDurationMetric.With(prometheus.Labels{requestMethodLbl: method}).Observe(elapsed.Seconds())
}

func statusClass(status int) string {
	if status == 0 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(jobsCreatedTotalMetric)
	prometheus.MustRegister(ingestChunksTotalMetric)
	prometheus.MustRegister(uploadedBytesTotalMetric)
	prometheus.MustRegister(requestsTotalMetric)
	prometheus.MustRegister(requestDurationMetric)
}

// WriteToTextfile dumps the registered metrics in the text exposition format.
func WriteToTextfile(filename string) error {
	return prometheus.WriteToTextfile(filename, prometheus.DefaultGatherer)
}
