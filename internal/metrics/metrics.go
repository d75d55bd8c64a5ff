package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pictopdf"

var (
	imagesNormalized = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_normalized_total",
			Help:      "Source images processed by result (ok, skipped)",
		},
		[]string{"result"},
	)

	documentsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_created_total",
			Help:      "Documents finalized by the assembler",
		},
	)

	oversizedDocuments = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_oversized_total",
			Help:      "Single-page documents or parts that exceed the cap",
		},
	)

	splitParts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "split_parts_total",
			Help:      "Parts written by the splitter",
		},
	)

	bytesWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_written_total",
			Help:      "Bytes written by output kind (document, part)",
		},
		[]string{"kind"},
	)

	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Run duration by kind and result",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"kind", "result"},
	)

	once sync.Once
)

// Init registers collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(imagesNormalized, documentsCreated, oversizedDocuments, splitParts, bytesWritten, runDuration)
	})
}

// WriteTextfile dumps the default registry in the node-exporter textfile format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}

func ImageNormalized() { imagesNormalized.WithLabelValues("ok").Inc() }
func ImageSkipped()    { imagesNormalized.WithLabelValues("skipped").Inc() }

func DocumentCreated(size int64, over bool) {
	documentsCreated.Inc()
	written("document", size, over)
}

func PartWritten(size int64, over bool) {
	splitParts.Inc()
	written("part", size, over)
}

func ObserveRun(kind, result string, dur time.Duration) {
	runDuration.WithLabelValues(kind, result).Observe(dur.Seconds())
}

func written(kind string, size int64, over bool) {
	bytesWritten.WithLabelValues(kind).Add(float64(size))
	if over {
		oversizedDocuments.Inc()
	}
}
