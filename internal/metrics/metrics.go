package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bondbridg",
			Subsystem: "upload_service",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bondbridg",
			Subsystem: "upload_service",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"method", "route"},
	)

	// status is one of stored, duplicate, invalid, failed.
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bondbridg",
			Subsystem: "upload_service",
			Name:      "uploads_total",
			Help:      "Uploaded files by outcome",
		},
		[]string{"status"},
	)

	UploadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bondbridg",
			Subsystem: "upload_service",
			Name:      "upload_bytes_total",
			Help:      "Total bytes written to blob storage by uploads",
		},
	)

	ThumbnailsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bondbridg",
			Subsystem: "upload_service",
			Name:      "thumbnails_generated_total",
			Help:      "Thumbnails generated by size",
		},
		[]string{"size"},
	)

	ProcessingDegradations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bondbridg",
			Subsystem: "upload_service",
			Name:      "image_processing_degradations_total",
			Help:      "Image processing steps that failed or were unavailable",
		},
		[]string{"step"},
	)

	StorageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bondbridg",
			Subsystem: "upload_service",
			Name:      "storage_failures_total",
			Help:      "Blob writes that failed or could not be verified",
		},
		[]string{"disk"},
	)
)

func RecordRequest(method, route, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(method, route, status).Inc()
	RequestDuration.WithLabelValues(method, route).Observe(durationSec)
}

func RecordUpload(status string, bytes int64) {
	UploadsTotal.WithLabelValues(status).Inc()
	if status == "stored" {
		UploadBytesTotal.Add(float64(bytes))
	}
}

func RecordThumbnail(size string) {
	ThumbnailsTotal.WithLabelValues(size).Inc()
}

func RecordDegradation(step string) {
	ProcessingDegradations.WithLabelValues(step).Inc()
}

func RecordStorageFailure(disk string) {
	StorageFailures.WithLabelValues(disk).Inc()
}
