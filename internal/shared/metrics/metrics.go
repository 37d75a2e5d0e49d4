package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

var (
	documentJobsReceivedTotal      atomic.Uint64
	documentJobsCompletedTotal     atomic.Uint64
	documentJobsFailedTotal        atomic.Uint64
	documentJobsUnrecoverableTotal atomic.Uint64
	repairAttemptsTotal            atomic.Uint64
	repairAdoptedTotal             atomic.Uint64

	processingDuration = newHistogram([]float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000, 120000})
)

// IncDocumentJobsReceived increments the received counter.
func IncDocumentJobsReceived() {
	documentJobsReceivedTotal.Add(1)
}

// IncDocumentJobsCompleted increments the completed counter.
func IncDocumentJobsCompleted() {
	documentJobsCompletedTotal.Add(1)
}

// IncDocumentJobsFailed increments the failed counter.
func IncDocumentJobsFailed() {
	documentJobsFailedTotal.Add(1)
}

// IncDocumentJobsDeletedUnrecoverable counts messages dropped without processing.
func IncDocumentJobsDeletedUnrecoverable() {
	documentJobsUnrecoverableTotal.Add(1)
}

// IncRepairAttempted counts judge repair attempts.
func IncRepairAttempted() {
	repairAttemptsTotal.Add(1)
}

// IncRepairAdopted counts repairs whose result was adopted.
func IncRepairAdopted() {
	repairAdoptedTotal.Add(1)
}

// ObserveProcessingDurationMs records one pipeline run duration in milliseconds.
func ObserveProcessingDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	processingDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "document_jobs_received_total", "Total document jobs received", documentJobsReceivedTotal.Load())
	writeCounter(&buf, "document_jobs_completed_total", "Total document jobs completed", documentJobsCompletedTotal.Load())
	writeCounter(&buf, "document_jobs_failed_total", "Total document jobs failed", documentJobsFailedTotal.Load())
	writeCounter(&buf, "document_jobs_unrecoverable_total", "Total document jobs dropped as unrecoverable", documentJobsUnrecoverableTotal.Load())
	writeCounter(&buf, "repair_attempts_total", "Total judge repair attempts", repairAttemptsTotal.Load())
	writeCounter(&buf, "repair_adopted_total", "Total adopted judge repairs", repairAdoptedTotal.Load())
	writeHistogram(&buf, "document_processing_duration_ms", "Document processing duration in milliseconds", processingDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
	return out
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// NowMillis returns current time in milliseconds, useful for callers without time utilities.
func NowMillis() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Millisecond)
}
