// Package metrics exposes Prometheus instrumentation for the frame layer
// and the chip model. Both collectors plug into the observer hooks of
// their component, so nothing in the data path imports Prometheus.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tropicsquare/tropic-go/pkg/l2"
	"github.com/tropicsquare/tropic-go/pkg/transport"
)

const (
	// Namespace is the Prometheus namespace for all metrics.
	Namespace = "tropic"

	LabelRequest = "request"
	LabelStatus  = "status"
	LabelReason  = "reason"
	LabelCommand = "command"
)

// Failure reasons for ExchangesFailed.
const (
	ReasonTimeout   = "timeout"
	ReasonIntegrity = "integrity"
	ReasonAlarm     = "alarm"
	ReasonTransport = "transport"
	ReasonOther     = "other"
)

// L2 implements l2.Observer.
type L2 struct {
	FramesSent      *prometheus.CounterVec
	FramesReceived  *prometheus.CounterVec
	BytesSent       prometheus.Counter
	BytesReceived   prometheus.Counter
	PollRetries     prometheus.Counter
	PollDelay       prometheus.Histogram
	ExchangesFailed *prometheus.CounterVec
}

var _ l2.Observer = (*L2)(nil)

// NewL2 registers the frame-layer metrics with reg. A nil reg uses the
// default registerer.
func NewL2(reg prometheus.Registerer) *L2 {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &L2{
		FramesSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "l2",
			Name:      "frames_sent_total",
			Help:      "Request frames sent, by request id",
		}, []string{LabelRequest}),
		FramesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "l2",
			Name:      "frames_received_total",
			Help:      "Response frames received, by status",
		}, []string{LabelStatus}),
		BytesSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "l2",
			Name:      "bytes_sent_total",
			Help:      "Request frame bytes sent",
		}),
		BytesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "l2",
			Name:      "bytes_received_total",
			Help:      "Response frame bytes received",
		}),
		PollRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "l2",
			Name:      "poll_retries_total",
			Help:      "Busy polls that had to be retried",
		}),
		PollDelay: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "l2",
			Name:      "poll_delay_seconds",
			Help:      "Delay scheduled before each poll retry",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5},
		}),
		ExchangesFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "l2",
			Name:      "exchanges_failed_total",
			Help:      "Frame exchanges that failed, by request id and reason",
		}, []string{LabelRequest, LabelReason}),
	}
}

func (m *L2) FrameSent(id l2.RequestID, size int) {
	m.FramesSent.WithLabelValues(id.String()).Inc()
	m.BytesSent.Add(float64(size))
}

func (m *L2) FrameReceived(status l2.Status, size int) {
	m.FramesReceived.WithLabelValues(status.String()).Inc()
	m.BytesReceived.Add(float64(size))
}

func (m *L2) PollRetry(attempt int, delay time.Duration) {
	m.PollRetries.Inc()
	m.PollDelay.Observe(delay.Seconds())
}

func (m *L2) ExchangeFailed(id l2.RequestID, err error) {
	m.ExchangesFailed.WithLabelValues(id.String(), Reason(err)).Inc()
}

// Reason maps an exchange error to a low-cardinality label value.
func Reason(err error) string {
	switch {
	case errors.Is(err, l2.ErrTimeout):
		return ReasonTimeout
	case errors.Is(err, l2.ErrIntegrityCheckFailed):
		return ReasonIntegrity
	case errors.Is(err, l2.ErrChipAlarm):
		return ReasonAlarm
	case errors.Is(err, transport.ErrTransport):
		return ReasonTransport
	}
	return ReasonOther
}
