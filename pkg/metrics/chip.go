package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tropicsquare/tropic-go/pkg/chipsim"
	"github.com/tropicsquare/tropic-go/pkg/handshake"
	"github.com/tropicsquare/tropic-go/pkg/l2"
	"github.com/tropicsquare/tropic-go/pkg/l3"
)

// Chip implements chipsim.Observer for a model server.
type Chip struct {
	Requests      *prometheus.CounterVec
	Commands      *prometheus.CounterVec
	Sessions      *prometheus.CounterVec
	SessionActive prometheus.Gauge
}

var _ chipsim.Observer = (*Chip)(nil)

// NewChip registers the chip model metrics with reg. A nil reg uses the
// default registerer.
func NewChip(reg prometheus.Registerer) *Chip {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Chip{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "model",
			Name:      "requests_total",
			Help:      "L2 requests handled by the model, by request id and status",
		}, []string{LabelRequest, LabelStatus}),
		Commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "model",
			Name:      "commands_total",
			Help:      "L3 commands executed by the model, by command and result",
		}, []string{LabelCommand, LabelStatus}),
		Sessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "model",
			Name:      "sessions_started_total",
			Help:      "Secure sessions established, by pairing slot",
		}, []string{"slot"}),
		SessionActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "model",
			Name:      "session_active",
			Help:      "1 while a secure session is open",
		}),
	}
}

func (m *Chip) RequestHandled(id l2.RequestID, status l2.Status) {
	m.Requests.WithLabelValues(id.String(), status.String()).Inc()
}

func (m *Chip) CommandHandled(code l3.CommandCode, status l3.Status) {
	m.Commands.WithLabelValues(code.String(), status.String()).Inc()
}

func (m *Chip) SessionChanged(active bool, slot handshake.Slot) {
	if !active {
		m.SessionActive.Set(0)
		return
	}
	m.SessionActive.Set(1)
	m.Sessions.WithLabelValues(strconv.Itoa(int(slot))).Inc()
}
