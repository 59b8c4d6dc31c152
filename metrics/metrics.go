// Package metrics exposes the Upper Layer stack's Prometheus
// instrumentation: associations opened/closed/rejected, PDUs and DIMSE
// messages by type, and timer expirations (spec.md §2 ambient stack).
// Grounded on the pack's promhttp.Handler() exposition style
// (OtchereDev-ris-dicom-connector/cmd/server/main.go), adapted into a
// standalone registry the ae package updates directly rather than via
// HTTP middleware, since this core has no HTTP surface of its own.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry wraps the counters and histograms this stack emits. Callers
// that don't want metrics can simply never construct one; every ae.Config
// field that references it is a nil-checked pointer.
type Registry struct {
	reg *prometheus.Registry

	associationsOpened   prometheus.Counter
	associationsClosed   prometheus.Counter
	associationsRejected prometheus.Counter
	pdusSent             *prometheus.CounterVec
	pdusRecv             *prometheus.CounterVec
	dimseDispatched      *prometheus.CounterVec
	timerExpirations     *prometheus.CounterVec
	dimseLatency         prometheus.Histogram
}

// New builds a Registry with all series pre-registered, the idiom the
// corpus uses to avoid "duplicate metrics collector" panics on startup.
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		associationsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dicomcore", Subsystem: "association", Name: "opened_total",
			Help: "Total associations successfully established.",
		}),
		associationsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dicomcore", Subsystem: "association", Name: "closed_total",
			Help: "Total associations that reached Sta1 after being established.",
		}),
		associationsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dicomcore", Subsystem: "association", Name: "rejected_total",
			Help: "Total A-ASSOCIATE-RQ that ended in rejection or failed negotiation.",
		}),
		pdusSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dicomcore", Subsystem: "pdu", Name: "sent_total",
			Help: "Total Upper Layer PDUs sent, by PDU type.",
		}, []string{"pdu_type"}),
		pdusRecv: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dicomcore", Subsystem: "pdu", Name: "received_total",
			Help: "Total Upper Layer PDUs received, by PDU type.",
		}, []string{"pdu_type"}),
		dimseDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dicomcore", Subsystem: "dimse", Name: "dispatched_total",
			Help: "Total DIMSE messages dispatched, by command field.",
		}, []string{"command"}),
		timerExpirations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dicomcore", Subsystem: "timer", Name: "expired_total",
			Help: "Total timer expirations, by timer name.",
		}, []string{"timer"}),
		dimseLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dicomcore", Subsystem: "dimse", Name: "request_duration_seconds",
			Help:    "Time from a DIMSE request being sent to its terminal response.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		r.associationsOpened, r.associationsClosed, r.associationsRejected,
		r.pdusSent, r.pdusRecv, r.dimseDispatched, r.timerExpirations, r.dimseLatency,
	)
	return r
}

// Handler exposes the registry over /metrics for the demo CLI.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Registry) AssociationOpened()   { r.associationsOpened.Inc() }
func (r *Registry) AssociationClosed()   { r.associationsClosed.Inc() }
func (r *Registry) AssociationRejected() { r.associationsRejected.Inc() }

// PDUSent records an outbound PDU by its wire type code.
func (r *Registry) PDUSent(pduType byte) { r.pdusSent.WithLabelValues(pduTypeLabel(pduType)).Inc() }

// PDURecv records an inbound PDU by its wire type code.
func (r *Registry) PDURecv(pduType byte) { r.pdusRecv.WithLabelValues(pduTypeLabel(pduType)).Inc() }

// DIMSEDispatched records one dispatched DIMSE command.
func (r *Registry) DIMSEDispatched(commandField uint16) {
	r.dimseDispatched.WithLabelValues(commandLabel(commandField)).Inc()
}

// TimerExpired records a named timer expiration (e.g. "ARTIM", "DIMSE").
func (r *Registry) TimerExpired(name string) { r.timerExpirations.WithLabelValues(name).Inc() }

// ObserveDIMSELatency records one completed request's round-trip seconds.
func (r *Registry) ObserveDIMSELatency(seconds float64) { r.dimseLatency.Observe(seconds) }

func pduTypeLabel(t byte) string {
	names := map[byte]string{
		0x01: "A-ASSOCIATE-RQ", 0x02: "A-ASSOCIATE-AC", 0x03: "A-ASSOCIATE-RJ",
		0x04: "P-DATA-TF", 0x05: "A-RELEASE-RQ", 0x06: "A-RELEASE-RP", 0x07: "A-ABORT",
	}
	if n, ok := names[t]; ok {
		return n
	}
	return "unknown"
}

func commandLabel(c uint16) string {
	names := map[uint16]string{
		0x0001: "C-STORE-RQ", 0x8001: "C-STORE-RSP",
		0x0010: "C-GET-RQ", 0x8010: "C-GET-RSP",
		0x0020: "C-FIND-RQ", 0x8020: "C-FIND-RSP",
		0x0021: "C-MOVE-RQ", 0x8021: "C-MOVE-RSP",
		0x0030: "C-ECHO-RQ", 0x8030: "C-ECHO-RSP",
		0x0FFF: "C-CANCEL-RQ",
		0x0100: "N-EVENT-REPORT-RQ", 0x8100: "N-EVENT-REPORT-RSP",
		0x0110: "N-GET-RQ", 0x8110: "N-GET-RSP",
		0x0120: "N-SET-RQ", 0x8120: "N-SET-RSP",
		0x0130: "N-ACTION-RQ", 0x8130: "N-ACTION-RSP",
		0x0140: "N-CREATE-RQ", 0x8140: "N-CREATE-RSP",
		0x0150: "N-DELETE-RQ", 0x8150: "N-DELETE-RSP",
	}
	if n, ok := names[c]; ok {
		return n
	}
	return "unknown"
}
