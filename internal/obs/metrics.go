package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	mtxEntries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_entries_total",
			Help: "Positions opened.",
		},
	)
	mtxEntryRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_entry_rejections_total",
			Help: "Entries rejected at the capital boundary.",
		},
		[]string{"reason"},
	)
	mtxExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_exits_total",
			Help: "Confirmed exits by reason and completeness.",
		},
		[]string{"reason", "full"},
	)
	mtxExitFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_exit_failures_total",
			Help: "Exit attempts that failed without mutating the ledger.",
		},
		[]string{"cause"},
	)
	mtxDiscrepancies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_reconcile_discrepancies_total",
			Help: "Discrepancies found per reconciliation pass.",
		},
		[]string{"type", "action"},
	)
	mtxDuplicateSignals = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_duplicate_signals_total",
			Help: "Signals rejected by the restart idempotency guard.",
		},
	)
	gaugeOpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_open_positions",
			Help: "Open positions tracked by the ledger.",
		},
	)
)

func init() {
	prometheus.MustRegister(mtxEntries, mtxEntryRejections)
	prometheus.MustRegister(mtxExits, mtxExitFailures)
	prometheus.MustRegister(mtxDiscrepancies, mtxDuplicateSignals)
	prometheus.MustRegister(gaugeOpenPositions)
}

func EntryOpened() {
	mtxEntries.Inc()
	gaugeOpenPositions.Inc()
}

func EntryRejected(reason string) {
	mtxEntryRejections.WithLabelValues(reason).Inc()
}

func ExitExecuted(reason string, full bool) {
	label := "partial"
	if full {
		label = "full"
		gaugeOpenPositions.Dec()
	}
	mtxExits.WithLabelValues(reason, label).Inc()
}

func ExitFailed(cause string) {
	mtxExitFailures.WithLabelValues(cause).Inc()
}

func DiscrepancyFound(kind, action string) {
	mtxDiscrepancies.WithLabelValues(kind, action).Inc()
}

func DuplicateSignal() {
	mtxDuplicateSignals.Inc()
}

// Handler exposes the prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
