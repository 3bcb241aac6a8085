package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts LNURL-pay requests by protocol phase and outcome
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lnurlp_requests_total",
			Help: "Total number of LNURL-pay requests",
		},
		[]string{"phase", "result"},
	)

	// InvoiceCreateDuration tracks invoice issuance latency
	InvoiceCreateDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lnurlp_invoice_create_duration_seconds",
			Help:    "Invoice issuance duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// WalletResolutions counts directory lookups by outcome
	WalletResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lnurlp_wallet_resolutions_total",
			Help: "Total number of default wallet resolutions",
		},
		[]string{"result"},
	)

	// ZapNotesStored counts zap note writes by outcome
	ZapNotesStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lnurlp_zap_notes_stored_total",
			Help: "Total number of zap request notes written to the ephemeral store",
		},
		[]string{"result"},
	)
)
