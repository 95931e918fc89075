// Package metrics provides Prometheus metrics for Fiche.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	OutcomeOK       = "ok"
	OutcomeInvalid  = "invalid"
	OutcomeBlocked  = "blocked"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

var (
	// SubmissionsTotal tracks form submissions by kind (create/update) and outcome
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fiche",
			Subsystem: "form",
			Name:      "submissions_total",
			Help:      "Total number of form submissions by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// ValidationViolationsTotal counts rejected fields by type
	ValidationViolationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fiche",
			Subsystem: "form",
			Name:      "validation_violations_total",
			Help:      "Total number of field violations reported by the validator",
		},
		[]string{"field_type"},
	)

	// ExportsTotal tracks document exports by outcome
	ExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fiche",
			Subsystem: "export",
			Name:      "exports_total",
			Help:      "Total number of document exports by outcome",
		},
		[]string{"outcome"},
	)

	// ExportDuration tracks fetch-and-merge time in seconds
	ExportDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fiche",
			Subsystem: "export",
			Name:      "duration_seconds",
			Help:      "Duration of document exports in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	// LookupsTotal tracks business-registry lookups by outcome
	LookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fiche",
			Subsystem: "registry",
			Name:      "lookups_total",
			Help:      "Total number of business-registry lookups by outcome",
		},
		[]string{"outcome"},
	)

	// UploadsTotal tracks file uploads by outcome
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fiche",
			Subsystem: "storage",
			Name:      "uploads_total",
			Help:      "Total number of file uploads by outcome",
		},
		[]string{"outcome"},
	)

	// RenameOrphansTotal counts record values left under a renamed field's old key
	RenameOrphansTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fiche",
			Subsystem: "template",
			Name:      "rename_orphaned_values_total",
			Help:      "Record values left under an old key by field renames",
		},
	)
)
