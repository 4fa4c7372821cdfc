package maintenance

import "github.com/prometheus/client_golang/prometheus"

var (
	retentionRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabquery_retention_runs_total",
			Help: "Total number of retention runs by status.",
		},
		[]string{"status"},
	)
	retentionDatasetsDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tabquery_retention_datasets_deleted_total",
			Help: "Total number of datasets removed by retention runs.",
		},
	)
	integrityRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabquery_integrity_runs_total",
			Help: "Total number of integrity check runs by status.",
		},
		[]string{"status"},
	)
	integrityTablesCheckedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tabquery_integrity_tables_checked_total",
			Help: "Total number of tables checked by integrity validation.",
		},
	)
	integrityProblemsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tabquery_integrity_problems_total",
			Help: "Total number of missing, resized or row-count-mismatched table files.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		retentionRunsTotal,
		retentionDatasetsDeletedTotal,
		integrityRunsTotal,
		integrityTablesCheckedTotal,
		integrityProblemsTotal,
	)
}
