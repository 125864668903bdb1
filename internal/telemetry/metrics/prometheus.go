package metrics

import (
	"fmt"

	"github.com/IBM/pgxpoolprometheus"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// SetupPrometheus creates the registry with the Go runtime and process
// collectors. Pool stats are added when a pool is given.
func SetupPrometheus(dbPool *pgxpool.Pool) (*prometheus.Registry, error) {
	promRegistry := prometheus.NewRegistry()

	// Add Go module build info, runtime metrics and process collectors.
	promRegistry.MustRegister(
		collectors.NewBuildInfoCollector(),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if dbPool != nil {
		collector := pgxpoolprometheus.NewCollector(dbPool, map[string]string{"db_name": dbPool.Config().ConnConfig.Database})
		if err := promRegistry.Register(collector); err != nil {
			return nil, fmt.Errorf("register pgxpool collector: %w", err)
		}
	}

	return promRegistry, nil
}
