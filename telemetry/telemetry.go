// Package telemetry wires up stats reporting for the TSDF mapping module.
package telemetry

import (
	"time"

	"go.viam.com/utils/perf"
)

// reportingInterval controls how often collected spans and stats are flushed.
const reportingInterval = time.Second

// SetupTelemetry starts a development exporter so traces and stats recorded
// by the module are reported. The caller owns the returned exporter and must
// Stop it on shutdown.
func SetupTelemetry() (perf.Exporter, error) {
	exporter := perf.NewDevelopmentExporterWithOptions(perf.DevelopmentExporterOptions{
		ReportingInterval: reportingInterval,
	})
	if err := exporter.Start(); err != nil {
		return nil, err
	}

	return exporter, nil
}
