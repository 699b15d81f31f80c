package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// WriteTextfile dumps the default registry in the node-exporter textfile format.
// An empty path is a no-op.
func WriteTextfile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
