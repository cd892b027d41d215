package metrics

import (
	"log/slog"

	"github.com/DataDog/datadog-go/v5/statsd"
)

// NewClient returns a statsd client for addr, or a no-op client when addr is
// empty or the client cannot be created. Callers never need a nil check.
func NewClient(addr string, tags []string) statsd.ClientInterface {
	if addr == "" {
		slog.Info("STATSD_ADDR not set, metrics are disabled")
		return &statsd.NoOpClient{}
	}

	client, err := statsd.New(addr, statsd.WithTags(tags))
	if err != nil {
		slog.Error("statsd client initialization failed, metrics will be unavailable", "addr", addr, "error", err)
		return &statsd.NoOpClient{}
	}

	slog.Info("metrics client initialized", "addr", addr, "tags", tags)
	return client
}
