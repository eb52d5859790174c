package metrics

import (
	"github.com/nspcc-dev/wsbitcoin-go/pkg/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewPrometheusService creates a new service exposing relay and watcher
// metrics registered in the default prometheus registry, see
// https://prometheus.io/docs/guides/go-application.
func NewPrometheusService(cfg config.BasicService, log *zap.Logger) *Service {
	if log == nil {
		return nil
	}
	// Metrics are shared between all listeners.
	return NewService("Prometheus", newServers(cfg.GetAddresses(), promhttp.Handler()), cfg, log)
}
