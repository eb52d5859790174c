package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/nspcc-dev/wsbitcoin-go/pkg/config"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Service serves metrics.
type Service struct {
	http        []*http.Server
	config      config.BasicService
	log         *zap.Logger
	serviceType string
	started     *atomic.Bool
}

// NewService creates a new Service with the given name serving srvs.
func NewService(name string, srvs []*http.Server, cfg config.BasicService, log *zap.Logger) *Service {
	return &Service{
		http:        srvs,
		config:      cfg,
		serviceType: name,
		log:         log.With(zap.String("service", name)),
		started:     atomic.NewBool(false),
	}
}

// Name returns service name.
func (ms *Service) Name() string {
	return ms.serviceType
}

// Start runs http services with the exposed endpoint on the configured ports.
// Listening errors are only logged, metrics are not essential for the relay.
func (ms *Service) Start() {
	if !ms.config.Enabled {
		ms.log.Info("service hasn't started since it's disabled")
		return
	}
	if !ms.started.CompareAndSwap(false, true) {
		ms.log.Info("service already started")
		return
	}
	for _, srv := range ms.http {
		ms.log.Info("starting service", zap.String("endpoint", srv.Addr))
		ln, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			ms.log.Error("failed to listen on configured address", zap.Error(err))
			continue
		}
		srv.Addr = ln.Addr().String() // set Addr to the actual address
		go func(srv *http.Server) {
			err := srv.Serve(ln)
			if !errors.Is(err, http.ErrServerClosed) {
				ms.log.Error("failed to start service", zap.String("endpoint", srv.Addr), zap.Error(err))
			}
		}(srv)
	}
}

// Addresses returns the list of addresses the service listens on (actual
// ones after Start).
func (ms *Service) Addresses() []string {
	res := make([]string, len(ms.http))
	for i, srv := range ms.http {
		res[i] = srv.Addr
	}
	return res
}

// Shutdown stops the service.
func (ms *Service) Shutdown() {
	if !ms.started.CompareAndSwap(true, false) {
		return
	}
	for _, srv := range ms.http {
		ms.log.Info("shutting down service", zap.String("endpoint", srv.Addr))
		err := srv.Shutdown(context.Background())
		if err != nil {
			ms.log.Error("can't shut service down", zap.String("endpoint", srv.Addr), zap.Error(err))
		}
	}
}

// newServers creates an http.Server for every address given.
func newServers(addrs []string, handler http.Handler) []*http.Server {
	srvs := make([]*http.Server, len(addrs))
	for i, addr := range addrs {
		srvs[i] = &http.Server{
			Addr:    addr,
			Handler: handler,
		}
	}
	return srvs
}
