package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nspcc-dev/wsbitcoin-go/cli/options"
	"github.com/nspcc-dev/wsbitcoin-go/pkg/config"
	"github.com/nspcc-dev/wsbitcoin-go/pkg/rpcclient"
	"github.com/nspcc-dev/wsbitcoin-go/pkg/services/metrics"
	"github.com/nspcc-dev/wsbitcoin-go/pkg/services/relay"
	"github.com/nspcc-dev/wsbitcoin-go/pkg/services/watcher"
	"github.com/urfave/cli"
	"go.uber.org/zap"
)

// service is a relay subsystem with managed lifetime.
type service interface {
	Name() string
	Start()
	Shutdown()
}

var errArgs = errors.New("command doesn't accept positional arguments")

// NewCommands returns 'node' and 'actions' commands.
func NewCommands() []cli.Command {
	var cfgFlags = []cli.Flag{options.Config, options.ConfigFile, options.Debug}
	cfgFlags = append(cfgFlags, options.Network...)
	return []cli.Command{
		{
			Name:      "node",
			Usage:     "start a websocket relay",
			UsageText: "wsbitcoin node [--config-path path] [-d] [-m | -t] [--config-file file]",
			Action:    startServer,
			Flags:     cfgFlags,
		},
		{
			Name:      "actions",
			Usage:     "list actions supported by the relay",
			UsageText: "wsbitcoin actions",
			Action:    listActions,
		},
	}
}

func listActions(ctx *cli.Context) error {
	if ctx.NArg() != 0 {
		return cli.NewExitError(errArgs, 1)
	}
	for _, name := range relay.ActionNames() {
		fmt.Fprintln(ctx.App.Writer, name)
	}
	return nil
}

// newGateway creates a ledger node client for the given configuration. TLS
// settings are only used for TLS-enabled nodes.
func newGateway(ctx context.Context, cfg config.Node) (*rpcclient.Client, error) {
	opts := rpcclient.Options{
		User:           cfg.User,
		Password:       cfg.Password,
		DialTimeout:    cfg.DialTimeout,
		RequestTimeout: cfg.RequestTimeout,
	}
	if cfg.TLS.Enabled {
		opts.CACert = cfg.TLS.CACertFile
		opts.Insecure = cfg.TLS.Insecure
	}
	gw, err := rpcclient.New(ctx, cfg.Endpoint(), opts)
	if err != nil {
		return nil, fmt.Errorf("can't create ledger node client: %w", err)
	}
	return gw, nil
}

// checkNode makes sure the ledger node answers RPC calls and returns its
// current block count.
func checkNode(ctx context.Context, gw *rpcclient.Client) (int64, error) {
	if err := gw.Ping(); err != nil {
		return 0, fmt.Errorf("node is not reachable: %w", err)
	}
	height, err := gw.GetBlockCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("node doesn't answer RPC calls: %w", err)
	}
	return height, nil
}

func newGraceContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
	}()
	return ctx
}

func startServer(ctx *cli.Context) error {
	if ctx.NArg() != 0 {
		return cli.NewExitError(errArgs, 1)
	}
	cfg, err := options.GetConfigFromContext(ctx)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	log, logLevel, err := options.HandleLoggingParams(ctx.Bool("debug"), cfg.ApplicationConfiguration)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer func() { _ = log.Sync() }()

	grace, cancel := context.WithCancel(newGraceContext())
	defer cancel()

	appCfg := cfg.ApplicationConfiguration
	gw, err := newGateway(grace, appCfg.Node)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer gw.Close()
	if height, err := checkNode(grace, gw); err != nil {
		log.Warn("ledger node check failed", zap.String("endpoint", gw.Endpoint()), zap.Error(err))
	} else {
		log.Info("ledger node is available", zap.String("endpoint", gw.Endpoint()), zap.Int64("blocks", height))
	}

	errChan := make(chan error, 1+len(appCfg.RPC.Addresses)+len(appCfg.RPC.TLSConfig.Addresses))
	relayServer := relay.New(appCfg.RPC, gw, log, errChan)
	services := []service{
		metrics.NewPrometheusService(appCfg.Prometheus, log),
		metrics.NewPprofService(appCfg.Pprof, log),
		relayServer,
		watcher.New(appCfg.Watcher, gw, watcher.NewIndex(), relayServer, log),
	}
	for _, s := range services {
		s.Start()
	}
	log.Info("relay started",
		zap.String("version", config.Version),
		zap.String("node", gw.Endpoint()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)

	var shutdownErr error
Main:
	for {
		select {
		case err := <-errChan:
			shutdownErr = fmt.Errorf("server error: %w", err)
			cancel()
		case sig := <-sigCh:
			log.Info("signal received", zap.Stringer("name", sig))
			newCfg, err := options.GetConfigFromContext(ctx)
			if err != nil {
				log.Warn("can't reread the config file, signal ignored", zap.Error(err))
				break
			}
			newLevel, err := options.GetLogLevel(ctx.Bool("debug"), newCfg.ApplicationConfiguration)
			if err != nil {
				log.Warn("wrong log level in the updated config, signal ignored", zap.Error(err))
				break
			}
			if newLevel != logLevel.Level() {
				log.Warn("using new logging level", zap.Stringer("level", newLevel))
				logLevel.SetLevel(newLevel)
			}
		case <-grace.Done():
			signal.Stop(sigCh)
			break Main
		}
	}

	for i := len(services) - 1; i >= 0; i-- {
		log.Debug("stopping service", zap.String("service", services[i].Name()))
		services[i].Shutdown()
	}
	if shutdownErr != nil {
		return cli.NewExitError(shutdownErr, 1)
	}
	return nil
}
