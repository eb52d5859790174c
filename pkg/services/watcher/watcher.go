/*
Package watcher implements new transactions watcher. It periodically polls
the ledger node for wallet transactions having enough confirmations and
notifies account subscribers about every transaction exactly once.
*/
package watcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nspcc-dev/wsbitcoin-go/pkg/btcrpc/result"
	"github.com/nspcc-dev/wsbitcoin-go/pkg/config"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// errNoDetails is used when the node returns neither details nor an error.
var errNoDetails = errors.New("no transaction details returned")

type (
	// Gateway is the ledger node interface used by the watcher.
	Gateway interface {
		ListUnspent(ctx context.Context, minConf int) ([]result.Unspent, error)
		GetTransaction(ctx context.Context, txid string) (*result.Transaction, error)
	}

	// Service is a new transactions watcher. Only one watch cycle is running
	// at any given time, ticks happening while a cycle is in progress are
	// skipped.
	Service struct {
		gw    Gateway
		index *Index
		bc    *Broadcaster
		cfg   config.Watcher
		log   *zap.Logger

		started *atomic.Bool
		quit    chan struct{}
		done    chan struct{}
	}
)

// New creates a new watcher Service that stores its state in the given
// Index and reports via the given Notifier.
func New(cfg config.Watcher, gw Gateway, index *Index, ntf Notifier, log *zap.Logger) *Service {
	if cfg.MaxConcurrentFetches <= 0 {
		cfg.MaxConcurrentFetches = config.DefaultMaxConcurrentFetches
	}
	log = log.With(zap.String("service", "watcher"))
	return &Service{
		gw:      gw,
		index:   index,
		bc:      NewBroadcaster(ntf, log),
		cfg:     cfg,
		log:     log,
		started: atomic.NewBool(false),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Name returns service name.
func (s *Service) Name() string {
	return "watcher"
}

// Start runs the periodic watch loop in a separate goroutine. It's a no-op
// if the watcher is disabled or already started.
func (s *Service) Start() {
	if !s.cfg.Enabled {
		s.log.Info("watcher is not enabled")
		return
	}
	select {
	case <-s.quit:
		s.log.Info("watcher was stopped and can't be restarted")
		return
	default:
	}
	if !s.started.CompareAndSwap(false, true) {
		s.log.Info("watcher already started")
		return
	}
	s.log.Info("starting watcher",
		zap.Duration("interval", s.cfg.PollInterval),
		zap.Int("confirmations", s.cfg.MinConfirmations))
	go s.run()
}

// Shutdown stops the watch loop. A cycle in progress is not interrupted,
// Shutdown waits for it to complete. Stopped Service can't be started again.
func (s *Service) Shutdown() {
	if !s.started.CompareAndSwap(true, false) {
		return
	}
	s.log.Info("shutting down watcher")
	close(s.quit)
	<-s.done
}

func (s *Service) run() {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer func() {
		ticker.Stop()
		close(s.done)
	}()
	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			// In-flight cycles are never cancelled.
			_, _ = s.RunCycle(context.Background())
			// A tick that came while the cycle was running is dropped.
			select {
			case <-ticker.C:
				skippedTicks.Inc()
			default:
			}
		}
	}
}

// RunCycle performs a single watch cycle: it gets the list of candidate
// transactions from the node, fetches details for the ones not seen before,
// records them into the index and notifies subscribers. It returns new
// records (in the order of details fetch completion). Failure to get the
// candidate list fails the whole cycle leaving the index intact, failures to
// get details only exclude the particular transaction from this cycle.
func (s *Service) RunCycle(ctx context.Context) ([]*Record, error) {
	start := time.Now()
	defer func() { cycleTime.Observe(time.Since(start).Seconds()) }()

	unspent, err := s.gw.ListUnspent(ctx, s.cfg.MinConfirmations)
	if err != nil {
		s.log.Warn("failed to get candidate transactions", zap.Error(err))
		cyclesTotal.WithLabelValues(outcomeFailed).Inc()
		return nil, err
	}

	candidates := s.filterUnseen(unspent)
	records := s.fetchDetails(ctx, candidates)
	for _, r := range records {
		s.index.RecordSeen(r)
	}
	newRecords.Add(float64(len(records)))
	indexSize.Set(float64(s.index.Len()))
	cyclesTotal.WithLabelValues(outcomeOK).Inc()

	events := s.bc.Broadcast(records)
	s.log.Debug("watch cycle completed",
		zap.Int("candidates", len(unspent)),
		zap.Int("unseen", len(candidates)),
		zap.Int("new", len(records)),
		zap.Int("events", events),
		zap.Duration("time", time.Since(start)))
	return records, nil
}

// filterUnseen returns one item per transaction not yet present in the
// index. Several outputs of the same transaction are coalesced into the
// first one.
func (s *Service) filterUnseen(unspent []result.Unspent) []result.Unspent {
	var (
		res  = make([]result.Unspent, 0, len(unspent))
		seen = make(map[string]struct{}, len(unspent))
	)
	for _, u := range unspent {
		if _, ok := seen[u.TxID]; ok {
			continue
		}
		seen[u.TxID] = struct{}{}
		if s.index.HasSeen(u.TxID) {
			continue
		}
		res = append(res, u)
	}
	return res
}

// fetchDetails requests details for all candidates concurrently and waits
// for every request to complete. Failed requests are logged and skipped.
func (s *Service) fetchDetails(ctx context.Context, candidates []result.Unspent) []*Record {
	var (
		g       errgroup.Group
		resLock sync.Mutex
		res     = make([]*Record, 0, len(candidates))
	)
	g.SetLimit(s.cfg.MaxConcurrentFetches)
	for _, c := range candidates {
		c := c
		g.Go(func() error {
			tx, err := s.gw.GetTransaction(ctx, c.TxID)
			if err == nil && tx == nil {
				err = errNoDetails
			}
			if err != nil {
				fetchFailures.Inc()
				s.log.Warn("failed to get transaction details",
					zap.String("txid", c.TxID),
					zap.Error(err))
				return nil
			}
			r := &Record{
				TxID:    c.TxID,
				Summary: c,
				Details: tx,
				Account: tx.AccountName(),
			}
			resLock.Lock()
			res = append(res, r)
			resLock.Unlock()
			return nil
		})
	}
	_ = g.Wait() // Errors are handled by every routine.
	return res
}
