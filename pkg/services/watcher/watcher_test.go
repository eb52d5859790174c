package watcher

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/nspcc-dev/wsbitcoin-go/internal/fakenode"
	"github.com/nspcc-dev/wsbitcoin-go/pkg/btcrpc"
	"github.com/nspcc-dev/wsbitcoin-go/pkg/btcrpc/result"
	"github.com/nspcc-dev/wsbitcoin-go/pkg/config"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type event struct {
	group string
	name  string
	txids []string
}

// testNotifier records every broadcast.
type testNotifier struct {
	lock   sync.Mutex
	events []event
}

func (n *testNotifier) BroadcastToGroup(groupID string, name string, payload any) {
	p := payload.(btcrpc.NewTransactionsPayload)
	var txids []string
	for _, r := range p.Transactions.([]*Record) {
		txids = append(txids, r.TxID)
	}
	n.lock.Lock()
	n.events = append(n.events, event{group: groupID, name: name, txids: txids})
	n.lock.Unlock()
}

func (n *testNotifier) take() []event {
	n.lock.Lock()
	defer n.lock.Unlock()
	res := n.events
	n.events = nil
	return res
}

// byGroup converts events to a group->txids map, group order within a cycle
// is not defined.
func byGroup(t *testing.T, evs []event) map[string][]string {
	res := make(map[string][]string)
	for _, e := range evs {
		require.Equal(t, btcrpc.NewTransactionsEvent, e.name)
		_, dup := res[e.group]
		require.False(t, dup, "exactly one event per group is expected")
		sort.Strings(e.txids)
		res[e.group] = e.txids
	}
	return res
}

func testConfig() config.Watcher {
	return config.Watcher{
		Enabled:              true,
		PollInterval:         10 * time.Millisecond,
		MinConfirmations:     6,
		MaxConcurrentFetches: 4,
	}
}

func newTestService(t *testing.T) (*Service, *fakenode.FakeNode, *Index, *testNotifier) {
	var (
		node  = fakenode.New()
		index = NewIndex()
		ntf   = new(testNotifier)
	)
	s := New(testConfig(), node, index, ntf, zaptest.NewLogger(t))
	return s, node, index, ntf
}

func TestIndex(t *testing.T) {
	index := NewIndex()
	require.False(t, index.HasSeen("t1"))
	require.Equal(t, 0, index.Len())

	first := &Record{TxID: "t1", Account: "alice"}
	index.RecordSeen(first)
	require.True(t, index.HasSeen("t1"))
	require.Equal(t, 1, index.Len())

	index.RecordSeen(&Record{TxID: "t1", Account: "mallory"})
	require.Equal(t, 1, index.Len())
	r, ok := index.Get("t1")
	require.True(t, ok)
	require.Same(t, first, r)

	_, ok = index.Get("t2")
	require.False(t, ok)
}

func TestIndexConcurrent(t *testing.T) {
	var (
		index = NewIndex()
		wg    sync.WaitGroup
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, id := range []string{"a", "b", "c"} {
				if !index.HasSeen(id) {
					index.RecordSeen(&Record{TxID: id})
				}
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 3, index.Len())
}

func TestGroupID(t *testing.T) {
	require.Equal(t, "newtx:alice", GroupID("alice"))
	require.Equal(t, GroupPrefix, GroupID(""))
	require.NotEqual(t, GroupID(""), GroupID(" "))
}

func TestBroadcasterBatchesPerAccount(t *testing.T) {
	ntf := new(testNotifier)
	b := NewBroadcaster(ntf, zaptest.NewLogger(t))

	require.Equal(t, 0, b.Broadcast(nil))
	require.Empty(t, ntf.take())

	n := b.Broadcast([]*Record{
		{TxID: "t1", Account: "alice"},
		{TxID: "t2", Account: "bob"},
		{TxID: "t3", Account: "alice"},
		{TxID: "t4", Account: ""},
	})
	require.Equal(t, 3, n)
	require.Equal(t, []event{
		{group: "newtx:alice", name: btcrpc.NewTransactionsEvent, txids: []string{"t1", "t3"}},
		{group: "newtx:bob", name: btcrpc.NewTransactionsEvent, txids: []string{"t2"}},
		{group: "newtx:", name: btcrpc.NewTransactionsEvent, txids: []string{"t4"}},
	}, ntf.take())
}

func TestRunCycle(t *testing.T) {
	s, node, index, ntf := newTestService(t)
	node.AddTransaction("t1", "alice", 1, 6)
	node.AddTransaction("t2", "bob", 2, 10)

	records, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, len(records))
	require.Equal(t, 2, index.Len())
	require.Equal(t, map[string][]string{
		"newtx:alice": {"t1"},
		"newtx:bob":   {"t2"},
	}, byGroup(t, ntf.take()))

	r, ok := index.Get("t1")
	require.True(t, ok)
	require.Equal(t, "alice", r.Account)
	require.Equal(t, "t1", r.Details.TxID)
	require.Equal(t, "t1", r.Summary.TxID)

	t.Run("repeated", func(t *testing.T) {
		records, err := s.RunCycle(context.Background())
		require.NoError(t, err)
		require.Empty(t, records)
		require.Equal(t, 2, index.Len())
		require.Equal(t, 1, node.FetchCalls("t1"))
		require.Equal(t, 1, node.FetchCalls("t2"))
		require.Empty(t, ntf.take())
	})
}

func TestRunCycleEmpty(t *testing.T) {
	s, node, index, ntf := newTestService(t)
	records, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	require.Empty(t, records)
	require.Equal(t, 0, index.Len())
	require.Equal(t, 1, node.ListCalls())
	require.Empty(t, ntf.take())
}

func TestRunCycleThreshold(t *testing.T) {
	s, node, index, ntf := newTestService(t)
	node.AddTransaction("t1", "alice", 1, 5)

	_, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, index.Len())
	require.Equal(t, 0, node.TotalFetchCalls())
	require.Empty(t, ntf.take())
}

func TestRunCycleListFailure(t *testing.T) {
	s, node, index, ntf := newTestService(t)
	node.AddTransaction("t1", "alice", 1, 6)
	node.SetListError(errors.New("connection refused"))

	failed := testutil.ToFloat64(cyclesTotal.WithLabelValues(outcomeFailed))
	_, err := s.RunCycle(context.Background())
	require.Error(t, err)
	require.Equal(t, failed+1, testutil.ToFloat64(cyclesTotal.WithLabelValues(outcomeFailed)))
	require.Equal(t, 0, index.Len())
	require.Equal(t, 0, node.TotalFetchCalls())
	require.Empty(t, ntf.take())

	node.SetListError(nil)
	_, err = s.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, index.Len())
	require.Equal(t, map[string][]string{"newtx:alice": {"t1"}}, byGroup(t, ntf.take()))
}

func TestRunCycleFetchFailure(t *testing.T) {
	s, node, index, ntf := newTestService(t)
	node.AddTransaction("t1", "alice", 1, 6)
	node.AddTransaction("t2", "bob", 2, 6)
	node.SetFetchError("t2", errors.New("timeout"))

	failures := testutil.ToFloat64(fetchFailures)
	records, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, len(records))
	require.Equal(t, failures+1, testutil.ToFloat64(fetchFailures))
	require.True(t, index.HasSeen("t1"))
	require.False(t, index.HasSeen("t2"))
	require.Equal(t, map[string][]string{"newtx:alice": {"t1"}}, byGroup(t, ntf.take()))

	node.SetFetchError("t2", nil)
	records, err = s.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, len(records))
	require.Equal(t, "t2", records[0].TxID)
	require.Equal(t, 1, node.FetchCalls("t1"))
	require.Equal(t, 2, node.FetchCalls("t2"))
	require.Equal(t, map[string][]string{"newtx:bob": {"t2"}}, byGroup(t, ntf.take()))
}

func TestRunCycleCoalescesOutputs(t *testing.T) {
	s, node, index, ntf := newTestService(t)
	node.AddTransaction("t1", "alice", 1, 6)
	node.AddTransaction("t1", "alice", 3, 6) // Second output of the same transaction.
	node.AddTransaction("t3", "alice", 2, 7)

	records, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, len(records))
	require.Equal(t, 1, node.FetchCalls("t1"))
	require.Equal(t, 2, index.Len())
	r, _ := index.Get("t1")
	require.Equal(t, float64(1), r.Summary.Amount)
	require.Equal(t, map[string][]string{"newtx:alice": {"t1", "t3"}}, byGroup(t, ntf.take()))
}

func TestRunCycleAtMostOnce(t *testing.T) {
	s, node, _, ntf := newTestService(t)
	var mentions = make(map[string]int)
	for i, id := range []string{"a", "b", "c", "d", "e", "f"} {
		node.AddTransaction(id, []string{"alice", "bob", ""}[i%3], float64(i), 6)
		if i%2 == 0 {
			node.SetFetchError(id, errors.New("flaky"))
		}
	}
	for cycle := 0; cycle < 4; cycle++ {
		if cycle == 2 {
			for _, id := range []string{"a", "c", "e"} {
				node.SetFetchError(id, nil)
			}
		}
		_, err := s.RunCycle(context.Background())
		require.NoError(t, err)
		for _, e := range ntf.take() {
			for _, id := range e.txids {
				mentions[id]++
			}
		}
	}
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		require.Equal(t, 1, mentions[id], id)
	}
	require.Equal(t, 1, node.FetchCalls("b"))
	require.Equal(t, 3, node.FetchCalls("a"))
}

func TestRunCycleFanOut(t *testing.T) {
	var (
		node = fakenode.New()
		ntf  = new(testNotifier)
		cfg  = testConfig()
	)
	cfg.MaxConcurrentFetches = 3
	s := New(cfg, node, NewIndex(), ntf, zaptest.NewLogger(t))
	for _, id := range []string{"f1", "f2", "f3", "f4", "f5"} {
		node.AddTransaction(id, "alice", 1, 6)
	}
	node.SetDelays(0, 50*time.Millisecond)

	start := time.Now()
	records, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 5)
	// Two rounds of limited parallel fetches, not five sequential ones.
	require.Less(t, time.Since(start), 250*time.Millisecond)

	current, peak := node.FetchesInFlight()
	require.Equal(t, 0, current)
	require.Equal(t, cfg.MaxConcurrentFetches, peak)

	events := ntf.take()
	require.Len(t, events, 1)
	require.ElementsMatch(t, []string{"f1", "f2", "f3", "f4", "f5"}, events[0].txids)
}

type noDetailsGateway struct {
	*fakenode.FakeNode
	empty string
}

func (g noDetailsGateway) GetTransaction(ctx context.Context, txid string) (*result.Transaction, error) {
	if txid == g.empty {
		return nil, nil
	}
	return g.FakeNode.GetTransaction(ctx, txid)
}

func TestRunCycleNoDetails(t *testing.T) {
	node := fakenode.New()
	node.AddTransaction("good", "alice", 1, 6)
	node.AddTransaction("empty", "alice", 1, 6)
	index := NewIndex()
	s := New(testConfig(), noDetailsGateway{FakeNode: node, empty: "empty"}, index, new(testNotifier), zaptest.NewLogger(t))

	failures := testutil.ToFloat64(fetchFailures)
	records, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "good", records[0].TxID)
	require.False(t, index.HasSeen("empty"))
	require.Equal(t, failures+1, testutil.ToFloat64(fetchFailures))
}

func TestServiceSkipsOverlappingTicks(t *testing.T) {
	cfg := testConfig()
	cfg.PollInterval = 20 * time.Millisecond
	node := fakenode.New()
	node.SetDelays(200*time.Millisecond, 0)
	s := New(cfg, node, NewIndex(), new(testNotifier), zaptest.NewLogger(t))

	skipped := testutil.ToFloat64(skippedTicks)
	s.Start()
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(skippedTicks) > skipped && node.ListCalls() >= 2
	}, 3*time.Second, 10*time.Millisecond)
	s.Shutdown()

	current, peak := node.ListsInFlight()
	require.Equal(t, 0, current)
	require.Equal(t, 1, peak)
}

func TestServiceStartShutdown(t *testing.T) {
	s, node, index, ntf := newTestService(t)
	node.AddTransaction("t1", "alice", 1, 6)
	node.SetListError(errors.New("node is down"))

	s.Start()
	s.Start() // No-op.

	// Failing cycles don't stop the timer.
	require.Eventually(t, func() bool { return node.ListCalls() >= 2 }, time.Second, 5*time.Millisecond)
	node.SetListError(nil)
	require.Eventually(t, func() bool { return index.Len() == 1 }, time.Second, 5*time.Millisecond)

	s.Shutdown()
	s.Shutdown() // No-op.
	calls := node.ListCalls()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, calls, node.ListCalls())

	s.Start() // Can't be restarted.
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, calls, node.ListCalls())
	require.Equal(t, map[string][]string{"newtx:alice": {"t1"}}, byGroup(t, ntf.take()))
}

func TestServiceDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	node := fakenode.New()
	s := New(cfg, node, NewIndex(), new(testNotifier), zaptest.NewLogger(t))
	require.Equal(t, "watcher", s.Name())
	s.Start()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 0, node.ListCalls())
	s.Shutdown()
}
