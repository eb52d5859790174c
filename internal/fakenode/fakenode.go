package fakenode

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/nspcc-dev/wsbitcoin-go/pkg/btcrpc"
	"github.com/nspcc-dev/wsbitcoin-go/pkg/btcrpc/result"
)

// ErrUnknownTx is returned for transactions the FakeNode doesn't have.
var ErrUnknownTx = btcrpc.NewError(-5, "Invalid or non-wallet transaction id", "")

// FakeNode is a scripted ledger node. It can be used directly as a gateway
// or served via HTTP as a JSON-RPC endpoint. It's safe for concurrent use.
type FakeNode struct {
	lock     sync.Mutex
	unspent  []result.Unspent
	txs      map[string]*result.Transaction
	listErr  error
	fetchErr map[string]error

	listCalls  int
	fetchCalls map[string]int
	calls      []string

	listDelay     time.Duration
	fetchDelay    time.Duration
	listInFlight  int
	listPeak      int
	fetchInFlight int
	fetchPeak     int

	// CallF handles all methods that are not listunspent or gettransaction,
	// if set.
	CallF func(method string, params []json.RawMessage) (json.RawMessage, error)
}

// New creates an empty FakeNode.
func New() *FakeNode {
	return &FakeNode{
		txs:        make(map[string]*result.Transaction),
		fetchErr:   make(map[string]error),
		fetchCalls: make(map[string]int),
	}
}

// AddTransaction makes the node return the transaction for the given account
// in both listunspent and gettransaction results.
func (n *FakeNode) AddTransaction(txid string, account string, amount float64, confirmations int64) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.unspent = append(n.unspent, result.Unspent{
		TxID:          txid,
		Account:       account,
		Amount:        amount,
		Confirmations: confirmations,
		Spendable:     true,
	})
	n.txs[txid] = &result.Transaction{
		TxID:          txid,
		Amount:        amount,
		Confirmations: confirmations,
		Details: []result.TransactionDetail{{
			Account:  account,
			Category: "receive",
			Amount:   amount,
		}},
	}
}

// SetListError makes listunspent fail with the given error (nil resets it).
func (n *FakeNode) SetListError(err error) {
	n.lock.Lock()
	n.listErr = err
	n.lock.Unlock()
}

// SetFetchError makes gettransaction fail for the given transaction (nil
// resets it).
func (n *FakeNode) SetFetchError(txid string, err error) {
	n.lock.Lock()
	if err == nil {
		delete(n.fetchErr, txid)
	} else {
		n.fetchErr[txid] = err
	}
	n.lock.Unlock()
}

// SetDelays makes every listunspent and gettransaction call take at least
// the given time. Calls are not serialized while waiting.
func (n *FakeNode) SetDelays(list, fetch time.Duration) {
	n.lock.Lock()
	n.listDelay = list
	n.fetchDelay = fetch
	n.lock.Unlock()
}

// FetchesInFlight returns the number of gettransaction calls in progress and
// the maximum number of simultaneous calls seen so far.
func (n *FakeNode) FetchesInFlight() (current int, peak int) {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.fetchInFlight, n.fetchPeak
}

// ListsInFlight returns the number of listunspent calls in progress and the
// maximum number of simultaneous calls seen so far.
func (n *FakeNode) ListsInFlight() (current int, peak int) {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.listInFlight, n.listPeak
}

// ListCalls returns the number of listunspent calls made.
func (n *FakeNode) ListCalls() int {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.listCalls
}

// FetchCalls returns the number of gettransaction calls made for the given
// transaction.
func (n *FakeNode) FetchCalls(txid string) int {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.fetchCalls[txid]
}

// TotalFetchCalls returns the number of gettransaction calls made.
func (n *FakeNode) TotalFetchCalls() int {
	n.lock.Lock()
	defer n.lock.Unlock()
	var res int
	for _, c := range n.fetchCalls {
		res += c
	}
	return res
}

// Calls returns the list of methods called via Call.
func (n *FakeNode) Calls() []string {
	n.lock.Lock()
	defer n.lock.Unlock()
	return append([]string(nil), n.calls...)
}

// ListUnspent implements watcher.Gateway. Confirmations threshold is
// honored.
func (n *FakeNode) ListUnspent(_ context.Context, minConf int) ([]result.Unspent, error) {
	n.lock.Lock()
	n.listCalls++
	n.listInFlight++
	if n.listInFlight > n.listPeak {
		n.listPeak = n.listInFlight
	}
	delay := n.listDelay
	n.lock.Unlock()

	time.Sleep(delay)

	n.lock.Lock()
	defer n.lock.Unlock()
	n.listInFlight--
	if n.listErr != nil {
		return nil, n.listErr
	}
	res := make([]result.Unspent, 0, len(n.unspent))
	for _, u := range n.unspent {
		if u.Confirmations >= int64(minConf) {
			res = append(res, u)
		}
	}
	return res, nil
}

// GetTransaction implements watcher.Gateway.
func (n *FakeNode) GetTransaction(_ context.Context, txid string) (*result.Transaction, error) {
	n.lock.Lock()
	n.fetchCalls[txid]++
	n.fetchInFlight++
	if n.fetchInFlight > n.fetchPeak {
		n.fetchPeak = n.fetchInFlight
	}
	delay := n.fetchDelay
	n.lock.Unlock()

	time.Sleep(delay)

	n.lock.Lock()
	defer n.lock.Unlock()
	n.fetchInFlight--
	if err := n.fetchErr[txid]; err != nil {
		return nil, err
	}
	tx, ok := n.txs[txid]
	if !ok {
		return nil, ErrUnknownTx
	}
	cp := *tx
	return &cp, nil
}

// Call implements generic node method invocation.
func (n *FakeNode) Call(ctx context.Context, method string, params []json.RawMessage) (json.RawMessage, error) {
	n.lock.Lock()
	n.calls = append(n.calls, method)
	callF := n.CallF
	n.lock.Unlock()

	var (
		res any
		err error
	)
	switch method {
	case "listunspent":
		var minConf int
		if len(params) > 0 {
			if err := json.Unmarshal(params[0], &minConf); err != nil {
				return nil, btcrpc.ErrInvalidParams
			}
		}
		res, err = n.ListUnspent(ctx, minConf)
	case "gettransaction":
		var txid string
		if len(params) == 0 || json.Unmarshal(params[0], &txid) != nil {
			return nil, btcrpc.ErrInvalidParams
		}
		res, err = n.GetTransaction(ctx, txid)
	default:
		if callF == nil {
			return nil, btcrpc.NewError(btcrpc.MethodNotFoundCode, "Method not found", "")
		}
		return callF(method, params)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(res)
}

// ServeHTTP implements http.Handler, it serves requests the way bitcoind
// does.
func (n *FakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var (
		req  = new(btcrpc.Request)
		resp = new(btcrpc.Response)
	)
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	resp.ID, _ = json.Marshal(req.ID)
	w.Header().Set("Content-Type", "application/json")
	res, err := n.Call(r.Context(), req.Method, req.Params)
	if err != nil {
		var rpcErr *btcrpc.Error
		if !errors.As(err, &rpcErr) {
			rpcErr = btcrpc.NewInternalServerError(err.Error())
		}
		resp.Error = rpcErr
		resp.Result = json.RawMessage("null")
		w.WriteHeader(http.StatusInternalServerError)
	} else {
		resp.Result = res
	}
	_ = json.NewEncoder(w).Encode(resp)
}
