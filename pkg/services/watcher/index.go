package watcher

import (
	"sync"

	"github.com/nspcc-dev/wsbitcoin-go/pkg/btcrpc/result"
)

// Record is a transaction that has reached the confirmation threshold and
// was reported to subscribers. It's never changed after creation.
type Record struct {
	TxID string `json:"txid"`
	// Summary is the first listunspent item the transaction was seen in.
	Summary result.Unspent `json:"summary"`
	// Details is the gettransaction result.
	Details *result.Transaction `json:"details"`
	// Account is the account name taken from Details.
	Account string `json:"account"`
}

// Index is a set of transactions that were already reported. Records are
// only added there, they're never removed or replaced, so a transaction
// disappearing from the node (like after chain reorganization) is not
// noticed and its reappearance is not reported again.
type Index struct {
	lock    sync.RWMutex
	records map[string]*Record
}

// NewIndex creates an empty Index.
func NewIndex() *Index {
	return &Index{
		records: make(map[string]*Record),
	}
}

// HasSeen checks whether the transaction was recorded.
func (i *Index) HasSeen(txid string) bool {
	i.lock.RLock()
	_, ok := i.records[txid]
	i.lock.RUnlock()
	return ok
}

// RecordSeen adds the record to the index. It's a no-op for already recorded
// transactions, the first record is kept.
func (i *Index) RecordSeen(r *Record) {
	i.lock.Lock()
	if _, ok := i.records[r.TxID]; !ok {
		i.records[r.TxID] = r
	}
	i.lock.Unlock()
}

// Get returns the record for the given transaction.
func (i *Index) Get(txid string) (*Record, bool) {
	i.lock.RLock()
	defer i.lock.RUnlock()
	r, ok := i.records[txid]
	return r, ok
}

// Len returns the number of recorded transactions.
func (i *Index) Len() int {
	i.lock.RLock()
	defer i.lock.RUnlock()
	return len(i.records)
}
