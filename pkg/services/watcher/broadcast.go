package watcher

import (
	"github.com/nspcc-dev/wsbitcoin-go/pkg/btcrpc"
	"go.uber.org/zap"
)

// GroupPrefix is prepended to account names to get subscriber group
// identifiers. Nothing else in the relay uses group names starting with it,
// so any account name (including an empty one) is safe to use.
const GroupPrefix = "newtx:"

// GroupID returns the subscriber group identifier for the account.
func GroupID(account string) string {
	return GroupPrefix + account
}

// Notifier delivers events to groups of relay clients. Delivery is
// asynchronous and broadcasting to an empty group is a no-op.
type Notifier interface {
	BroadcastToGroup(groupID string, event string, payload any)
}

// Broadcaster sends new transactions to account subscribers.
type Broadcaster struct {
	ntf Notifier
	log *zap.Logger
}

// NewBroadcaster creates a Broadcaster using the given Notifier.
func NewBroadcaster(ntf Notifier, log *zap.Logger) *Broadcaster {
	return &Broadcaster{
		ntf: ntf,
		log: log,
	}
}

// Broadcast groups records by account and emits a single newTransactions
// event per account containing all of its records in the order given.
// Accounts are notified in the order of their first appearance. It returns
// the number of events emitted.
func (b *Broadcaster) Broadcast(records []*Record) int {
	var (
		order    []string
		accounts = make(map[string][]*Record)
	)
	for _, r := range records {
		if _, ok := accounts[r.Account]; !ok {
			order = append(order, r.Account)
		}
		accounts[r.Account] = append(accounts[r.Account], r)
	}
	for _, acc := range order {
		b.log.Debug("notifying account subscribers",
			zap.String("account", acc),
			zap.Int("transactions", len(accounts[acc])))
		b.ntf.BroadcastToGroup(GroupID(acc), btcrpc.NewTransactionsEvent,
			btcrpc.NewTransactionsPayload{Transactions: accounts[acc]})
	}
	return len(order)
}
