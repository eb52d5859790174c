package relay

import (
	"encoding/json"

	"github.com/nspcc-dev/wsbitcoin-go/pkg/btcrpc"
	"github.com/nspcc-dev/wsbitcoin-go/pkg/services/watcher"
)

// subscribeNewTx adds the session to the subscriber group of the account
// given in the first argument. Repeated subscriptions are harmless, there is
// no way to unsubscribe other than disconnecting.
func (s *Server) subscribeNewTx(sess *session, args []json.RawMessage) (any, *btcrpc.Error) {
	if len(args) == 0 {
		return nil, btcrpc.ErrInvalidSubscription
	}
	var account *string
	if err := json.Unmarshal(args[0], &account); err != nil || account == nil {
		return nil, btcrpc.WrapErrorWithData(btcrpc.ErrInvalidSubscription, "account name must be a string")
	}
	s.groups.join(sess, watcher.GroupID(*account))
	return true, nil
}
