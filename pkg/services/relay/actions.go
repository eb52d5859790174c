package relay

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/nspcc-dev/wsbitcoin-go/pkg/btcrpc"
	"github.com/nspcc-dev/wsbitcoin-go/pkg/rpcclient"
)

type (
	// internalHandler is an action handled by the relay itself.
	internalHandler func(s *Server, sess *session, args []json.RawMessage) (any, *btcrpc.Error)

	// action is either an internal action (with handler set) or a node call
	// forwarded as is (handler is nil).
	action struct {
		name    string
		handler internalHandler
	}

	// actionSet is the closed set of actions accepted by the relay, it's
	// built once on server creation.
	actionSet struct {
		actions  map[string]action
		internal []string
		node     []string
	}
)

// Internal action names.
const (
	listAvailableActionsName = "listavailableactions"
	subscribeNewTxName       = "subscribenewtx"
)

// Forwarded returns true for actions forwarded to the node.
func (a action) Forwarded() bool {
	return a.handler == nil
}

func newActionSet() *actionSet {
	var set = &actionSet{
		actions: make(map[string]action),
	}
	for name, h := range map[string]internalHandler{
		listAvailableActionsName: (*Server).listAvailableActions,
		subscribeNewTxName:       (*Server).subscribeNewTx,
	} {
		set.actions[name] = action{name: name, handler: h}
		set.internal = append(set.internal, name)
	}
	sort.Strings(set.internal)
	for _, name := range rpcclient.Commands() {
		if _, ok := set.actions[name]; ok {
			continue
		}
		set.actions[name] = action{name: name}
		set.node = append(set.node, name)
	}
	return set
}

// resolve returns an action for the given name (in any case).
func (a *actionSet) resolve(name string) (action, bool) {
	act, ok := a.actions[strings.ToLower(name)]
	return act, ok
}

// names returns all accepted action names, internal ones go first.
func (a *actionSet) names() []string {
	res := make([]string, 0, len(a.internal)+len(a.node))
	res = append(res, a.internal...)
	return append(res, a.node...)
}

// listAvailableActions returns the list of supported actions.
func (s *Server) listAvailableActions(_ *session, _ []json.RawMessage) (any, *btcrpc.Error) {
	return s.actions.names(), nil
}

// ActionNames returns the list of actions supported by the relay in the
// same order listavailableactions returns them.
func ActionNames() []string {
	return newActionSet().names()
}
