/*
Package btcrpc contains a set of types used for communication with bitcoind
JSON-RPC servers and with websocket relay clients. It defines basic
request/response types of the node protocol, relay message envelopes and a
set of errors shared by both sides.
*/
package btcrpc

import (
	"encoding/json"
)

const (
	// JSONRPCVersion is the protocol version used for node requests. bitcoind
	// accepts both 1.0 and 2.0 requests, 1.0 is understood by every version.
	JSONRPCVersion = "1.0"
)

type (
	// Request represents a JSON-RPC request sent to the ledger node.
	Request struct {
		// JSONRPC is the protocol version.
		JSONRPC string `json:"jsonrpc"`
		// Method is the method being called.
		Method string `json:"method"`
		// Params is a set of method-specific parameters passed to the call.
		// bitcoind expects positional parameters, so it's always an array.
		Params []json.RawMessage `json:"params"`
		// ID is an identifier associated with this request.
		ID uint64 `json:"id"`
	}

	// Response represents a raw JSON-RPC response returned by the ledger
	// node. bitcoind always sets both result and error fields, one of them
	// being null.
	Response struct {
		ID     json.RawMessage `json:"id"`
		Error  *Error          `json:"error"`
		Result json.RawMessage `json:"result"`
	}
)

// Event names used in relay websocket messages.
const (
	// APICallEvent is the only inbound event, it carries an APICall.
	APICallEvent = "apiCall"
	// APIResponseEvent is sent back for every successful APICall.
	APIResponseEvent = "apiResponse"
	// APIErrorEvent is sent back for every failed APICall.
	APIErrorEvent = "apiError"
	// NewTransactionsEvent carries NewTransactionsPayload to account
	// subscribers.
	NewTransactionsEvent = "newTransactions"
)

type (
	// Message is a websocket message envelope used in both directions.
	Message struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data,omitempty"`
	}

	// APICall is an action invocation request from a relay client. Action
	// is either an internal relay action or a ledger node method name, Args
	// are passed to it positionally.
	APICall struct {
		Action string            `json:"action"`
		Args   []json.RawMessage `json:"args"`
	}

	// APIResponse is a successful APICall result.
	APIResponse struct {
		Action   string            `json:"action"`
		CallArgs []json.RawMessage `json:"callArgs"`
		Result   any               `json:"result"`
	}

	// APIError is a failed APICall result.
	APIError struct {
		Action   string            `json:"action"`
		CallArgs []json.RawMessage `json:"callArgs"`
		Error    *Error            `json:"error"`
	}

	// NewTransactionsPayload is a batch of newly confirmed transactions
	// for a single account. Transactions are marshaled as is, so any
	// JSON-compatible record type can be used.
	NewTransactionsPayload struct {
		Transactions any `json:"transactions"`
	}
)

// NewMessage creates a Message for the given event with data marshaled to
// JSON.
func NewMessage(event string, data any) (*Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Message{Event: event, Data: raw}, nil
}

// apiCallAux is used to decode APICall leniently: args that are not an
// array are ignored.
type apiCallAux struct {
	Action json.RawMessage `json:"action"`
	Args   json.RawMessage `json:"args"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It returns
// ErrInvalidAction if the action is missing, empty or not a string. Args
// that are not an array are treated as no args.
func (c *APICall) UnmarshalJSON(data []byte) error {
	aux := new(apiCallAux)
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	var action *string
	if err := json.Unmarshal(aux.Action, &action); err != nil || action == nil || *action == "" {
		return ErrInvalidAction
	}
	c.Action = *action
	c.Args = []json.RawMessage{}
	if len(aux.Args) != 0 {
		var args []json.RawMessage
		if err := json.Unmarshal(aux.Args, &args); err == nil && args != nil {
			c.Args = args
		}
	}
	return nil
}
