package rpcclient

import (
	"context"

	"github.com/nspcc-dev/wsbitcoin-go/pkg/btcrpc/result"
)

// ListUnspent returns unspent wallet outputs having at least minConf
// confirmations.
func (c *Client) ListUnspent(ctx context.Context, minConf int) ([]result.Unspent, error) {
	var (
		params = []any{minConf}
		resp   = []result.Unspent{}
	)
	if err := c.performRequest(ctx, "listunspent", params, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetTransaction returns detailed information about the given wallet
// transaction.
func (c *Client) GetTransaction(ctx context.Context, txid string) (*result.Transaction, error) {
	var (
		params = []any{txid}
		resp   = new(result.Transaction)
	)
	if err := c.performRequest(ctx, "gettransaction", params, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetBlockCount returns the number of blocks in the longest chain.
func (c *Client) GetBlockCount(ctx context.Context) (int64, error) {
	var resp int64
	if err := c.performRequest(ctx, "getblockcount", nil, &resp); err != nil {
		return 0, err
	}
	return resp, nil
}
