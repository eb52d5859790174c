package result

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransactionAccountName(t *testing.T) {
	var cases = map[string]struct {
		details []TransactionDetail
		name    string
	}{
		"no details":    {nil, ""},
		"default":       {[]TransactionDetail{{Category: "receive"}}, ""},
		"account":       {[]TransactionDetail{{Account: "alice"}}, "alice"},
		"label":         {[]TransactionDetail{{Label: "bob"}}, "bob"},
		"first matters": {[]TransactionDetail{{}, {Account: "carol"}, {Account: "dave"}}, "carol"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			tx := &Transaction{Details: tc.details}
			require.Equal(t, tc.name, tx.AccountName())
		})
	}
}

func TestUnspentAccountName(t *testing.T) {
	require.Equal(t, "", Unspent{}.AccountName())
	require.Equal(t, "alice", Unspent{Account: "alice", Label: "bob"}.AccountName())
	require.Equal(t, "bob", Unspent{Label: "bob"}.AccountName())
}

func TestTransactionUnmarshal(t *testing.T) {
	const raw = `{
		"amount": 0.5,
		"confirmations": 7,
		"blockhash": "000000000000000000029f4c1c3a2e2b",
		"blocktime": 1369170000,
		"txid": "t1",
		"time": 1369160000,
		"timereceived": 1369160001,
		"details": [{"account": "alice", "address": "1Alice", "category": "receive", "amount": 0.5, "vout": 1}],
		"hex": "0100"
	}`
	tx := new(Transaction)
	require.NoError(t, json.Unmarshal([]byte(raw), tx))
	require.Equal(t, "t1", tx.TxID)
	require.Equal(t, int64(7), tx.Confirmations)
	require.Equal(t, "alice", tx.AccountName())
	require.Equal(t, uint32(1), tx.Details[0].Vout)
}
