package result

// Transaction is the gettransaction node call result.
type Transaction struct {
	TxID          string              `json:"txid"`
	Amount        float64             `json:"amount"`
	Fee           float64             `json:"fee,omitempty"`
	Confirmations int64               `json:"confirmations"`
	BlockHash     string              `json:"blockhash,omitempty"`
	BlockIndex    int64               `json:"blockindex,omitempty"`
	BlockTime     int64               `json:"blocktime,omitempty"`
	Time          int64               `json:"time"`
	TimeReceived  int64               `json:"timereceived"`
	Details       []TransactionDetail `json:"details"`
	Hex           string              `json:"hex,omitempty"`
}

// TransactionDetail is a per-output part of Transaction.
type TransactionDetail struct {
	Account  string  `json:"account,omitempty"`
	Address  string  `json:"address,omitempty"`
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
	Label    string  `json:"label,omitempty"`
	Vout     uint32  `json:"vout"`
	Fee      float64 `json:"fee,omitempty"`
}

// AccountName returns the name of the account owning the transaction, it's
// the first non-empty account (or label) of the details list. An empty
// string is a valid account name (the default one).
func (t *Transaction) AccountName() string {
	for _, d := range t.Details {
		if d.Account != "" {
			return d.Account
		}
		if d.Label != "" {
			return d.Label
		}
	}
	return ""
}
