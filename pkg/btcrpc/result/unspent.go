package result

// Unspent is a single item of the listunspent node call result.
type Unspent struct {
	TxID          string  `json:"txid"`
	Vout          uint32  `json:"vout"`
	Address       string  `json:"address,omitempty"`
	Account       string  `json:"account,omitempty"`
	Label         string  `json:"label,omitempty"`
	ScriptPubKey  string  `json:"scriptPubKey,omitempty"`
	Amount        float64 `json:"amount"`
	Confirmations int64   `json:"confirmations"`
	Spendable     bool    `json:"spendable"`
}

// AccountName returns the account this output belongs to. Newer node
// versions dropped accounts in favour of labels, so the label is used when
// there is no account.
func (u Unspent) AccountName() string {
	if u.Account != "" {
		return u.Account
	}
	return u.Label
}
