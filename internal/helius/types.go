package helius

import (
	"bytes"
	"encoding/json"
)

// Transaction is one enriched transaction as returned by the Helius
// /addresses/{address}/transactions endpoint. Only the fields the parser
// consumes are declared.
type Transaction struct {
	Signature        string           `json:"signature"`
	Timestamp        int64            `json:"timestamp"`
	Type             string           `json:"type"`
	Source           string           `json:"source"`
	TransactionError json.RawMessage  `json:"transactionError,omitempty"`
	NativeTransfers  []NativeTransfer `json:"nativeTransfers,omitempty"`
	TokenTransfers   []TokenTransfer  `json:"tokenTransfers,omitempty"`
}

// Failed reports whether the transaction carries a transaction-level error.
func (t Transaction) Failed() bool {
	return len(t.TransactionError) > 0 && !bytes.Equal(t.TransactionError, []byte("null"))
}

// NativeTransfer is one SOL movement inside a transaction. Amount is in
// lamports.
type NativeTransfer struct {
	FromUserAccount string `json:"fromUserAccount"`
	ToUserAccount   string `json:"toUserAccount"`
	Amount          int64  `json:"amount"`
}

// TokenTransfer is one SPL token movement inside a transaction. TokenAmount
// is already in display units.
type TokenTransfer struct {
	FromUserAccount  string  `json:"fromUserAccount"`
	ToUserAccount    string  `json:"toUserAccount"`
	FromTokenAccount string  `json:"fromTokenAccount"`
	ToTokenAccount   string  `json:"toTokenAccount"`
	TokenAmount      float64 `json:"tokenAmount"`
	Mint             string  `json:"mint"`
}
