package model

import "encoding/json"

// Transaction is the unsigned body of a user transaction: a batch of
// operations sharing one fee payer, nonce, and expiration.
type Transaction struct {
	ChainID    uint16      `json:"chain_id"`
	Signer     AccountID   `json:"signer"`
	Nonce      uint64      `json:"nonce"`
	Expiration int64       `json:"expiration"`
	RelayFee   uint64      `json:"relay_fee"`
	Operations []Operation `json:"operations"`
}

// SignedTransaction pairs a Transaction with the signer's signature over
// its packed bytes.
type SignedTransaction struct {
	Transaction
	Signature string `json:"signature"`
}

// ID is the content hash of the signed transaction, used for the
// unique-transaction set and as the mempool/storage key.
func (tx SignedTransaction) ID() string {
	return HashBytes(append([]byte(tx.Signature), packTransaction(tx.Transaction)...))
}

func packTransaction(tx Transaction) []byte {
	b, err := json.Marshal(tx)
	if err != nil {
		return nil
	}
	return []byte(HashBytes(b))
}

// TxRecord is how a transaction is stored once it has been included in a
// block: its position plus the fees the evaluator collected for it.
type TxRecord struct {
	BlockNum        uint64 `json:"block_num"`
	PositionInBlock int    `json:"position_in_block"`
	Tx              SignedTransaction `json:"tx"`
	CollectedFees   uint64 `json:"collected_fees"`
}
