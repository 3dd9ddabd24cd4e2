package model

// ActiveKeyEntry is one entry of an account's owner-ordered active key
// history, used to validate signatures against the key that was active at
// the time a transaction was signed.
type ActiveKeyEntry struct {
	Key        string `json:"key"`
	ActiveFrom int64  `json:"active_from"`
}

// DelegateInfo holds the block-production bookkeeping for an account that
// has registered as a delegate.
type DelegateInfo struct {
	PayRatePercent        uint8   `json:"pay_rate_percent"`
	BlocksProduced        uint64  `json:"blocks_produced"`
	BlocksMissed          uint64  `json:"blocks_missed"`
	LastBlockNumProduced  uint64  `json:"last_block_num_produced"`
	NextSecretHash        string  `json:"next_secret_hash"`
	PayBalance            uint64  `json:"pay_balance"`
	TotalPaid             uint64  `json:"total_paid"`
	VotesFor              int64   `json:"votes_for"`
}

// Account is the chain-state record for one registered account.
type Account struct {
	ID               AccountID        `json:"id"`
	Name             string           `json:"name"`
	OwnerKey         string           `json:"owner_key"`
	ActiveKeys       []ActiveKeyEntry `json:"active_keys"`
	Address          string           `json:"address"`
	RegisteredAt     int64            `json:"registered_at"`
	LastUpdatedAt    int64            `json:"last_updated_at"`
	Delegate         *DelegateInfo    `json:"delegate,omitempty"`

	// VoteSlate and VoteWeight are this account's most recently cast
	// ballot (vote_delegate op): the delegates it last voted for and
	// the core-asset weight that vote carried, kept so a later vote can
	// undo its own prior contribution to VotesFor before applying the
	// new one.
	VoteSlate  []AccountID `json:"vote_slate,omitempty"`
	VoteWeight uint64      `json:"vote_weight,omitempty"`
}

// IsDelegate reports whether the account has registered delegate info.
func (a Account) IsDelegate() bool { return a.Delegate != nil }

// ActiveKeyAt returns the key that was active at the given time.
func (a Account) ActiveKeyAt(at int64) string {
	key := a.OwnerKey
	for _, e := range a.ActiveKeys {
		if e.ActiveFrom <= at {
			key = e.Key
		}
	}
	return key
}

// VoteKey orders the votes index by (net-votes, account-id), descending on
// votes so the top-N scan walks highest-voted delegates first.
type VoteKey struct {
	NetVotes  int64
	AccountID AccountID
}
