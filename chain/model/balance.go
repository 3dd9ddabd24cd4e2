package model

// SnapshotInfo records the balance/time a vesting balance was snapshotted
// at, used to compute how much of a vesting balance is currently claimable.
type SnapshotInfo struct {
	SnapshotAmount uint64 `json:"snapshot_amount"`
	SnapshotAt     int64  `json:"snapshot_at"`
}

// Balance is one owned amount of one asset under one claim condition.
type Balance struct {
	ID            BalanceID     `json:"id"`
	Owner         AccountID     `json:"owner"`
	AssetID       AssetID       `json:"asset_id"`
	Amount        uint64        `json:"amount"`
	Claim         ClaimKind     `json:"claim"`
	LastUpdatedAt int64         `json:"last_updated_at"`
	Snapshot      *SnapshotInfo `json:"snapshot,omitempty"`
	SlateID       uint64        `json:"slate_id"`
}

// IsEmpty reports whether the balance carries a zero amount, i.e. is a
// candidate to be moved from the dense index into the empty-balance index.
func (b Balance) IsEmpty() bool { return b.Amount == 0 }
