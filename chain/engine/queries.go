package engine

import (
	"fmt"
	"strings"

	"github.com/deltachain/core/chain/model"
)

// AccountByName, AccountByAddress, AssetBySymbol, and OrderByID delegate
// straight to the committed view; the engine adds no caching layer of
// its own (spec.md §9: in-memory derived indexes are rebuilt from
// persistent state and are never the source of truth).

func (e *Engine) AccountByName(name string) (model.Account, bool, error) {
	return e.view.AccountByName(name)
}

func (e *Engine) AccountByAddress(address string) (model.Account, bool, error) {
	return e.view.AccountByAddress(address)
}

func (e *Engine) AssetBySymbol(symbol string) (model.Asset, bool, error) {
	return e.view.AssetBySymbol(symbol)
}

func (e *Engine) OrderByID(id string) (model.Order, bool, error) {
	return e.view.OrderByID(id)
}

// TransactionByID finds a transaction's persisted record (spec.md §3's
// transaction_by_id lookup) by its content-hash id, unless it has been
// purged already as expired (spec.md §4.6 final line) or unwound by a
// reorg popping the block that contained it.
func (e *Engine) TransactionByID(id string) (model.TxRecord, bool, error) {
	return e.view.TransactionByID(id)
}

// CalculateSupply recomputes an asset's current supply by exhaustive
// scan of balances, pay-balances, and collateral, per spec.md §6.
func (e *Engine) CalculateSupply(asset model.AssetID) (uint64, error) {
	var total uint64
	if err := e.view.AllAccounts(func(a model.Account) bool {
		if err := e.view.BalancesByOwner(a.ID, func(b model.Balance) bool {
			if b.AssetID == asset {
				total += b.Amount
			}
			return true
		}); err != nil {
			return false
		}
		if a.Delegate != nil && asset == model.CoreAssetID {
			total += a.Delegate.PayBalance
		}
		return true
	}); err != nil {
		return 0, err
	}
	asst, found, err := e.view.AssetByID(asset)
	if err != nil {
		return 0, err
	}
	if found {
		total += asst.CollectedFees
	}
	return total, nil
}

// CalculateDebt recomputes outstanding market-issued debt for asset from
// resting collateral records.
func (e *Engine) CalculateDebt(asset model.AssetID, includeInterest bool) (uint64, error) {
	var total uint64
	pairs, err := e.view.AllOrderPairs()
	if err != nil {
		return 0, err
	}
	for _, pair := range pairs {
		if pair[1] != asset {
			continue
		}
		if err := e.view.OrdersForPair(pair[0], pair[1], func(o model.Order) bool {
			if o.Kind != model.OrderShort {
				return true
			}
			total += o.CollateralAmount
			if includeInterest {
				total += o.PayoffBalance
			}
			return true
		}); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// GenerateSnapshot returns claimer->amount of asset for every
// signature-claim balance of asset, an accounting audit aid.
func (e *Engine) GenerateSnapshot(asset model.AssetID) (map[model.AccountID]uint64, error) {
	out := make(map[model.AccountID]uint64)
	if err := e.view.AllAccounts(func(a model.Account) bool {
		err := e.view.BalancesByOwner(a.ID, func(b model.Balance) bool {
			if b.AssetID == asset && b.Claim == model.ClaimSignature {
				out[a.ID] += b.Amount
			}
			return true
		})
		return err == nil
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// ExportForkGraph emits a DOT graph of every fork node between start and
// end block numbers.
func (e *Engine) ExportForkGraph(start, end uint64) (string, error) {
	var b strings.Builder
	b.WriteString("digraph forks {\n")
	for n := start; n <= end; n++ {
		ids, err := e.forks.BlocksAtNum(n)
		if err != nil {
			return "", err
		}
		for _, id := range ids {
			node, found, err := e.forks.Node(id)
			if err != nil {
				return "", err
			}
			if !found {
				continue
			}
			style := "black"
			switch node.IsValid {
			case model.ValidFalse:
				style = "red"
			case model.ValidTrue:
				if node.IsIncluded {
					style = "green"
				}
			}
			fmt.Fprintf(&b, "  %q -> %q [color=%s];\n", node.PreviousID, node.BlockID, style)
		}
	}
	b.WriteString("}\n")
	return b.String(), nil
}
