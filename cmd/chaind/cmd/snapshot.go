package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/deltachain/core/chain/chainstate"
	"github.com/deltachain/core/chain/clock"
	"github.com/deltachain/core/chain/engine"
	"github.com/deltachain/core/chain/forkdb"
	"github.com/deltachain/core/chain/kv"
	"github.com/deltachain/core/chain/model"
)

var snapshotDBPath string

var snapshotCmd = &cobra.Command{
	Use:   "snapshot <asset-id>",
	Short: "Print claimer balances for an asset's signature-claim balances",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid asset id: %w", err)
		}

		db, err := kv.Open(snapshotDBPath)
		if err != nil {
			return fmt.Errorf("opening state db: %w", err)
		}
		defer db.Close()

		opener := func(namespace string) kv.Store { return kv.NewLevelStore(db, namespace) }
		view := chainstate.NewView(opener)
		forks := forkdb.Open(opener)

		tip, found, err := forks.IncludedTip()
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("no included blocks found")
		}

		eng := engine.New(engine.Config{View: view, Forks: forks, Clock: clock.New()}, tip)
		snap, err := eng.GenerateSnapshot(model.AssetID(id))
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	},
}

func init() {
	snapshotCmd.Flags().StringVar(&snapshotDBPath, "db", "zchain/state.db", "Path to the state database")
	rootCmd.AddCommand(snapshotCmd)
}
