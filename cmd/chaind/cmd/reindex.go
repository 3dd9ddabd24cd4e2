package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deltachain/core/chain/chainstate"
	"github.com/deltachain/core/chain/engine"
	"github.com/deltachain/core/chain/forkdb"
	"github.com/deltachain/core/chain/kv"
)

var reindexDBPath string

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild chainstate by replaying every block forkdb knows",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := newLogger("CHAIND-REINDEX")
		if err != nil {
			return err
		}
		defer log.Sync()

		db, err := kv.Open(reindexDBPath)
		if err != nil {
			return fmt.Errorf("opening state db: %w", err)
		}
		defer db.Close()

		opener := func(namespace string) kv.Store { return kv.NewLevelStore(db, namespace) }
		view := chainstate.NewView(opener)
		forks := forkdb.Open(opener)

		highest, found := forks.HighestBlockNum()
		if !found {
			return fmt.Errorf("no blocks in fork tree to replay")
		}

		evHandler := func(v string, args ...any) { log.Infow(v, args...) }
		progress := func(blockNum uint64, total int) {
			if blockNum%1000 == 0 {
				log.Infow("reindex", "status", "progress", "block_num", blockNum, "total", total)
			}
		}

		if _, err := engine.Reindex(view, forks, highest, engine.Config{EvHandler: evHandler}, progress); err != nil {
			return fmt.Errorf("reindexing: %w", err)
		}
		log.Infow("reindex", "status", "complete", "highest_block_num", highest)
		return nil
	},
}

func init() {
	reindexCmd.Flags().StringVar(&reindexDBPath, "db", "zchain/state.db", "Path to the state database")
	rootCmd.AddCommand(reindexCmd)
}
