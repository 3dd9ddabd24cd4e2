package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/deltachain/core/chain/chainstate"
	"github.com/deltachain/core/chain/clock"
	"github.com/deltachain/core/chain/engine"
	"github.com/deltachain/core/chain/forkdb"
	"github.com/deltachain/core/chain/kv"
)

var (
	forkGraphDBPath string
	forkGraphStart  uint64
	forkGraphEnd    uint64
)

var forkGraphCmd = &cobra.Command{
	Use:   "export-fork-graph",
	Short: "Write a DOT graph of the fork tree between two block numbers",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := kv.Open(forkGraphDBPath)
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
		dot, err := eng.ExportForkGraph(forkGraphStart, forkGraphEnd)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(os.Stdout, dot)
		return err
	},
}

func init() {
	forkGraphCmd.Flags().StringVar(&forkGraphDBPath, "db", "zchain/state.db", "Path to the state database")
	forkGraphCmd.Flags().Uint64Var(&forkGraphStart, "start", 0, "First block number to include")
	forkGraphCmd.Flags().Uint64Var(&forkGraphEnd, "end", 0, "Last block number to include")
	rootCmd.AddCommand(forkGraphCmd)
}
