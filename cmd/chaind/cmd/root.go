// Package cmd contains the chaind node binary's cobra command tree.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// build is the git version of this program, set via build flags.
var build = "develop"

var rootCmd = &cobra.Command{
	Use:   "chaind",
	Short: "Delegated proof-of-stake chain-state node",
}

// Execute runs the command tree, exiting non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(service string) (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stdout"}
	log, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("constructing logger: %w", err)
	}
	return log.Sugar().With("service", service), nil
}

func printBanner() {
	fmt.Println(`     ____       _ _        ____ _           _       `)
	fmt.Println(`    |  _ \  ___| | |_ __ _ / ___| |__   __ _(_)_ __  `)
	fmt.Println(`    | | | |/ _ \ | __/ _' | |   | '_ \ / _' | | '_ \ `)
	fmt.Println(`    | |_| |  __/ | || (_| | |___| | | | (_| | | | | |`)
	fmt.Println(`    |____/ \___|_|\__\__,_|\____|_| |_|\__,_|_|_| |_|`)
	fmt.Print("\n")
}
