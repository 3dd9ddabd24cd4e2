package main

import (
	"github.com/deltachain/core/cmd/chaind/cmd"
)

func main() {
	cmd.Execute()
}
