package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Lakshima2000/paddyHealth-backend/cmd"
	"github.com/Lakshima2000/paddyHealth-backend/utils"
)

func main() {
	rootCmd := cmd.RootCommand()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		_ = utils.Logger.Sync()
		os.Exit(1)
	}
	_ = utils.Logger.Sync()
}
