package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ad-freiburg/text-correction-utils/cmd"
)

func main() {
	cobra.CheckErr(cmd.NewCLI().ExecuteContext(context.Background()))
}
