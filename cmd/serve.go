package cmd

import (
	"net"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ad-freiburg/text-correction-utils/envconfig"
	"github.com/ad-freiburg/text-correction-utils/server"
)

func RunServer(cmd *cobra.Command, _ []string) error {
	ln, err := net.Listen("tcp", envconfig.Host)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return server.Serve(ctx, ln)
}
