package cli

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/soyeahso/chatbridge/internal/domain"
)

func newSendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <text>...",
		Short: "Initialize the conversation and post a single message",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSend,
	}
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, cleanup, err := buildClient(nil)
	if err != nil {
		return err
	}
	defer cleanup()
	defer c.Close()

	if _, err := c.Initialize(ctx); err != nil {
		return err
	}

	return c.Send(ctx, domain.Message{Text: strings.Join(args, " ")})
}
