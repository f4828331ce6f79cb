package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/soyeahso/chatbridge/internal/client"
	"github.com/soyeahso/chatbridge/internal/domain"
	"github.com/soyeahso/chatbridge/internal/store"
)

func newConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Connect to the backend and bridge stdin/stdout to the conversation",
		RunE:  runConnect,
	}
}

// buildClient assembles a client from the loaded config, attaching the
// transcript archive when one is configured.
func buildClient(sink domain.Sink) (*client.Client, func(), error) {
	var opts []client.Option
	cleanup := func() {}

	if cfg.Archive.Path != "" {
		db, err := store.Open(cfg.Archive.Path, log)
		if err != nil {
			return nil, nil, fmt.Errorf("opening archive: %w", err)
		}
		opts = append(opts, client.WithArchive(store.NewArchive(db)))
		cleanup = func() { db.Close() }
	}

	c, err := client.New(cfg, sink, log, opts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return c, cleanup, nil
}

func printMessage(out *os.File, msg domain.Message) {
	who := msg.From.Username
	if who == "" {
		who = "them"
	}
	fmt.Fprintf(out, "%s: %s\n", who, msg.Text)
}

func runConnect(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink := domain.SinkFunc(func(event string, msg domain.Message) {
		printMessage(os.Stdout, msg)
	})

	c, cleanup, err := buildClient(sink)
	if err != nil {
		return err
	}
	defer cleanup()
	defer c.Close()

	res, err := c.Initialize(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("connected as %s (%d messages)\n", res.User.Username, res.MessageCount)
	for _, msg := range res.LastMessages {
		printMessage(os.Stdout, msg)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := c.Send(ctx, domain.Message{Text: line}); err != nil {
				log.Error().Err(err).Msg("send failed")
			}
		}
	}
}
