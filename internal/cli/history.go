package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/soyeahso/chatbridge/internal/domain"
	"github.com/soyeahso/chatbridge/internal/store"
)

func newHistoryCmd() *cobra.Command {
	var limit int
	var before int64

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show archived transcript messages without connecting",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Archive.Path == "" {
				return fmt.Errorf("no archive configured (set archive.path)")
			}

			db, err := store.Open(cfg.Archive.Path, log)
			if err != nil {
				return err
			}
			defer db.Close()

			archive := store.NewArchive(db)
			var msgs []domain.Message
			if before > 0 {
				msgs, err = archive.Before(before, limit)
			} else {
				msgs, err = archive.Recent(limit)
			}
			if err != nil {
				return err
			}

			for _, msg := range msgs {
				printMessage(os.Stdout, msg)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of messages to show")
	cmd.Flags().Int64Var(&before, "before", 0, "only messages older than this epoch-ms timestamp")
	return cmd
}
