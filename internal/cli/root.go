// Package cli implements the chatbridge command-line interface.
package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/soyeahso/chatbridge/internal/config"
	"github.com/soyeahso/chatbridge/internal/logging"
)

var (
	cfgFile  string
	logLevel string

	// loaded at init time
	cfg config.Config
	log *logging.Logger
)

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".chatbridge", "config.yaml")
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chatbridge",
		Short: "chatbridge — bridge a chat widget to a remote chat backend",
		Long:  "chatbridge connects a chat-widget front end to a remote chat backend's realtime channel, in private or livechat mode.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path := cfgFile
			if path == "" {
				path = defaultConfigPath()
			}
			var err error
			cfg, err = config.Load(path)
			if err != nil {
				return err
			}
			level := logLevel
			if level == "" {
				level = cfg.Logging.Level
			}
			log = logging.New(nil, level)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.chatbridge/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")

	cmd.AddCommand(newConnectCmd())
	cmd.AddCommand(newSendCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		cmd.PrintErrln("Error:", err)
		return err
	}
	return nil
}
