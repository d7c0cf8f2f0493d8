package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/soyeahso/chatkit-demo/internal/config"
	"github.com/soyeahso/chatkit-demo/internal/logging"
)

var (
	cfgFile  string
	logLevel string

	// loaded at init time
	paths config.Paths
	cfg   config.Config
	log   *logging.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chatkit-demo",
		Short: "chatkit-demo: AG-UI chat agents, offline fixtures and a test server",
		Long: "chatkit-demo chats with AG-UI agents over SSE, replays an offline echo fixture, " +
			"and serves scripted agent scenarios for client testing.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			paths, err = config.ResolvePaths()
			if err != nil {
				return err
			}
			if cfgFile != "" {
				paths.Config = cfgFile
			}
			config.LoadDotEnv(".env", paths.DotEnv)

			cfg, err = config.Load(paths.Config)
			if err != nil {
				return err
			}
			if cfg.Scenarios.Dir == "" {
				cfg.Scenarios.Dir = paths.Scenarios
			}

			level := cfg.Logging.Level
			if logLevel != "" {
				level = logLevel
			}
			log = logging.New(logging.ConsoleWriter(os.Stderr, cfg.Logging.ConsoleStyle), level)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.chatkit-demo/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newChatCmd())
	cmd.AddCommand(newAgentsCmd())
	cmd.AddCommand(newConversationsCmd())
	cmd.AddCommand(newReplayCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}
