package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/soyeahso/chatkit-demo/internal/config"
	"github.com/soyeahso/chatkit-demo/internal/llm"
	"github.com/soyeahso/chatkit-demo/internal/server"
)

func newServeCmd() *cobra.Command {
	var (
		port        int
		bind        string
		scenario    string
		scenarioDir string
		useLLM      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the AG-UI fixture server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if bind != "" {
				cfg.Server.Bind = bind
			}
			if scenario != "" {
				cfg.Scenarios.Default = scenario
			}
			if scenarioDir != "" {
				cfg.Scenarios.Dir = scenarioDir
			}
			if useLLM {
				cfg.Scenarios.Default = server.AgentLLM
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			opts := []server.ServerOption{server.WithHooks(newHookManager())}
			llmOpt, err := llmOption()
			if err != nil {
				return err
			}
			if llmOpt != nil {
				opts = append(opts, llmOpt)
			}

			srv := server.New(cfg, log, opts...)
			if _, ok := srv.Scenarios().Get(cfg.Scenarios.Default); !ok && !server.IsBuiltinAgent(cfg.Scenarios.Default) {
				return fmt.Errorf("default scenario %q is not defined", cfg.Scenarios.Default)
			}

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (default from config, 3000)")
	cmd.Flags().StringVar(&bind, "bind", "", "bind mode: loopback, lan or custom")
	cmd.Flags().StringVar(&scenario, "scenario", "", "default scenario: echo, parrot, llm or a scenario id")
	cmd.Flags().BoolVar(&useLLM, "use-llm", false, "answer every run with the configured llm provider")
	cmd.Flags().StringVar(&scenarioDir, "scenario-dir", "", "directory of scenario JSON files")
	return cmd
}

// llmOption builds the llm agent when the server needs it or a key is
// configured. A broken provider config is fatal only in llm mode.
func llmOption() (server.ServerOption, error) {
	required := cfg.Scenarios.Default == server.AgentLLM
	if !required && cfg.LLM.APIKey == "" {
		return nil, nil
	}
	client, err := llm.New(cfg.LLM, log)
	if err != nil {
		if required {
			return nil, err
		}
		log.Warn().Err(err).Msg("llm agent disabled")
		return nil, nil
	}
	log.Info().Str("provider", client.Name()).Str("model", client.Model()).Msg("llm agent enabled")
	return server.WithLLM(client), nil
}
