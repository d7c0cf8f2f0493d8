package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/soyeahso/chatkit-demo/internal/config"
	"github.com/soyeahso/chatkit-demo/internal/store"
	"github.com/soyeahso/chatkit-demo/internal/version"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show chatkit-demo status and configuration summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "chatkit-demo %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Fprintf(out, "Config:    %s", paths.Config)
			if _, err := os.Stat(paths.Config); os.IsNotExist(err) {
				fmt.Fprint(out, " (not found, using defaults)")
			}
			fmt.Fprintln(out)
			fmt.Fprintf(out, "Data:      %s\n", paths.Data)
			fmt.Fprintf(out, "Scenarios: %s\n\n", cfg.Scenarios.Dir)

			fmt.Fprintf(out, "Server:    port=%d bind=%s default=%s delay=%dms\n",
				cfg.Server.Port, cfg.Server.Bind, cfg.Scenarios.Default, cfg.Scenarios.DelayMs)
			fmt.Fprintf(out, "Client:    device=%s user=%s timeout=%ds replay=%dms\n",
				cfg.Client.DeviceID, cfg.Client.UserID, cfg.Client.TimeoutSeconds, cfg.Replay.IntervalMs)

			if cat, err := loadCatalog(); err != nil {
				fmt.Fprintf(out, "Agents:    error: %v\n", err)
			} else {
				for _, a := range cat.Agents() {
					fmt.Fprintf(out, "Agent:     %s (%s)\n", a.Name, a.ConnectionMode)
				}
			}

			printStoreStatus(out)

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s: %s\n", issue.Path, issue.Message)
				}
			}
			return nil
		},
	}
}

func printStoreStatus(out io.Writer) {
	if cfg.Store.Backend == "memory" {
		fmt.Fprintln(out, "Store:     memory (nothing persisted)")
		return
	}
	st, closeStore, err := openStore()
	if err != nil {
		fmt.Fprintf(out, "Store:     error: %v\n", err)
		return
	}
	defer closeStore()

	sq, ok := st.(*store.SQLiteStore)
	if !ok {
		return
	}
	agents, convs, msgs, err := sq.Stats(context.Background())
	if err != nil {
		fmt.Fprintf(out, "Store:     error: %v\n", err)
		return
	}
	fmt.Fprintf(out, "Store:     sqlite agents=%s conversations=%s messages=%s\n",
		humanize.Comma(int64(agents)), humanize.Comma(int64(convs)), humanize.Comma(int64(msgs)))
}
