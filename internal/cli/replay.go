package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/soyeahso/chatkit-demo/internal/agui"
	"github.com/soyeahso/chatkit-demo/internal/replay"
)

func newReplayCmd() *cobra.Command {
	var (
		interval time.Duration
		echo     string
	)

	cmd := &cobra.Command{
		Use:   "replay [events.jsonl]",
		Short: "Stream canned AG-UI events as SSE to stdout",
		Long: "Replays one JSON event per line from a file as SSE frames, pausing between frames.\n" +
			"With --echo, streams the offline parrot reply to the given message instead.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (echo == "") == (len(args) == 0) {
				return fmt.Errorf("give either an events file or --echo")
			}
			if !cmd.Flags().Changed("interval") {
				interval = time.Duration(cfg.Replay.IntervalMs) * time.Millisecond
			}

			player := replay.NewPlayer(log)
			var body []byte
			if echo != "" {
				player.EnableEcho(interval)
				input := agui.RunAgentInput{
					ThreadID: uuid.NewString(),
					RunID:    uuid.NewString(),
					Messages: []agui.Message{{ID: uuid.NewString(), Role: "user", Content: echo}},
				}
				var err error
				if body, err = json.Marshal(input); err != nil {
					return err
				}
			} else {
				events, err := readEventLines(args[0])
				if err != nil {
					return err
				}
				player.Configure(events, interval, func() {
					log.Debug().Int("events", len(events)).Msg("replay complete")
				})
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := player.Play(ctx, cmd.OutOrStdout(), body); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", replay.DefaultInterval, "pause after each frame (default from config)")
	cmd.Flags().StringVar(&echo, "echo", "", "stream the parrot echo of this message")
	return cmd
}

// readEventLines loads one AG-UI event per non-blank line, validating each.
func readEventLines(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events [][]byte
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for n := 1; scanner.Scan(); n++ {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if _, err := agui.ParseEvent(line); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, n, err)
		}
		events = append(events, bytes.Clone(line))
	}
	return events, scanner.Err()
}
