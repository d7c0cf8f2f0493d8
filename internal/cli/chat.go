package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/soyeahso/chatkit-demo/internal/agent"
	"github.com/soyeahso/chatkit-demo/internal/agui"
	"github.com/soyeahso/chatkit-demo/internal/conversation"
	"github.com/soyeahso/chatkit-demo/internal/domain"
	"github.com/soyeahso/chatkit-demo/internal/runtime"
)

func newChatCmd() *cobra.Command {
	var (
		agentRef    string
		sessionRef  string
		title       string
		contextJSON []string
		noStream    bool
	)

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with an agent; interactive when no message is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := parseContextItems(contextJSON)
			if err != nil {
				return err
			}

			cat, err := loadCatalog()
			if err != nil {
				return err
			}
			profile, err := findAgent(cat, agentRef)
			if err != nil {
				return err
			}

			st, closeStore, err := openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			hookMgr := newHookManager()
			agents := agent.NewManager(cat.Agents(), hookMgr, log)
			agents.Load(ctx, profile)

			coord := runtime.New(conversation.NewManager(st, hookMgr, log), hookMgr, log, runtime.Options{
				ReplayInterval: time.Duration(cfg.Replay.IntervalMs) * time.Millisecond,
				DeviceID:       cfg.Client.DeviceID,
				UserID:         cfg.Client.UserID,
				HTTPClient:     &http.Client{Timeout: time.Duration(cfg.Client.TimeoutSeconds) * time.Second},
			})
			coord.OnStateChange(func(s runtime.State) {
				log.Debug().Str("state", string(s)).Str("agent", profile.Name).Msg("connection state")
			})
			if err := coord.Connect(ctx, profile); err != nil {
				return err
			}
			defer coord.Disconnect()

			rec, err := openSession(ctx, coord, sessionRef, title)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s · %s (%s)\n", profile.Name, rec.Title, profile.ConnectionMode)

			c := &chatSession{coord: coord, session: rec.SessionID, items: items, stream: !noStream, out: out}
			if len(args) > 0 {
				return c.send(ctx, strings.Join(args, " "))
			}
			return c.interactive(ctx, cmd.InOrStdin(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&agentRef, "agent", "a", "", "agent name or id (default: first catalog agent)")
	cmd.Flags().StringVarP(&sessionRef, "session", "s", "", "resume a conversation by id or id prefix")
	cmd.Flags().StringVarP(&title, "title", "t", "", "title for a new conversation")
	cmd.Flags().StringArrayVar(&contextJSON, "context", nil, "ConvoUI context item as a JSON object (repeatable)")
	cmd.Flags().BoolVar(&noStream, "no-stream", false, "print the reply once it is complete")
	return cmd
}

// chatSession sends turns for one conversation and prints replies.
type chatSession struct {
	coord   *runtime.Coordinator
	session uuid.UUID
	items   []agui.ContextItem
	stream  bool
	out     io.Writer
}

// send runs one turn. Context items ride along with the first message only.
func (c *chatSession) send(ctx context.Context, text string) error {
	var opts []runtime.SendOption
	if len(c.items) > 0 {
		opts = append(opts, runtime.WithContextItems(c.items...))
		c.items = nil
	}

	var flusher *runtime.Flusher
	if c.stream {
		flusher = runtime.NewFlusher(runtime.FlusherConfig{}, c.out, log)
		opts = append(opts, runtime.WithDeltas(flusher.OnDelta))
	}

	reply, err := c.coord.SendMessage(ctx, c.session, text, opts...)
	if flusher != nil {
		flusher.Flush()
	}
	// replies built from a snapshot carry no deltas
	if err == nil && (flusher == nil || !flusher.Flushed()) {
		fmt.Fprint(c.out, reply.Text)
	}
	fmt.Fprintln(c.out)
	return err
}

// interactive reads one message per line until EOF or /quit.
// "/new [title]" starts a fresh conversation.
func (c *chatSession) interactive(ctx context.Context, in io.Reader, errOut io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(c.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(c.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/new" || strings.HasPrefix(line, "/new "):
			rec, err := c.coord.CreateConversation(ctx, strings.TrimSpace(strings.TrimPrefix(line, "/new")))
			if err != nil {
				return err
			}
			c.session = rec.SessionID
			fmt.Fprintf(c.out, "started %s\n", rec.Title)
			continue
		}

		if err := c.send(ctx, line); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var runErr *runtime.RunError
			if errors.As(err, &runErr) {
				fmt.Fprintf(errOut, "agent error: %s\n", runErr.Message)
				continue
			}
			fmt.Fprintf(errOut, "error: %v\n", err)
		}
	}
}

// openSession resumes ref when given, else creates a conversation.
func openSession(ctx context.Context, coord *runtime.Coordinator, ref, title string) (domain.ConversationRecord, error) {
	if ref == "" {
		return coord.CreateConversation(ctx, title)
	}
	rec, err := resolveSession(coord.Conversations(), ref)
	if err != nil {
		return domain.ConversationRecord{}, err
	}
	return coord.Conversations().Load(rec.SessionID)
}

// parseContextItems decodes each --context flag as a JSON object.
func parseContextItems(raw []string) ([]agui.ContextItem, error) {
	items := make([]agui.ContextItem, 0, len(raw))
	for _, r := range raw {
		var item agui.ContextItem
		if err := json.Unmarshal([]byte(r), &item); err != nil {
			return nil, fmt.Errorf("invalid --context %q: %w", r, err)
		}
		items = append(items, item)
	}
	return items, nil
}
