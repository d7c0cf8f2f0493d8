package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/soyeahso/chatkit-demo/internal/conversation"
	"github.com/soyeahso/chatkit-demo/internal/domain"
)

func newConversationsCmd() *cobra.Command {
	var agentRef string

	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   "Manage stored conversations",
	}
	cmd.PersistentFlags().StringVarP(&agentRef, "agent", "a", "", "agent name or id (default: first catalog agent)")

	cmd.AddCommand(newConversationsListCmd(&agentRef))
	cmd.AddCommand(newConversationsShowCmd(&agentRef))
	cmd.AddCommand(newConversationsRenameCmd(&agentRef))
	cmd.AddCommand(newConversationsPinCmd(&agentRef))
	cmd.AddCommand(newConversationsDeleteCmd(&agentRef))
	return cmd
}

// withConversations opens the store and attaches a manager to the agent.
func withConversations(agentRef string, fn func(ctx context.Context, m *conversation.Manager) error) error {
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

	ctx := context.Background()
	m := conversation.NewManager(st, newHookManager(), log)
	if err := m.Attach(ctx, profile); err != nil {
		return err
	}
	return fn(ctx, m)
}

// resolveSession matches a full session id or a unique id prefix.
func resolveSession(m *conversation.Manager, ref string) (domain.ConversationRecord, error) {
	if id, err := uuid.Parse(ref); err == nil {
		if rec, ok := m.Record(id); ok {
			return rec, nil
		}
		return domain.ConversationRecord{}, fmt.Errorf("%w: %s", conversation.ErrNotFound, ref)
	}

	var matches []domain.ConversationRecord
	for _, rec := range m.Snapshot() {
		if strings.HasPrefix(rec.SessionID.String(), strings.ToLower(ref)) {
			matches = append(matches, rec)
		}
	}
	switch len(matches) {
	case 0:
		return domain.ConversationRecord{}, fmt.Errorf("%w: %s", conversation.ErrNotFound, ref)
	case 1:
		return matches[0], nil
	default:
		return domain.ConversationRecord{}, fmt.Errorf("session prefix %q is ambiguous (%d matches)", ref, len(matches))
	}
}

func newConversationsListCmd(agentRef *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List conversations, pinned first then most recent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConversations(*agentRef, func(_ context.Context, m *conversation.Manager) error {
				records := m.Snapshot()
				if len(records) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No conversations.")
					return nil
				}
				now := time.Now()
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tTITLE\tUPDATED\tLAST MESSAGE")
				for _, rec := range records {
					title := rec.Title
					if rec.Pinned {
						title = "* " + title
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
						rec.SessionID.String()[:8], title, rec.LastUpdatedDescription(now), preview(rec.LastMessagePreview, 40))
				}
				return tw.Flush()
			})
		},
	}
}

func newConversationsShowCmd(agentRef *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a conversation's messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConversations(*agentRef, func(ctx context.Context, m *conversation.Manager) error {
				rec, err := resolveSession(m, args[0])
				if err != nil {
					return err
				}
				msgs, err := m.Messages(ctx, rec.SessionID)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s (%s, created %s)\n\n", rec.Title, rec.SessionID, humanize.Time(rec.CreatedAt))
				for _, msg := range msgs {
					fmt.Fprintf(out, "[%s] %s:\n%s\n\n", msg.Timestamp.Local().Format(time.Kitchen), msg.Role, msg.Content)
				}
				fmt.Fprintf(out, "%s\n", pluralize(len(msgs), "message"))
				return nil
			})
		},
	}
}

func newConversationsRenameCmd(agentRef *string) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Rename a conversation",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConversations(*agentRef, func(ctx context.Context, m *conversation.Manager) error {
				rec, err := resolveSession(m, args[0])
				if err != nil {
					return err
				}
				rec, err = m.Rename(ctx, rec.SessionID, strings.Join(args[1:], " "))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %q\n", rec.SessionID.String()[:8], rec.Title)
				return nil
			})
		},
	}
}

func newConversationsPinCmd(agentRef *string) *cobra.Command {
	var unpin bool
	cmd := &cobra.Command{
		Use:   "pin <id>",
		Short: "Pin a conversation to the top of the list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConversations(*agentRef, func(ctx context.Context, m *conversation.Manager) error {
				rec, err := resolveSession(m, args[0])
				if err != nil {
					return err
				}
				if _, err := m.SetPinned(ctx, rec.SessionID, !unpin); err != nil {
					return err
				}
				verb := "Pinned"
				if unpin {
					verb = "Unpinned"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %q\n", verb, rec.Title)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&unpin, "unpin", false, "remove the pin instead")
	return cmd
}

func newConversationsDeleteCmd(agentRef *string) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a conversation, or all of an agent's with --all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return fmt.Errorf("give either a conversation id or --all")
			}
			return withConversations(*agentRef, func(ctx context.Context, m *conversation.Manager) error {
				if all {
					n := len(m.Snapshot())
					if err := m.DeleteAll(ctx); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", pluralize(n, "conversation"))
					return nil
				}
				rec, err := resolveSession(m, args[0])
				if err != nil {
					return err
				}
				if err := m.Delete(ctx, rec.SessionID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %q\n", rec.Title)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "delete every conversation of the agent")
	return cmd
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func pluralize(n int, word string) string {
	return english.Plural(n, word, "")
}
