package cli

import (
	"fmt"
	"io"
	"sync"
	"time"

	"chatgate/internal/core/domain"

	"github.com/spf13/cobra"
)

func newMessagesCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "messages",
		Short: "Read and follow room transcripts",
	}
	cmd.AddCommand(newMessagesTailCommand(a))
	return cmd
}

func newMessagesTailCommand(a *app) *cobra.Command {
	var room string
	var lines int
	var follow bool

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print the newest messages of a room and optionally follow it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			roomID := domain.RoomID(room)
			if _, err := a.rooms.GetRoom(ctx, roomID); err != nil {
				return err
			}

			p := &messagePrinter{w: cmd.OutOrStdout(), seen: make(map[domain.DocumentID]bool), lines: lines}
			if !follow {
				history, err := a.messages.History(ctx, roomID, lines)
				if err != nil {
					return err
				}
				p.print(history)
				return nil
			}

			sub, err := a.messages.Subscribe(ctx, roomID, p.print)
			if err != nil {
				return err
			}
			defer sub.Cancel()

			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&room, "room", "", "room id")
	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "number of recent messages to show (0 for all)")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing new messages until interrupted")
	_ = cmd.MarkFlagRequired("room")
	return cmd
}

// messagePrinter prints each message once. Subscriptions deliver the full
// transcript on every change, so only the first delivery is cut to the
// newest lines.
type messagePrinter struct {
	mu     sync.Mutex
	w      io.Writer
	seen   map[domain.DocumentID]bool
	lines  int
	primed bool
}

func (p *messagePrinter) print(msgs []domain.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.primed {
		p.primed = true
		if p.lines > 0 && len(msgs) > p.lines {
			for _, m := range msgs[:len(msgs)-p.lines] {
				p.seen[m.ID] = true
			}
		}
	}

	for _, m := range msgs {
		if p.seen[m.ID] {
			continue
		}
		p.seen[m.ID] = true

		author := m.AuthorName
		if m.System {
			author = "*"
		}
		fmt.Fprintf(p.w, "[%s] %s: %s\n", m.SentAt.Local().Format(time.TimeOnly), author, m.Body)
	}
}
