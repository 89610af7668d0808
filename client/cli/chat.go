package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"takahome/client/chat/domain"
	chatsvc "takahome/client/chat/service"
)

const timeLayout = "2006-01-02 15:04"

func ChatCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with landlords and tenants",
	}
	cmd.AddCommand(
		chatRoomsCmd(s),
		chatStartCmd(s),
		chatHistoryCmd(s),
		chatOpenCmd(s),
	)
	return cmd
}

func chatRoomsCmd(s *session) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "rooms",
		Short: "List my chat rooms",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validOutput(output); err != nil {
				return err
			}
			a, err := s.open(cmd)
			if err != nil {
				return err
			}
			me, err := a.CurrentUser(cmd.Context())
			if err != nil {
				return err
			}
			rooms, err := a.History.MyChatrooms(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if done, err := writeStructured(w, output, rooms); done {
				return err
			}
			if len(rooms) == 0 {
				fmt.Fprintln(w, "No chat rooms.")
				return nil
			}
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ROOM\tWITH\tPROPERTY\tUPDATED\tLAST MESSAGE")
			for _, r := range rooms {
				last := "-"
				if n := len(r.Messages); n > 0 {
					last = truncate(r.Messages[n-1].Content, 40)
				}
				peer := r.Peer(me.Principal())
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, orDash(peer.FullName), orDash(r.Property.Title), r.UpdatedAt.Local().Format(timeLayout), last)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "table, json or yaml")
	return cmd
}

func chatStartCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "start <propertyID>",
		Short: "Open (or reuse) the chat room with a property's landlord",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.open(cmd)
			if err != nil {
				return err
			}
			room, err := a.History.StartChatForProperty(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), room.ID)
			return nil
		},
	}
}

func chatHistoryCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "history <roomID>",
		Short: "Print the messages of a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.open(cmd)
			if err != nil {
				return err
			}
			timeline := chatsvc.NewTimeline(args[0])
			msgs, err := a.History.RoomMessages(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			timeline.Merge(msgs)
			for _, m := range timeline.Messages() {
				printMessage(cmd.OutOrStdout(), m)
			}
			return nil
		},
	}
}

func chatOpenCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "open <roomID>",
		Short: "Join a room and chat interactively (/quit to leave)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			roomID := args[0]
			a, err := s.open(cmd)
			if err != nil {
				return err
			}
			me, err := a.CurrentUser(ctx)
			if err != nil {
				return err
			}
			self := me.Principal()

			out := &lockedWriter{w: cmd.OutOrStdout()}
			a.Chat.OnConnect(func() { out.printf("* connected\n") })
			a.Chat.OnDisconnect(func(info chatsvc.DisconnectInfo) {
				if info.Reconnecting {
					out.printf("* connection lost, reconnecting (%s)\n", info.Reason)
					return
				}
				out.printf("* disconnected (%s)\n", info.Reason)
			})
			a.Chat.OnError(func(err error) { out.printf("! %v\n", err) })
			a.Chat.OnTyping(func(u domain.TypingUpdate) {
				if u.ChatroomID != roomID || u.UserID == self || u.Cleared() {
					return
				}
				if u.IsTyping {
					out.printf("* %s is typing...\n", orDash(u.FullName))
				}
			})
			a.Chat.OnPresence(func(p domain.PresenceEvent) {
				switch p.Kind {
				case domain.PresenceJoinedRoom, domain.PresenceLeftRoom:
					if p.ChatroomID == roomID && p.UserID != self {
						out.printf("* %s %s the room\n", orDash(p.FullName), strings.ReplaceAll(string(p.Kind), "_room", ""))
					}
				case domain.PresenceOnline, domain.PresenceOffline:
					if p.UserID != self {
						out.printf("* %s is %s\n", orDash(p.FullName), p.Kind)
					}
				case domain.PresenceSnapshot:
					out.printf("* online: %s\n", strings.Join(p.UserIDs, ", "))
				}
			})

			if err := a.Chat.Connect(ctx, ""); err != nil {
				return err
			}
			printer := newRoomPrinter(out)
			conv, err := chatsvc.OpenConversation(ctx, a.Chat, a.History, chatsvc.ConversationOptions{
				RoomID:    roomID,
				UserID:    self,
				OnMessage: printer.live,
			})
			if err != nil {
				return err
			}
			defer conv.Close()
			printer.history(conv.Messages())

			lines := make(chan string)
			go func() {
				defer close(lines)
				scanner := bufio.NewScanner(cmd.InOrStdin())
				for scanner.Scan() {
					select {
					case lines <- scanner.Text():
					case <-ctx.Done():
						return
					}
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
					line = strings.TrimSpace(line)
					switch line {
					case "":
						continue
					case "/quit", "/exit":
						return nil
					case "/online":
						a.Chat.RequestOnlineUsers()
						continue
					}
					if _, err := conv.Send(ctx, line); err != nil {
						out.printf("! %v\n", err)
					}
				}
			}
		},
	}
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func (l *lockedWriter) printf(format string, args ...any) {
	fmt.Fprintf(l, format, args...)
}

// roomPrinter holds socket messages back until the history is printed and
// prints every message id once.
type roomPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	ready   bool
	pending []domain.Message
	seen    map[string]struct{}
}

func newRoomPrinter(w io.Writer) *roomPrinter {
	return &roomPrinter{w: w, seen: map[string]struct{}{}}
}

func (p *roomPrinter) live(m domain.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.ready {
		p.pending = append(p.pending, m)
		return
	}
	p.printLocked(m)
}

func (p *roomPrinter) history(msgs []domain.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range msgs {
		p.printLocked(m)
	}
	for _, m := range p.pending {
		p.printLocked(m)
	}
	p.pending = nil
	p.ready = true
}

func (p *roomPrinter) printLocked(m domain.Message) {
	if m.ID != "" {
		if _, ok := p.seen[m.ID]; ok {
			return
		}
		p.seen[m.ID] = struct{}{}
	}
	printMessage(p.w, m)
}

func printMessage(w io.Writer, m domain.Message) {
	name := m.Sender.FullName
	if name == "" {
		name = m.Sender.ID
	}
	fmt.Fprintf(w, "[%s] %s: %s\n", m.CreatedAt.Local().Format(timeLayout), orDash(name), m.Content)
}

func truncate(s string, n int) string {
	r := []rune(strings.ReplaceAll(s, "\n", " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}
