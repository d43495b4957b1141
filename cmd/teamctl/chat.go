package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/splax/skillsync/internal/domain"
	apiclient "github.com/splax/skillsync/pkg/api/client"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Read and write team chat",
}

var (
	watchInterval time.Duration
	watchPush     bool
)

var chatSendCmd = &cobra.Command{
	Use:   "send <team-id> <message...>",
	Short: "Post a message",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, token, err := session()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()
		msg, err := client.SendChat(ctx, token, args[0], strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sent #%d\n", msg.Seq)
		return nil
	},
}

var chatWatchCmd = &cobra.Command{
	Use:   "watch <team-id>",
	Short: "Follow a team's chat until interrupted",
	Long: `Watch prints the chat history and then every new message. The log is
polled on an interval; --push also listens on the live stream so messages
show up without waiting for the next poll.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, token, err := session()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		watcher := apiclient.NewChatWatcher(client, token, args[0],
			apiclient.WithPollInterval(watchInterval),
			apiclient.WithPush(watchPush),
		)
		printer := &chatPrinter{out: cmd.OutOrStdout()}
		return watcher.Run(ctx, printer.update)
	},
}

// chatPrinter writes messages it has not printed yet.
type chatPrinter struct {
	out     io.Writer
	printed int
}

func (p *chatPrinter) update(view []domain.ChatMessage) {
	for _, msg := range view[min(p.printed, len(view)):] {
		sender := msg.SenderName
		if sender == "" {
			sender = msg.SenderID
		}
		fmt.Fprintf(p.out, "[%s] %s: %s\n", msg.CreatedAt.Local().Format("15:04:05"), sender, msg.Text)
	}
	p.printed = len(view)
}

func init() {
	chatWatchCmd.Flags().DurationVar(&watchInterval, "interval", apiclient.DefaultPollInterval, "poll interval")
	chatWatchCmd.Flags().BoolVar(&watchPush, "push", true, "also listen on the live stream")
	chatCmd.AddCommand(chatSendCmd, chatWatchCmd)
	rootCmd.AddCommand(chatCmd)
}
