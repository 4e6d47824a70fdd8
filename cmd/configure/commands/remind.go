package commands

import (
	"fmt"
	"time"

	"github.com/benvon/taskbot/internal/app"
	"github.com/benvon/taskbot/internal/queue"
	"github.com/benvon/taskbot/internal/reminder"
	"github.com/benvon/taskbot/internal/session"
	"github.com/benvon/taskbot/internal/tasks"
	"github.com/benvon/taskbot/internal/telegram"
	"github.com/spf13/cobra"
)

// NewRemindCmd creates the remind command
func NewRemindCmd() *cobra.Command {
	var (
		chatID   int64
		username string
		enqueue  bool
	)

	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Send one chat its pending tasks now",
		Long:  "Deliver a reminder to a single chat immediately, or hand it to the worker with --enqueue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if chatID == 0 {
				return fmt.Errorf("--chat-id is required")
			}

			e, err := loadEnv(cmd, app.Need{Redis: true, Queue: enqueue})
			if err != nil {
				return err
			}
			defer e.close()

			ctx := commandContext(cmd)
			out := cmd.OutOrStdout()

			if enqueue {
				if e.backends.Queue == nil {
					return fmt.Errorf("--enqueue needs RABBITMQ_URL")
				}
				job := queue.NewReminderJob(chatID, username, time.Hour)
				job.Metadata[queue.MetadataSource] = "configure"
				if err := e.backends.Queue.Enqueue(ctx, job); err != nil {
					return fmt.Errorf("failed to enqueue reminder: %w", err)
				}
				fmt.Fprintf(out, "✓ Enqueued reminder job %s\n", job.ID)
				return nil
			}

			client := telegram.NewClient(e.cfg.TelegramBotToken, e.cfg.TelegramAPIRoot, e.cfg.PollTimeout, e.logger)
			service := reminder.NewService(client, e.backends.Resolver, tasks.NewEngine(e.backends.Store, e.logger), e.logger)

			result, err := service.Remind(ctx, session.Identity{ChatID: chatID, Username: username})
			if err != nil {
				return fmt.Errorf("reminder failed after %d of %d tasks: %w", result.Delivered, result.Pending, err)
			}
			fmt.Fprintf(out, "✓ Delivered %d pending tasks to @%s\n", result.Delivered, result.Username)
			return nil
		},
	}

	cmd.Flags().Int64Var(&chatID, "chat-id", 0, "Telegram chat id to remind")
	cmd.Flags().StringVar(&username, "username", "", "Username to resolve when the chat has none")
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "Publish a reminder job instead of delivering directly")
	return cmd
}
