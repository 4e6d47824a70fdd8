package commands

import (
	"fmt"
	"sort"
	"time"

	"github.com/benvon/taskbot/internal/app"
	"github.com/benvon/taskbot/internal/handlers"
	"github.com/benvon/taskbot/internal/reminder"
	"github.com/benvon/taskbot/internal/telegram"
	"github.com/spf13/cobra"
)

// NewTestCmd creates the test command
func NewTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Test connectivity to every configured backend",
		Long:  "Check the Telegram token, the Notion databases and any configured Redis, RabbitMQ and PostgreSQL",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd, app.Need{Redis: true, Queue: true, Database: true})
			if err != nil {
				return err
			}
			defer e.close()

			ctx := commandContext(cmd)
			out := cmd.OutOrStdout()

			schedule, err := reminder.ParseSchedule(e.cfg.ReminderTimes, e.cfg.Location())
			if err != nil {
				return fmt.Errorf("invalid reminder schedule: %w", err)
			}
			fmt.Fprintf(out, "Reminder times (%s): %v\n", e.cfg.Timezone, schedule.Strings())
			fmt.Fprintf(out, "Next reminder round: %s\n\n", schedule.Next(time.Now()).Format("2006-01-02 15:04 MST"))

			client := telegram.NewClient(e.cfg.TelegramBotToken, e.cfg.TelegramAPIRoot, e.cfg.PollTimeout, e.logger)
			me, err := client.GetMe(ctx)
			if err != nil {
				return fmt.Errorf("telegram check failed: %w", err)
			}
			fmt.Fprintf(out, "✓ telegram: @%s\n", me.Username)

			checker := handlers.NewHealthChecker(e.logger)
			e.backends.RegisterHealthChecks(checker)
			result := checker.Run(ctx)

			names := make([]string, 0, len(result.Checks))
			for name := range result.Checks {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				mark := "✓"
				if result.Checks[name] != "healthy" {
					mark = "✗"
				}
				fmt.Fprintf(out, "%s %s: %s\n", mark, name, result.Checks[name])
			}

			if result.Status != "healthy" {
				return fmt.Errorf("one or more backends are unhealthy")
			}
			return nil
		},
	}
}
