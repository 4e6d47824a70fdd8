package commands

import (
	"fmt"

	"github.com/benvon/taskbot/internal/bot"
	"github.com/benvon/taskbot/internal/telegram"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// NewCommandsCmd creates the commands command, which publishes the bot's
// command menu
func NewCommandsCmd() *cobra.Command {
	var dryRun, show bool

	cmd := &cobra.Command{
		Use:   "commands",
		Short: "Register the bot command menu with Telegram",
		Long:  "Register start, addtask, weektasks and cancel with Telegram. --dry-run prints the menu as YAML instead.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if dryRun {
				data, err := yaml.Marshal(bot.Commands)
				if err != nil {
					return fmt.Errorf("failed to render commands: %w", err)
				}
				_, err = out.Write(data)
				return err
			}

			e, err := loadEnv(cmd, noBackends)
			if err != nil {
				return err
			}
			defer e.close()

			client := telegram.NewClient(e.cfg.TelegramBotToken, e.cfg.TelegramAPIRoot, e.cfg.PollTimeout, e.logger)
			ctx := commandContext(cmd)

			if show {
				current, err := client.Commands(ctx)
				if err != nil {
					return fmt.Errorf("failed to fetch commands: %w", err)
				}
				if len(current) == 0 {
					fmt.Fprintln(out, "No commands registered")
					return nil
				}
				for _, c := range current {
					fmt.Fprintf(out, "/%s - %s\n", c.Command, c.Description)
				}
				return nil
			}

			if err := client.SetCommands(ctx, bot.Commands); err != nil {
				return fmt.Errorf("failed to register commands: %w", err)
			}
			e.logger.Info("commands_registered", zap.Int("count", len(bot.Commands)))
			fmt.Fprintf(out, "✓ Registered %d commands\n", len(bot.Commands))
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the command menu without contacting Telegram")
	cmd.Flags().BoolVar(&show, "show", false, "Show the currently registered commands")
	return cmd
}
