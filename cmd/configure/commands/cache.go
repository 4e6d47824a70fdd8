package commands

import (
	"fmt"

	"github.com/benvon/taskbot/internal/app"
	"github.com/spf13/cobra"
)

// NewCacheCmd creates the cache command with its flush subcommand
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the identity cache",
		Long:  "Manage the Redis cache of username to team member lookups",
	}
	cmd.AddCommand(newCacheFlushCmd())
	return cmd
}

func newCacheFlushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Drop every cached identity",
		Long:  "Drop cached identities, e.g. after editing Telegram usernames in the Team DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd, app.Need{Redis: true})
			if err != nil {
				return err
			}
			defer e.close()

			if e.backends.Cache == nil {
				return fmt.Errorf("identity cache is not configured (set REDIS_URL)")
			}

			removed, err := e.backends.Cache.Invalidate(commandContext(cmd))
			if err != nil {
				return fmt.Errorf("failed to flush identity cache: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed %d cached identities\n", removed)
			return nil
		},
	}
}
