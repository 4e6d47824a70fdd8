package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/benvon/taskbot/internal/app"
	"github.com/benvon/taskbot/internal/database"
	"github.com/spf13/cobra"
)

// NewActivityCmd creates the activity command
func NewActivityCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "activity",
		Short: "List recently active chats",
		Long:  "List chats by last interaction, from the PostgreSQL activity log",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd, app.Need{Database: true})
			if err != nil {
				return err
			}
			defer e.close()

			if e.backends.Activity == nil {
				return fmt.Errorf("activity log is not configured (set DATABASE_URL)")
			}

			activities, err := e.backends.Activity.List(commandContext(cmd), limit)
			if err != nil {
				return fmt.Errorf("failed to list activity: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(activities) == 0 {
				fmt.Fprintln(out, "No chat activity recorded")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CHAT ID\tUSERNAME\tLAST COMMAND\tINTERACTIONS\tLAST SEEN")
			for _, a := range activities {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n",
					a.ChatID, a.Username, a.LastCommand, a.Interactions,
					a.LastInteractionAt.In(e.cfg.Location()).Format(time.RFC3339))
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", database.DefaultActivityLimit, "Maximum number of chats to list")
	return cmd
}
