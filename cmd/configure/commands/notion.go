package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/benvon/taskbot/internal/app"
	"github.com/spf13/cobra"
)

var noBackends = app.Need{}

// NewPersonsCmd creates the persons command
func NewPersonsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "persons",
		Short: "List team members and their Telegram usernames",
		Long:  "List every Team DB entry the bot can link a chat to",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd, noBackends)
			if err != nil {
				return err
			}
			defer e.close()

			persons, err := e.backends.Store.QueryPersons(commandContext(cmd))
			if err != nil {
				return fmt.Errorf("failed to list persons: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(persons) == 0 {
				fmt.Fprintln(out, "No team members found")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTELEGRAM USERNAME")
			for _, p := range persons {
				fmt.Fprintf(w, "%s\t%s\n", p.ID, p.Username)
			}
			return w.Flush()
		},
	}
}

// NewCategoriesCmd creates the categories command
func NewCategoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List the task categories offered when adding a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd, noBackends)
			if err != nil {
				return err
			}
			defer e.close()

			categories, err := e.backends.Store.CategoryOptions(commandContext(cmd))
			if err != nil {
				return fmt.Errorf("failed to list categories: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(categories) == 0 {
				fmt.Fprintln(out, "No categories defined; the category step will be skipped")
				return nil
			}
			for _, c := range categories {
				fmt.Fprintf(out, "  - %s\n", c)
			}
			return nil
		},
	}
}
