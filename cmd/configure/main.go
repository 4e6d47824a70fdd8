package main

import (
	"fmt"
	"os"

	"github.com/benvon/taskbot/cmd/configure/commands"
	"github.com/spf13/cobra"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "taskbot-configure",
		Short: "Operator tool for the task bot",
		Long:  "CLI tool for registering bot commands, inspecting the Notion databases and running one-off reminders",
	}
	rootCmd.PersistentFlags().Bool("verbose", false, "Log backend activity to stderr")

	rootCmd.AddCommand(commands.NewCommandsCmd())
	rootCmd.AddCommand(commands.NewPersonsCmd())
	rootCmd.AddCommand(commands.NewCategoriesCmd())
	rootCmd.AddCommand(commands.NewTestCmd())
	rootCmd.AddCommand(commands.NewRemindCmd())
	rootCmd.AddCommand(commands.NewCacheCmd())
	rootCmd.AddCommand(commands.NewActivityCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
