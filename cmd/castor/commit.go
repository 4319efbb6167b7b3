package main

import (
	"fmt"

	"github.com/castorvc/castor/internal/castor/commands"
	"github.com/spf13/cobra"
)

func NewCommitCommand() *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Record the staged entries as a new commit.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if message == "" {
				return fmt.Errorf("a commit message is required (-m)")
			}
			_, err := commands.Commit(".", message)
			return err
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "The commit message")

	return cmd
}
