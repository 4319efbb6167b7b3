package main

import (
	"github.com/castorvc/castor/internal/castor/commands"
	"github.com/spf13/cobra"
)

func NewStatusCommand() *cobra.Command {
	var paranoid bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show staged and working tree changes.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := commands.Status(".", commands.StatusOptions{Paranoid: paranoid})
			return err
		},
	}

	cmd.Flags().BoolVar(&paranoid, "paranoid", false, "Re-chunk stat-unchanged files to catch silent content changes")

	return cmd
}
