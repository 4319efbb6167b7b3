package main

import (
	"github.com/castorvc/castor/internal/castor/commands"
	"github.com/spf13/cobra"
)

func NewLogCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "log",
		Short: "List commits, newest first.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return commands.Log(".")
		},
	}
}
