package main

import (
	"time"

	"github.com/castorvc/castor/internal/castor/commands"
	"github.com/spf13/cobra"
)

func NewGcCommand() *cobra.Command {
	var grace time.Duration

	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Delete chunks unreferenced for longer than the grace period.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return commands.Gc(".", grace)
		},
	}

	cmd.Flags().DurationVar(&grace, "grace", 0, "Override the configured grace period (e.g. 1h)")

	return cmd
}
