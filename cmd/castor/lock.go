package main

import (
	"time"

	"github.com/castorvc/castor/internal/castor/commands"
	"github.com/spf13/cobra"
)

func NewLockCommand() *cobra.Command {
	var duration time.Duration
	var reason string

	cmd := &cobra.Command{
		Use:   "lock <path>",
		Short: "Take an advisory exclusive lock on a file.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return commands.Lock(".", args[0], duration, reason)
		},
	}

	cmd.Flags().DurationVarP(&duration, "duration", "d", 8*time.Hour, "How long the lock lasts before expiring")
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "Why the file is locked")

	return cmd
}

func NewUnlockCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "unlock <path>",
		Short: "Release a lock you own.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return commands.Unlock(".", args[0], force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Release someone else's lock (recorded in the log)")

	return cmd
}

func NewLocksCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "locks",
		Short: "List held locks.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return commands.ListLocks(".")
		},
	}
}
