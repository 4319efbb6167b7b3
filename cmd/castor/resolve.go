package main

import (
	"fmt"

	"github.com/castorvc/castor/internal/castor/commands"
	"github.com/castorvc/castor/internal/castor/index"
	"github.com/spf13/cobra"
)

func NewResolveCommand() *cobra.Command {
	var ours, theirs, undo bool

	cmd := &cobra.Command{
		Use:   "resolve <path>",
		Short: "Settle a merge conflict in favor of one side.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if undo {
				if ours || theirs {
					return fmt.Errorf("--undo cannot be combined with --ours or --theirs")
				}
				return commands.ResolveUndo(".", args[0])
			}
			if ours == theirs {
				return fmt.Errorf("exactly one of --ours or --theirs is required")
			}
			how := index.ResolveOurs
			if theirs {
				how = index.ResolveTheirs
			}
			return commands.Resolve(".", args[0], how)
		},
	}

	cmd.Flags().BoolVar(&ours, "ours", false, "Keep our side of the conflict")
	cmd.Flags().BoolVar(&theirs, "theirs", false, "Keep their side of the conflict")
	cmd.Flags().BoolVar(&undo, "undo", false, "Restore the conflict stages a resolution replaced")

	return cmd
}
