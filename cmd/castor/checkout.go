package main

import (
	"github.com/castorvc/castor/internal/castor/commands"
	"github.com/spf13/cobra"
)

func NewCheckoutCommand() *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:               "checkout <commit>",
		Short:             "Materialize a commit into a directory.",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: commitCompletions,
		RunE: func(cmd *cobra.Command, args []string) error {
			return commands.Checkout(".", args[0], outputDir)
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Directory to restore into (default castor-checkout-<hash>)")

	return cmd
}
