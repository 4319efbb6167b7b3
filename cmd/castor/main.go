package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var rootCmd = &cobra.Command{Use: "castor"}

	// Add commands
	rootCmd.AddCommand(NewInitCommand())
	rootCmd.AddCommand(NewAddCommand())
	rootCmd.AddCommand(NewStatusCommand())
	rootCmd.AddCommand(NewCommitCommand())
	rootCmd.AddCommand(NewLogCommand())
	rootCmd.AddCommand(NewCheckoutCommand())
	rootCmd.AddCommand(NewGcCommand())
	rootCmd.AddCommand(NewLockCommand())
	rootCmd.AddCommand(NewUnlockCommand())
	rootCmd.AddCommand(NewLocksCommand())
	rootCmd.AddCommand(NewResolveCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
