package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/castorvc/castor/internal/castor/repo"
)

// commitCompletions provides dynamic tab completion for commit
// identifiers: hash prefixes annotated with date and message.
func commitCompletions(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	// Only the first argument names a commit.
	if len(args) != 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	r, err := repo.Open(".")
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	ix, err := r.IndexFile().Load()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	objects, err := r.OpenObjects()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	infos, err := objects.ListCommits(ix.Head)
	if err != nil {
		// Don't return an error, just fail to complete.
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var suggestions []string
	for _, info := range infos {
		suggestions = append(suggestions, fmt.Sprintf("%s\t%s - %s",
			info.Hash.Short(),
			info.Commit.CommitTime.Local().Format("2006-01-02 15:04:05"),
			info.Commit.Message))
	}
	return suggestions, cobra.ShellCompDirectiveNoFileComp
}
