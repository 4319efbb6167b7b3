package commands

import (
	"fmt"

	"github.com/castorvc/castor/internal/castor/index"
	"github.com/castorvc/castor/internal/castor/repo"
	"github.com/castorvc/castor/internal/castor/types"
)

// StatusOptions configure the status scan.
type StatusOptions struct {
	Paranoid bool
}

// Status runs the two comparisons (index vs. HEAD, worktree vs. index)
// and prints the combined report.
func Status(dir string, opts StatusOptions) (*index.Report, error) {
	r, err := repo.Open(dir)
	if err != nil {
		return nil, err
	}

	ix, err := r.IndexFile().Load()
	if err != nil {
		return nil, err
	}

	var headFiles map[string]*types.FileManifest
	if !ix.Head.IsZero() {
		objects, err := r.OpenObjects()
		if err != nil {
			return nil, err
		}
		commit, err := objects.GetCommit(ix.Head)
		if err != nil {
			return nil, err
		}
		headFiles, err = objects.WalkManifests(commit.Tree)
		if err != nil {
			return nil, err
		}
	}

	report, err := ix.Status(headFiles, index.StatusOptions{
		Root:      r.Root,
		Ignored:   r.Ignored,
		Paranoid:  opts.Paranoid || r.Config.Index.Paranoid,
		Algorithm: r.Config.Chunker.Algorithm,
		Params:    r.Config.Params(),
	})
	if err != nil {
		return nil, err
	}

	printStatus(ix, report)
	return report, nil
}

func printStatus(ix *index.Index, report *index.Report) {
	if ix.Head.IsZero() {
		fmt.Println("No commits yet.")
	} else {
		fmt.Printf("HEAD: %s\n", ix.Head.Short())
	}

	if len(report.Conflicted) > 0 {
		fmt.Println("\nUnresolved conflicts:")
		for _, p := range report.Conflicted {
			fmt.Printf("  both modified: %s\n", p)
		}
	}
	if len(report.Staged) > 0 {
		fmt.Println("\nChanges to be committed:")
		for _, c := range report.Staged {
			fmt.Printf("  %-9s %s\n", c.Kind+":", c.Path)
		}
	}
	if len(report.Worktree) > 0 {
		fmt.Println("\nChanges not staged:")
		for _, c := range report.Worktree {
			fmt.Printf("  %-9s %s\n", c.Kind+":", c.Path)
		}
	}
	if len(report.Untracked) > 0 {
		fmt.Println("\nUntracked files:")
		for _, p := range report.Untracked {
			fmt.Printf("  %s\n", p)
		}
	}
	if len(report.Conflicted) == 0 && len(report.Staged) == 0 &&
		len(report.Worktree) == 0 && len(report.Untracked) == 0 {
		fmt.Println("Working tree clean.")
	}
}
