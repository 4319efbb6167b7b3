package commands

import (
	"fmt"

	"github.com/castorvc/castor/internal/castor/repo"
)

// Log prints the commit list, newest first.
func Log(dir string) error {
	r, err := repo.Open(dir)
	if err != nil {
		return err
	}

	ix, err := r.IndexFile().Load()
	if err != nil {
		return err
	}
	objects, err := r.OpenObjects()
	if err != nil {
		return err
	}
	infos, err := objects.ListCommits(ix.Head)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("No commits yet.")
		return nil
	}

	for i := len(infos) - 1; i >= 0; i-- {
		c := infos[i].Commit
		fmt.Printf("commit %s\n", infos[i].Hash)
		fmt.Printf("Author: %s\n", c.Author)
		fmt.Printf("Date:   %s\n", c.CommitTime.Local().Format("Mon Jan 2 15:04:05 2006"))
		fmt.Printf("\n    %s\n\n", c.Message)
	}
	return nil
}
