package commands

import (
	"fmt"

	"github.com/castorvc/castor/internal/castor/repo"
)

// Init creates a new repository rooted at dir.
func Init(dir string) error {
	r, err := repo.Init(dir)
	if err != nil {
		return err
	}
	fmt.Printf("Initialized empty repository in %s\n", r.MetaDir())
	return nil
}
