package commands

import (
	"fmt"
	"time"

	"github.com/castorvc/castor/internal/castor/repo"
)

// Gc removes chunks that have held a zero reference count for longer
// than the grace period. A zero graceOverride uses the configured
// grace; passing one overrides it for this run only.
func Gc(dir string, graceOverride time.Duration) error {
	r, err := repo.Open(dir)
	if err != nil {
		return err
	}

	grace := graceOverride
	if grace == 0 {
		grace, err = r.GCGrace()
		if err != nil {
			return err
		}
	}

	chunkStore, err := r.OpenStore()
	if err != nil {
		return err
	}
	defer chunkStore.Close()

	removed, err := chunkStore.CollectGarbage(grace)
	if err != nil {
		return err
	}

	fmt.Printf("Removed %d chunk(s).\n", removed)
	return nil
}
