package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/castorvc/castor/internal/castor/commands"
	"github.com/spf13/cobra"
)

func NewAddCommand() *cobra.Command {
	var paranoid bool
	var hintSpecs []string

	cmd := &cobra.Command{
		Use:   "add [paths...]",
		Short: "Stage files for the next commit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			hints, err := parseHints(hintSpecs)
			if err != nil {
				return err
			}
			return commands.Add(".", args, commands.AddOptions{
				Paranoid: paranoid,
				Hints:    hints,
			})
		},
	}

	cmd.Flags().BoolVar(&paranoid, "paranoid", false, "Re-chunk every file, ignoring the stat cache")
	cmd.Flags().StringArrayVar(&hintSpecs, "hints", nil, "Boundary hints as path=off1,off2,... (repeatable)")

	return cmd
}

// parseHints turns repeated path=off1,off2 flags into the hint map.
// Offsets must be ascending byte positions within the named file.
func parseHints(specs []string) (map[string][]int64, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	hints := make(map[string][]int64, len(specs))
	for _, spec := range specs {
		path, list, ok := strings.Cut(spec, "=")
		if !ok {
			return nil, fmt.Errorf("invalid hint %q, expected path=off1,off2,...", spec)
		}
		for _, s := range strings.Split(list, ",") {
			off, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid hint offset %q for %s", s, path)
			}
			hints[path] = append(hints[path], off)
		}
	}
	return hints, nil
}
