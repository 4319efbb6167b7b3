package main

import (
	"os"

	"github.com/spf13/cobra"
)

// NewCompletionCommand generates a completion script for one of the
// supported shells on stdout.
func NewCompletionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate a shell completion script",
		Long: `Generate a completion script for castor and print it to stdout.

Load it into the current shell:

  source <(castor completion bash)
  castor completion fish | source

or install it where the shell picks it up at startup:

  castor completion bash > /etc/bash_completion.d/castor
  castor completion zsh  > "${fpath[1]}/_castor"
  castor completion fish > ~/.config/fish/completions/castor.fish
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.ExactValidArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			switch args[0] {
			case "bash":
				cmd.Root().GenBashCompletion(os.Stdout)
			case "zsh":
				cmd.Root().GenZshCompletion(os.Stdout)
			case "fish":
				cmd.Root().GenFishCompletion(os.Stdout, true)
			case "powershell":
				cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
			}
		},
	}
}
