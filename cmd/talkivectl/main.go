package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var language string

	root := &cobra.Command{
		Use:          "talkivectl",
		Short:        "Practice conversations with Talkive from the terminal",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&language, "language", "l", "", "practice language (overrides TALKIVE_LANGUAGE)")

	root.AddCommand(
		newPingCommand(),
		newChatCommand(&language),
		newDictateCommand(&language),
	)
	return root
}
