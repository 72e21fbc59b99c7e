package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set via ldflags.
var Version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "chatlink",
		Short: "Real-time support-chat client",
		Long: `chatlink connects to a support backend over a reconnecting websocket
session, tracks every in-flight message, queues sends while offline, and
correlates agent replies to the questions that triggered them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newChatCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the chatlink version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "chatlink %s\n", Version)
		},
	}
}
