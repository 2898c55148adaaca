// Package commands implements the koro CLI commands.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "koro",
		Short: "KoroMind - personal voice-first assistant",
		Long: `KoroMind runs an agent engine behind voice and text front-ends.

Examples:
  koro serve
  koro chat`,
		Version: version,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newChatCmd(),
	)

	return rootCmd
}
