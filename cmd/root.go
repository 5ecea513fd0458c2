// Package cmd provides command-line interface functionality for PSXImager.
// PSXImager is a pair of round-trip tools for PlayStation 1 disc images:
// a ripper that disassembles a .bin/.cue image into a catalog and directory
// tree, and a builder that reassembles them into a mixed-mode image.
package cmd

import (
	"errors"
	"os"

	"github.com/hansbonini/psximager/pkg"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands.
// It provides the main entry point for the PSXImager application.
var rootCmd = &cobra.Command{
	Use:   "psximager",
	Short: "Rip and rebuild PlayStation 1 disc images",
	Long: `PSXImager - Round-trip tools for PlayStation 1 disc images.

Commands:
  rip       Disassemble a .bin/.cue image into a catalog and directory tree
  build     Reassemble a catalog and directory tree into a .bin image

Examples:
  psximager rip GAME.cue ./dump/
  psximager rip -s GAME.cue ./dump/
  psximager build -c ./dump/GAME.cat GAME_rebuilt.bin

Use 'psximager [command] --help' for more information about a command.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main() and serves as the entry point for command execution.
// Usage errors exit with code 64, runtime errors with code 1.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		var usageErr *pkg.UsageError
		if errors.As(err, &usageErr) {
			os.Exit(64)
		}
		os.Exit(1)
	}
}
