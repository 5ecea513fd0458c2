// Package cmd provides command-line interface for disc image building.
// This file contains the command that reassembles a catalog and directory
// tree into a mixed-mode PlayStation CD image.
package cmd

import (
	"fmt"

	"github.com/hansbonini/psximager/pkg"
	"github.com/hansbonini/psximager/pkg/common"
	"github.com/spf13/cobra"
)

// buildCmd reassembles a catalog and directory tree into a disc image.
// It parses the catalog, lays out the filesystem, synthesizes raw Mode 2
// sectors and appends the audio tracks described by the track listing.
var buildCmd = &cobra.Command{
	Use:   "build [input.cat] [output.bin]",
	Short: "Build a PlayStation disc image from a catalog",
	Long: `Build a PlayStation disc image from a catalog and directory tree.

This command reads a catalog file produced by 'psximager rip', lays out every
file and directory of the ISO 9660 filesystem, synthesizes raw Mode 2 sectors
with EDC/ECC, writes the data-track postgap and appends the audio tracks.

Output:
  - The rebuilt .bin image
  - A matching .cue sheet (when -c flag is used)

Example:
  psximager build ./dump/GAME.cat GAME_rebuilt.bin
  psximager build -c -v ./dump/GAME.cat`,
	Args: usageArgs(cobra.RangeArgs(1, 2)),
	RunE: func(cmd *cobra.Command, args []string) error {
		inputPath := args[0]
		outputPath := ""
		if len(args) > 1 {
			outputPath = args[1]
		}

		// Enable verbose mode if requested
		verbose, err := cmd.Flags().GetBool("verbose")
		if err != nil {
			return fmt.Errorf("error getting verbose flag: %w", err)
		}
		common.SetVerboseMode(verbose)

		writeCue, _ := cmd.Flags().GetBool("cuefile")

		builder := pkg.NewCDBuilder(pkg.BuildOptions{
			WriteCueFile: writeCue,
		})

		fmt.Printf("Processing catalog file: %s\n", inputPath)

		if err := builder.Build(inputPath, outputPath); err != nil {
			return fmt.Errorf("failed to build disc image: %w", err)
		}

		fmt.Println("Disc image built successfully!")

		return nil
	},
}

// init initializes the build command with its flags.
func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().BoolP("cuefile", "c", false, "Emit a .cue alongside the .bin")
	buildCmd.Flags().BoolP("verbose", "v", false, "Enable verbose output")
}
