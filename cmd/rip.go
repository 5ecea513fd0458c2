// Package cmd provides command-line interface for disc image ripping.
// This file contains the command that disassembles a PlayStation CD image
// into a catalog file, a system area dump and a browseable directory tree.
package cmd

import (
	"fmt"

	"github.com/hansbonini/psximager/pkg"
	"github.com/hansbonini/psximager/pkg/common"
	"github.com/spf13/cobra"
)

// ripCmd disassembles a PlayStation disc image into its contents.
// It analyzes the track layout, extracts audio tracks as WAV files, walks the
// ISO 9660 filesystem and writes a catalog describing everything needed for
// a later rebuild.
var ripCmd = &cobra.Command{
	Use:   "rip [input.bin/cue] [output_directory]",
	Short: "Disassemble a PlayStation disc image into its contents",
	Long: `Disassemble a PlayStation disc image (.bin/.cue) into its contents.

This command reads a mixed-mode PlayStation CD image and produces:
  - A catalog file (.cat) describing the volume, track layout and every
    directory record including CD-XA attributes and dates
  - A raw dump of the 16-sector system area (.sys)
  - The ISO 9660 directory tree mirrored on the host filesystem
  - Audio tracks and pregaps as WAV files under _PSXRIP/

Output:
  - <output>.cat, <output>.sys and <output>/ next to each other
  - Detailed log of track and file information (when -v flag is used)

Example:
  psximager rip GAME.cue ./dump/
  psximager rip -s -v GAME.cue ./dump/`,
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

		fixDates, _ := cmd.Flags().GetBool("fix")
		writeLBNs, _ := cmd.Flags().GetBool("lbns")
		strict, _ := cmd.Flags().GetBool("strict")
		lbnTable, _ := cmd.Flags().GetBool("lbn-table")

		ripper := pkg.NewCDRipper(pkg.RipOptions{
			FixDates:  fixDates,
			WriteLBNs: writeLBNs || strict,
			Strict:    strict,
			LBNTable:  lbnTable,
		})

		if lbnTable {
			return ripper.PrintLBNTable(inputPath)
		}

		fmt.Printf("Processing disc image: %s\n", inputPath)

		if err := ripper.Rip(inputPath, outputPath); err != nil {
			return fmt.Errorf("failed to rip disc image: %w", err)
		}

		fmt.Println("Disc image ripped successfully!")

		return nil
	},
}

// init initializes the rip command with its flags.
func init() {
	rootCmd.AddCommand(ripCmd)

	ripCmd.Flags().BoolP("fix", "f", false, "Normalize Y2K dates instead of preserving the anomaly")
	ripCmd.Flags().BoolP("lbns", "l", false, "Write LBNs for every entry into the catalog")
	ripCmd.Flags().BoolP("strict", "s", false, "Imply -l; mark the catalog for strict rebuild")
	ripCmd.Flags().BoolP("lbn-table", "t", false, "Print LBN/size/type table and exit")
	ripCmd.Flags().BoolP("verbose", "v", false, "Enable verbose output with detailed file information")
}

// usageArgs wraps a cobra argument validator so that argument count errors
// map to the usage exit code instead of a plain runtime error.
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return &pkg.UsageError{Message: err.Error()}
		}
		return nil
	}
}
