// Command bspatch is a thin CLI front end over pkg/bspatch: it parses
// flags and positional arguments, invokes the patch applier, and maps
// its errors to process exit status.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crosimg/bspatch/pkg/bspatch"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		oldExtents   string
		newExtents   string
		maxImageSize int64
	)

	cmd := &cobra.Command{
		Use:   "bspatch OLDFILE NEWFILE PATCHFILE",
		Short: "Apply a BSDIFF40 patch, optionally against extent-addressed images",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			oldPath, newPath, patchPath := args[0], args[1], args[2]
			opts := bspatch.Options{MaxImageSize: maxImageSize}
			err := bspatch.ApplyFile(oldPath, newPath, patchPath, oldExtents, newExtents, opts)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), diagnose(err))
				return err
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().StringVar(&oldExtents, "old-extents", "", "extent spec (offset:length,...) addressing the old image within oldfile")
	cmd.Flags().StringVar(&newExtents, "new-extents", "", "extent spec (offset:length,...) addressing the new image within newfile")
	cmd.Flags().Int64Var(&maxImageSize, "max-image-size", 0, "sanity ceiling for the declared new-image size (0 = default)")
	return cmd
}

// diagnose turns one of pkg/bspatch's sentinel error kinds into a
// human-readable line for the error channel.
func diagnose(err error) string {
	switch {
	case errors.Is(err, bspatch.ErrCorruptPatch):
		return fmt.Sprintf("bspatch: corrupt patch: %v", err)
	case errors.Is(err, bspatch.ErrTooLarge):
		return fmt.Sprintf("bspatch: refusing oversized image: %v", err)
	case errors.Is(err, bspatch.ErrOutOfMemory):
		return fmt.Sprintf("bspatch: out of memory: %v", err)
	case errors.Is(err, bspatch.ErrIo):
		return fmt.Sprintf("bspatch: i/o error: %v", err)
	default:
		return fmt.Sprintf("bspatch: %v", err)
	}
}
