package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tsuki/sketchc/internal/sketch"
	"github.com/tsuki/sketchc/internal/ui"
)

func newSketchCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "sketch",
		Short: "List, add, rename and remove the files of a sketch",
		Long: `A sketch is a folder holding <folder name>.pde plus any number of
.pde, .c, .cpp and .h files. The .pde files are joined in tab order
(main file first, then alphabetical) before compiling.`,
	}
	cmd.PersistentFlags().StringVarP(&path, "sketch", "s", "", "sketch folder (default: current folder)")

	open := func() (*sketch.Sketch, error) {
		if path == "" {
			return sketch.Load(projectDir())
		}
		return sketch.Load(path)
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:     "files",
			Aliases: []string{"ls"},
			Short:   "List the sketch's files in tab order",
			Args:    cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := open()
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(s.Files))
				for _, f := range s.Files {
					rows = append(rows, []string{f.FileName, f.Flavor.String(), strconv.Itoa(f.LineCount())})
				}
				ui.SectionTitle(fmt.Sprintf("%s (%d files)", s.Name, len(s.Files)))
				ui.Table([]string{"FILE", "KIND", "LINES"}, rows)
				return nil
			},
		},
		&cobra.Command{
			Use:     "add <file>",
			Short:   "Create an empty file; a name without extension becomes a .pde",
			Args:    cobra.ExactArgs(1),
			Example: "  sketchc sketch add motor\n  sketchc sketch add motor.cpp",
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := open()
				if err != nil {
					return err
				}
				f, err := s.AddFile(args[0])
				if err != nil {
					return err
				}
				ui.Success(fmt.Sprintf("Created %s", f.Path))
				return nil
			},
		},
		&cobra.Command{
			Use:     "rename <old> <new>",
			Aliases: []string{"mv"},
			Short:   "Rename a file; renaming the main file renames the sketch",
			Args:    cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := open()
				if err != nil {
					return err
				}
				wasMain := s.Index(args[0]) == 0
				if err := s.RenameFile(args[0], args[1]); err != nil {
					return err
				}
				ui.Success(fmt.Sprintf("Renamed %s to %s", args[0], args[1]))
				if wasMain {
					ui.Info(fmt.Sprintf("The sketch now lives in %s", s.Folder))
				}
				return nil
			},
		},
		&cobra.Command{
			Use:     "rm <file>",
			Aliases: []string{"remove"},
			Short:   "Delete a file from the sketch",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := open()
				if err != nil {
					return err
				}
				if err := s.RemoveFile(args[0]); err != nil {
					return err
				}
				ui.Success(fmt.Sprintf("Removed %s", args[0]))
				return nil
			},
		},
	)
	return cmd
}
