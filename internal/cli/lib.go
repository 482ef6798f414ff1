// ─────────────────────────────────────────────────────────────────────────────
//  sketchc :: cli :: lib  -  install, remove and list Arduino libraries
//
//  Libraries live in <sketchbook.path>/libraries. With --save the sketch's
//  sketch.toml records where each one came from, and `lib sync` installs
//  whatever it lists that is missing.
// ─────────────────────────────────────────────────────────────────────────────

package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tsuki/sketchc/internal/library"
	"github.com/tsuki/sketchc/internal/manifest"
	"github.com/tsuki/sketchc/internal/ui"
)

func newLibCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "lib",
		Aliases: []string{"library"},
		Short:   "Manage Arduino libraries",
		Long: `A library is a folder with at least one .h file directly inside it.
Its .c/.cpp files (and those in utility/) are compiled the first time a
sketch #includes one of its headers.`,
	}
	cmd.AddCommand(
		newLibListCmd(),
		newLibInstallCmd(),
		newLibRemoveCmd(),
		newLibSyncCmd(),
	)
	return cmd
}

// ── lib list ─────────────────────────────────────────────────────────────────

func newLibListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List installed libraries",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := loadSettings(projectDir(), nil)
			if err != nil {
				return err
			}
			root := libraryRoot(st.Prefs)
			set, err := library.Scan(root, st.hardware().Libraries())
			if err != nil {
				return err
			}
			if len(set.All()) == 0 {
				ui.Info("No libraries installed")
			} else {
				rows := make([][]string, 0, len(set.All()))
				for _, l := range set.All() {
					rows = append(rows, []string{l.Name, strings.Join(l.Headers, " "), strconv.Itoa(len(l.Sources)), l.Folder})
				}
				ui.SectionTitle(fmt.Sprintf("Libraries (%d)", len(rows)))
				ui.Table([]string{"NAME", "HEADERS", "SOURCES", "FOLDER"}, rows)
			}
			ui.Info(fmt.Sprintf("Libraries directory: %s", root))
			return nil
		},
	}
}

// ── lib install ──────────────────────────────────────────────────────────────

func newLibInstallCmd() *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "install <source>",
		Short: "Install a library from a folder, a .zip or a .zip URL",
		Example: `  sketchc lib install ~/Downloads/Servo.zip
  sketchc lib install https://example.org/LiquidCrystal.zip --save
  sketchc lib install ./MyLib`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := args[0]
			if !isURL(source) {
				if abs, err := filepath.Abs(source); err == nil {
					source = abs
				}
			}

			sp := ui.NewSpinner(fmt.Sprintf("Installing %s...", args[0]))
			sp.Start()
			lib, err := library.Install(source, libraryRoot(pf))
			if err != nil {
				sp.Stop(false, "installation failed")
				return err
			}
			sp.Stop(true, fmt.Sprintf("Installed %s", lib.Name))

			fmt.Println()
			ui.PrintConfig("Library installed", []ui.ConfigEntry{
				{Key: "name", Value: lib.Name},
				{Key: "headers", Value: lib.Headers},
				{Key: "sources", Value: len(lib.Sources)},
				{Key: "path", Value: lib.Folder},
			}, false)

			if save {
				return saveLibrary(lib.Name, source)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "record the library in the sketch's sketch.toml")
	return cmd
}

func saveLibrary(name, source string) error {
	dir := projectDir()
	m, err := manifest.Load(dir)
	if err != nil {
		return err
	}
	if !m.AddLibrary(name, source) {
		ui.Warn(fmt.Sprintf("Library %q is already declared in %s", name, manifest.FileName))
		return nil
	}
	if err := m.Save(dir); err != nil {
		return fmt.Errorf("saving manifest: %w", err)
	}
	ui.Info(fmt.Sprintf("Added %s to %s", name, manifest.FileName))
	return nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// ── lib remove ───────────────────────────────────────────────────────────────

func newLibRemoveCmd() *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm", "uninstall"},
		Short:   "Remove an installed library",
		Example: `  sketchc lib remove Servo
  sketchc lib remove Servo --save   # also removes it from sketch.toml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if err := library.Remove(libraryRoot(pf), name); err != nil {
				return err
			}
			ui.Success(fmt.Sprintf("Removed %s", name))

			if save {
				dir := projectDir()
				m, err := manifest.Load(dir)
				if err != nil {
					return err
				}
				if m.RemoveLibrary(name) {
					if err := m.Save(dir); err != nil {
						return fmt.Errorf("saving manifest: %w", err)
					}
					ui.Info(fmt.Sprintf("Removed %s from %s", name, manifest.FileName))
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "also remove it from the sketch's sketch.toml")
	return cmd
}

// ── lib sync ─────────────────────────────────────────────────────────────────

func newLibSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync [sketch]",
		Short: "Install every library sketch.toml lists that is missing",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := sketchArg(args)
			st, err := loadSettings(dir, nil)
			if err != nil {
				return err
			}
			names := st.Manifest.LibraryNames()
			if len(names) == 0 {
				ui.Info(fmt.Sprintf("No [libraries] in %s", filepath.Join(dir, manifest.FileName)))
				return nil
			}

			root := libraryRoot(st.Prefs)
			set, err := library.Scan(root, st.hardware().Libraries())
			if err != nil {
				return err
			}

			ui.SectionTitle(fmt.Sprintf("Syncing %d librar(ies)", len(names)))
			var failed []string
			for _, name := range names {
				if _, err := set.Get(name); err == nil {
					ui.Step(name, "already installed")
					continue
				}
				source := st.Manifest.Libraries[name]
				sp := ui.NewSpinner(fmt.Sprintf("Installing %s from %s...", name, source))
				sp.Start()
				lib, err := library.Install(source, root)
				if err != nil && !errors.Is(err, library.ErrAlreadyExists) {
					sp.Stop(false, fmt.Sprintf("%s: %v", name, err))
					failed = append(failed, name)
					continue
				}
				sp.Stop(true, fmt.Sprintf("Installed %s", name))
				if lib != nil && lib.Name != name {
					ui.Warn(fmt.Sprintf("%s installed as %q", name, lib.Name))
				}
			}
			if len(failed) > 0 {
				return fmt.Errorf("could not install: %s", strings.Join(failed, ", "))
			}
			return nil
		},
	}
}
