package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/tsuki/sketchc/internal/prefs"
	"github.com/tsuki/sketchc/internal/ui"
)

func newCleanCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "clean [sketch]",
		Short: "Remove build output",
		Long: `Remove the sketch's build folder (build.path or sketch.toml's
output_dir). With --all, also remove every temporary sketchc-* build
folder left in the system temp folder.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := loadSettings(sketchArg(args), nil)
			if err != nil {
				return err
			}

			var targets []string
			if p := st.Prefs.Get(prefs.KeyBuildPath); p != "" {
				targets = append(targets, p)
			}
			if all {
				tmp := os.TempDir()
				matches, err := doublestar.Glob(os.DirFS(tmp), "sketchc-*")
				if err != nil {
					return err
				}
				for _, m := range matches {
					targets = append(targets, filepath.Join(tmp, m))
				}
			}

			removed := 0
			for _, t := range targets {
				if _, err := os.Stat(t); os.IsNotExist(err) {
					continue
				}
				if err := os.RemoveAll(t); err != nil {
					return fmt.Errorf("removing %s: %w", t, err)
				}
				ui.Step("removed", t)
				removed++
			}
			switch {
			case removed > 0:
				ui.Success(fmt.Sprintf("Removed %d build folder(s)", removed))
			case !all && st.Prefs.Get(prefs.KeyBuildPath) == "":
				ui.Info("Builds go to temporary folders; use --all to remove them")
			default:
				ui.Info("Nothing to clean")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "also remove temporary build folders")
	return cmd
}
