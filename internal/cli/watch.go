package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tsuki/sketchc/internal/prefs"
	"github.com/tsuki/sketchc/internal/ui"
	"github.com/tsuki/sketchc/internal/watch"
)

func newWatchCmd() *cobra.Command {
	var (
		board     string
		buildPath string
		andUpload bool
		delay     = watch.DefaultDelay
	)

	cmd := &cobra.Command{
		Use:   "watch [sketch]",
		Short: "Rebuild the sketch whenever one of its files changes",
		Long: `Build once, then watch the sketch folder and rebuild after every burst
of changes, for editing the sketch in an external editor. The build
folder is kept between builds so libraries are only compiled once.
Runs until interrupted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o := overrides{prefs.KeyBoard: board, prefs.KeyBuildPath: buildPath}
			sess, err := openSketch(args, o)
			if err != nil {
				return err
			}
			if sess.Prefs.Get(prefs.KeyBuildPath) == "" {
				o[prefs.KeyBuildPath] = filepath.Join(os.TempDir(), "sketchc-watch-"+sess.Sketch.Name)
			}
			folder := sess.Sketch.Folder

			rebuild := func(ctx context.Context) {
				// sketch.toml and the tab list may have changed too
				sess, err := openSketch([]string{folder}, o)
				if err != nil {
					ui.Fail(err.Error())
					return
				}
				res, err := runBuild(ctx, sess)
				if err != nil {
					ui.Fail(err.Error())
					return
				}
				if andUpload {
					if err := runUpload(ctx, sess, res, sess.Manifest.Upload.Speed); err != nil {
						ui.Fail(err.Error())
					}
				}
			}

			ctx := cmd.Context()
			rebuild(ctx)
			ui.Info(fmt.Sprintf("Watching %s (Ctrl-C to stop)", folder))
			return watch.Run(ctx, folder, watch.Options{Delay: delay}, func(ctx context.Context, changed []string) {
				for _, f := range changed {
					ui.Step("changed", filepath.Base(f))
				}
				rebuild(ctx)
			})
		},
	}

	cmd.Flags().StringVarP(&board, "board", "b", "", "target board")
	cmd.Flags().StringVar(&buildPath, "build-path", "", "build folder (default: a per-sketch temp folder)")
	cmd.Flags().BoolVar(&andUpload, "upload", false, "upload after every successful build")
	cmd.Flags().DurationVar(&delay, "delay", watch.DefaultDelay, "quiet period before rebuilding")
	return cmd
}
