// ─────────────────────────────────────────────────────────────────────────────
//  sketchc :: cli :: build
//
//  Compiles a sketch folder to <build path>/<sketch>.hex and optionally
//  writes a build report:
//    --report build.yaml   YAML
//    --report build.json   JSON
// ─────────────────────────────────────────────────────────────────────────────

package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tsuki/sketchc/internal/build"
	"github.com/tsuki/sketchc/internal/prefs"
	"github.com/tsuki/sketchc/internal/report"
	"github.com/tsuki/sketchc/internal/size"
	"github.com/tsuki/sketchc/internal/ui"
)

func newBuildCmd() *cobra.Command {
	var (
		board      string
		buildPath  string
		reportPath string
	)

	cmd := &cobra.Command{
		Use:     "build [sketch]",
		Aliases: []string{"verify", "compile"},
		Short:   "Compile a sketch to a .hex file",
		Args:    cobra.MaximumNArgs(1),
		Example: `  sketchc build
  sketchc build ~/sketchbook/Blink --board uno
  sketchc build --build-path ./build --report build.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if reportPath != "" {
				if _, err := report.FormatOf(reportPath); err != nil {
					return err
				}
			}
			sess, err := openSketch(args, overrides{
				prefs.KeyBoard:     board,
				prefs.KeyBuildPath: buildPath,
			})
			if err != nil {
				return err
			}
			res, err := runBuild(cmd.Context(), sess)
			if reportPath != "" && res != nil {
				if werr := report.Write(reportPath, res); werr != nil {
					ui.Warn(fmt.Sprintf("could not write report: %v", werr))
				} else {
					ui.Step("report", reportPath)
				}
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&board, "board", "b", "", "target board (overrides sketch.toml and preferences)")
	cmd.Flags().StringVar(&buildPath, "build-path", "", "build folder, kept between builds (default: a fresh temp folder)")
	cmd.Flags().StringVar(&reportPath, "report", "", "write a build report (.yaml, .yml or .json)")
	return cmd
}

// runBuild builds the session's sketch and renders the outcome. The result
// is returned whenever the build got far enough to have one.
func runBuild(ctx context.Context, sess *session) (*build.Result, error) {
	opts, err := sess.buildOptions()
	if err != nil {
		return nil, err
	}
	ui.SectionTitle(fmt.Sprintf("Building %s  [board: %s]", sess.Sketch.Name, opts.Board.ID))

	res, err := build.Run(ctx, sess.Sketch, opts)
	if res != nil {
		for _, w := range res.Warnings {
			ui.Warn(describe(w))
		}
	}
	switch {
	case err == nil:
	case errors.Is(err, size.ErrSketchTooBig):
		ui.SizeBar("flash", res.Size, res.MaxSize)
		ui.Box("Sketch too big", fmt.Sprintf(
			"%d bytes of a %d byte maximum.\n\n"+
				"See http://www.arduino.cc/en/Guide/Troubleshooting#size\n"+
				"for tips on reducing it.", res.Size, res.MaxSize), ui.ColorWarn)
		return res, err
	case renderError(sess.Sketch, err):
		return res, errors.New("compilation failed")
	default:
		return res, err
	}

	ui.SizeBar("flash", res.Size, res.MaxSize)
	ui.Success(fmt.Sprintf("%s  (%s)", res.Hex, res.Duration.Round(time.Millisecond)))
	return res, nil
}
