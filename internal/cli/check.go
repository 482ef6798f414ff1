// ─────────────────────────────────────────────────────────────────────────────
//  sketchc :: cli :: check  -  syntax-check every file without building
// ─────────────────────────────────────────────────────────────────────────────

package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tsuki/sketchc/internal/build"
	"github.com/tsuki/sketchc/internal/compiler"
	"github.com/tsuki/sketchc/internal/prefs"
	"github.com/tsuki/sketchc/internal/sketch"
	"github.com/tsuki/sketchc/internal/ui"
)

func newCheckCmd() *cobra.Command {
	var board string

	cmd := &cobra.Command{
		Use:   "check [sketch]",
		Short: "Report every compiler error and warning without linking",
		Long: `Preprocess the sketch and run each file through the compiler with
-fsyntax-only -Wall. Unlike build, check does not stop at the first
error, and no library is compiled.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSketch(args, overrides{prefs.KeyBoard: board})
			if err != nil {
				return err
			}
			opts, err := sess.buildOptions()
			if err != nil {
				return err
			}
			ui.SectionTitle(fmt.Sprintf("Checking %s  [board: %s]", sess.Sketch.Name, opts.Board.ID))

			diags, err := build.Check(cmd.Context(), sess.Sketch, opts)
			if err != nil {
				if len(diags) > 0 {
					printDiagnostics(sess.Sketch, diags)
				}
				return err
			}
			if n := printDiagnostics(sess.Sketch, diags); n > 0 {
				return fmt.Errorf("%d error(s) found", n)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&board, "board", "b", "", "target board")
	return cmd
}

// printDiagnostics renders a check run and returns the number of errors.
func printDiagnostics(s *sketch.Sketch, diags []compiler.Diagnostic) int {
	fmt.Println()
	if len(diags) == 0 {
		ui.Success(fmt.Sprintf("All %d file(s) OK, no errors or warnings", len(s.Files)))
		return 0
	}

	var warnings, errs []compiler.Diagnostic
	for _, d := range diags {
		if d.Severity == compiler.SeverityError {
			errs = append(errs, d)
		} else {
			warnings = append(warnings, d)
		}
	}

	if len(warnings) > 0 {
		ui.SectionTitle(fmt.Sprintf("Warnings (%d)", len(warnings)))
		for _, w := range warnings {
			ui.Warn(describe(w))
		}
	}

	if len(errs) > 0 {
		ui.SectionTitle(fmt.Sprintf("Errors (%d)", len(errs)))
		frames := make([]ui.Frame, 0, len(errs))
		for _, e := range errs {
			ui.Fail(describe(e))
			f := ui.Frame{File: e.File, Line: e.Line, Func: "check"}
			if e.FileIndex >= 0 && e.FileIndex < len(s.Files) {
				f.Code = ui.SourceContext(s.Files[e.FileIndex].Program, e.Line, 1)
			}
			frames = append(frames, f)
		}
		fmt.Fprintln(os.Stderr)
		ui.Traceback("CheckError", fmt.Sprintf("%d error(s) found", len(errs)), frames)
	}

	fmt.Println()
	summary := fmt.Sprintf("%d file(s) checked: %d error(s), %d warning(s)", len(s.Files), len(errs), len(warnings))
	if len(errs) > 0 {
		ui.Fail(summary)
	} else {
		ui.Warn(summary)
	}
	return len(errs)
}
