package cli

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tsuki/sketchc/internal/prefs"
	"github.com/tsuki/sketchc/internal/toolchain"
	"github.com/tsuki/sketchc/internal/ui"
)

const versionProbeTimeout = 5 * time.Second

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that the toolchain, hardware folder and preferences are usable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := loadSettings(projectDir(), nil)
			if err != nil {
				return err
			}
			tc := st.toolchain()

			ctx, cancel := context.WithTimeout(cmd.Context(), versionProbeTimeout)
			defer cancel()

			rows := make([][]string, len(toolchain.All))
			g, ctx := errgroup.WithContext(ctx)
			for i, tool := range toolchain.All {
				g.Go(func() error {
					rows[i] = probeTool(ctx, tc, tool)
					return nil
				})
			}
			_ = g.Wait()

			ui.SectionTitle("Toolchain")
			ui.Table([]string{"", "TOOL", "PATH", "VERSION"}, rows)

			problems := 0
			for _, r := range rows {
				if r[0] != "✓" && r[1] != toolchain.Uisp {
					problems++
				}
			}

			ui.SectionTitle("Environment")
			pp, _ := prefs.Path()
			ui.Step("preferences", pp)
			ui.Step("sketchbook", st.Prefs.Get(prefs.KeySketchbookPath))

			hw := st.hardware()
			b, err := st.board()
			switch {
			case err != nil:
				ui.Fail(err.Error())
				problems++
			default:
				core, err := hw.Core(b.Core())
				if err != nil {
					ui.Fail(err.Error())
					problems++
				} else {
					ui.Step("core", core)
				}
				ui.Step("board", fmt.Sprintf("%s (%s, %s)", b.ID, b.Name(), b.MCU()))
			}
			if d := hw.Bootloaders(); d != "" {
				ui.Step("bootloaders", d)
			}

			fmt.Println()
			if problems > 0 {
				return fmt.Errorf("%d problem(s) found", problems)
			}
			ui.Success("Ready to build")
			return nil
		},
	}
}

func probeTool(ctx context.Context, tc *toolchain.Toolchain, tool string) []string {
	path, err := exec.LookPath(tc.Path(tool))
	if err != nil {
		return []string{"✗", tool, "not found", ""}
	}
	v, err := tc.Version(ctx, tool)
	if err != nil {
		return []string{"⚠", tool, path, err.Error()}
	}
	return []string{"✓", tool, path, v}
}
