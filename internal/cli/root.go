// ─────────────────────────────────────────────────────────────────────────────
//  sketchc :: cli  -  root cobra command + subcommand registration
// ─────────────────────────────────────────────────────────────────────────────

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tsuki/sketchc/internal/prefs"
	"github.com/tsuki/sketchc/internal/ui"
)

var (
	globalVerbose bool
	globalNoColor bool
	pf            prefs.Map
)

var rootCmd = &cobra.Command{
	Use:   "sketchc",
	Short: "Arduino sketch compiler & uploader",
	Long: banner() + `
sketchc turns an Arduino sketch folder (.pde/.ino tabs plus .c/.cpp/.h
files) into firmware and uploads it to the board.

Settings come from, highest first: command-line flags, the sketch's
sketch.toml, the preferences file, built-in defaults.

Run 'sketchc <command> --help' for details on each command.
`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if globalNoColor {
			color.NoColor = true
		}
		level := slog.LevelWarn
		if globalVerbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

		var err error
		pf, err = prefs.Load()
		if err != nil {
			ui.Warn(fmt.Sprintf("Preferences load error: %v, using defaults", err))
			pf = prefs.Defaults()
		}
		if globalVerbose {
			pf.SetBool(prefs.KeyBuildVerbose, true)
			pf.SetBool(prefs.KeyUploadVerbose, true)
		}
		return nil
	},
}

// Execute is the entry point called from main(). ctx is cancelled on
// interrupt, which stops any running tool.
func Execute(ctx context.Context) error {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.Fail(err.Error())
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&globalVerbose, "verbose", "v", false, "verbose output (echo commands, debug logs)")
	rootCmd.PersistentFlags().BoolVar(&globalNoColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(
		// pipeline
		newBuildCmd(),
		newCheckCmd(),
		newUploadCmd(),
		newBurnCmd(),
		newWatchCmd(),
		newCleanCmd(),
		// sketch folder
		newNewCmd(),
		newSketchCmd(),
		newLibCmd(),
		// environment
		newPrefsCmd(),
		newBoardsCmd(),
		newPortsCmd(),
		newMonitorCmd(),
		newDoctorCmd(),
		newVersionCmd(),
	)
}

func banner() string {
	b := `
  ███████╗██╗  ██╗███████╗████████╗ ██████╗██╗  ██╗ ██████╗
  ██╔════╝██║ ██╔╝██╔════╝╚══██╔══╝██╔════╝██║  ██║██╔════╝
  ███████╗█████╔╝ █████╗     ██║   ██║     ███████║██║
  ╚════██║██╔═██╗ ██╔══╝     ██║   ██║     ██╔══██║██║
  ███████║██║  ██╗███████╗   ██║   ╚██████╗██║  ██║╚██████╗
  ╚══════╝╚═╝  ╚═╝╚══════╝   ╚═╝    ╚═════╝╚═╝  ╚═╝ ╚═════╝
`
	if color.NoColor {
		return b
	}
	return ui.ColorInfo.Sprint(b)
}

func projectDir() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}
