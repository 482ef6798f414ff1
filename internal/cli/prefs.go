package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tsuki/sketchc/internal/prefs"
	"github.com/tsuki/sketchc/internal/ui"
)

func newPrefsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "prefs",
		Aliases: []string{"config"},
		Short:   "Read and change preferences",
		Long: `Preferences are flat key=value pairs. Built-in defaults are overlaid
with the user's preferences file; see 'sketchc prefs path'.`,
	}
	cmd.AddCommand(
		newPrefsListCmd(),
		newPrefsGetCmd(),
		newPrefsSetCmd(),
		newPrefsUnsetCmd(),
		newPrefsPathCmd(),
	)
	return cmd
}

var prefComments = map[string]string{
	prefs.KeyBoard:             "board id from boards.txt",
	prefs.KeyProgrammer:        "programmer id from programmers.txt",
	prefs.KeyUploadUsing:       `"bootloader" or a programmer id`,
	prefs.KeyUploadTimeout:     "seconds, 0 = none",
	prefs.KeyUploader:          "avrdude | uisp",
	prefs.KeyBuildPath:         "empty = fresh temp folder per build",
	prefs.KeyHardwarePath:      "folder holding cores/ bootloaders/ libraries/",
	prefs.KeyCompilerPath:      "empty = search PATH",
	prefs.KeySubstituteUnicode: "rewrite non-ASCII as \\uXXXX",
}

func newPrefsListCmd() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show every preference",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries := make([]ui.ConfigEntry, 0, len(pf))
			for _, k := range pf.Keys() {
				entries = append(entries, ui.ConfigEntry{Key: k, Value: pf.Get(k), Comment: prefComments[k]})
			}
			ui.PrintConfig("Preferences", entries, raw)
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print key=value lines")
	return cmd
}

func newPrefsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print one preference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := pf.Lookup(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
}

// userPrefs loads only what the user file holds, so saving it does not
// freeze the defaults into it.
func userPrefs() (prefs.Map, string, error) {
	path, err := prefs.Path()
	if err != nil {
		return nil, "", err
	}
	m, err := prefs.ParseFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return prefs.New(), path, nil
	}
	return m, path, err
}

func newPrefsSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "set <key> <value>",
		Short:   "Change a preference",
		Args:    cobra.ExactArgs(2),
		Example: "  sketchc prefs set board uno\n  sketchc prefs set serial.port /dev/ttyACM0",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			if err := prefs.CheckEntry(key, value); err != nil {
				return err
			}
			if _, known := prefs.Defaults()[key]; !known {
				ui.Warn(fmt.Sprintf("%q is not a built-in preference; setting it anyway", key))
			}
			m, path, err := userPrefs()
			if err != nil {
				return err
			}
			m.Set(key, value)
			if err := m.SaveFile(path); err != nil {
				return err
			}
			ui.Success(fmt.Sprintf("%s = %s", key, value))
			return nil
		},
	}
}

func newPrefsUnsetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unset <key>",
		Short: "Restore a preference to its default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, path, err := userPrefs()
			if err != nil {
				return err
			}
			if _, ok := m[args[0]]; !ok {
				ui.Info(fmt.Sprintf("%s is not set", args[0]))
				return nil
			}
			m.Remove(args[0])
			if err := m.SaveFile(path); err != nil {
				return err
			}
			ui.Success(fmt.Sprintf("%s reset to %q", args[0], prefs.Defaults().Get(args[0])))
			return nil
		},
	}
}

func newPrefsPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the location of the preferences file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := prefs.Path()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}
