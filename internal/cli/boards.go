package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tsuki/sketchc/internal/prefs"
	"github.com/tsuki/sketchc/internal/ui"
)

func newBoardsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "boards",
		Short: "List the boards from boards.txt",
		Long: `Boards and programmers are read from <hardware.path>/boards.txt and
programmers.txt, falling back to the built-in definitions.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := loadSettings(projectDir(), nil)
			if err != nil {
				return err
			}
			c, err := st.catalog()
			if err != nil {
				return err
			}
			current := st.Prefs.Get(prefs.KeyBoard)
			rows := make([][]string, 0, len(c.Boards))
			for _, b := range c.Boards {
				id := b.ID
				if id == current {
					id += " *"
				}
				rows = append(rows, []string{id, b.Name(), b.MCU(), b.UploadProtocol(), strconv.Itoa(b.MaxSize())})
			}
			ui.SectionTitle(fmt.Sprintf("Boards (%d)", len(c.Boards)))
			ui.Table([]string{"ID", "NAME", "MCU", "PROTOCOL", "MAX SIZE"}, rows)
			return nil
		},
	}
	cmd.AddCommand(newBoardsShowCmd(), newProgrammersCmd())
	return cmd
}

func newBoardsShowCmd() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "show <board>",
		Short: "Show every property of a board",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := loadSettings(projectDir(), nil)
			if err != nil {
				return err
			}
			c, err := st.catalog()
			if err != nil {
				return err
			}
			b, err := c.Board(args[0])
			if err != nil {
				return err
			}
			var entries []ui.ConfigEntry
			for _, k := range b.Props.Keys() {
				entries = append(entries, ui.ConfigEntry{Key: k, Value: b.Props.Get(k)})
			}
			ui.PrintConfig(fmt.Sprintf("Board %s", b.ID), entries, raw)
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print key=value lines")
	return cmd
}

func newProgrammersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "programmers",
		Short: "List the programmers from programmers.txt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := loadSettings(projectDir(), nil)
			if err != nil {
				return err
			}
			c, err := st.catalog()
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(c.Programmers))
			for _, p := range c.Programmers {
				rows = append(rows, []string{p.ID, p.Name(), p.Protocol(), p.Communication()})
			}
			ui.SectionTitle(fmt.Sprintf("Programmers (%d)", len(c.Programmers)))
			ui.Table([]string{"ID", "NAME", "PROTOCOL", "COMMUNICATION"}, rows)
			return nil
		},
	}
}
