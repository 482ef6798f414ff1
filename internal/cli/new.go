// ─────────────────────────────────────────────────────────────────────────────
//  sketchc :: cli :: new  -  create a sketch folder, interactively or not
//
//    <parent>/<name>/<name>.pde   setup()/loop() template
//    <parent>/<name>/sketch.toml  board + build output folder
//
//  On a terminal the name and board are asked for (arrow keys pick the
//  board); --yes or a pipe takes the defaults.
// ─────────────────────────────────────────────────────────────────────────────

package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tsuki/sketchc/internal/boards"
	"github.com/tsuki/sketchc/internal/manifest"
	"github.com/tsuki/sketchc/internal/prefs"
	"github.com/tsuki/sketchc/internal/sketch"
	"github.com/tsuki/sketchc/internal/ui"
)

var (
	wCyan  = color.New(color.FgHiCyan)
	wGreen = color.New(color.FgHiGreen)
	wDim   = color.New(color.FgHiBlack)
	wBold  = color.New(color.Bold)
)

var errCancelled = errors.New("cancelled")

func newNewCmd() *cobra.Command {
	var (
		board      string
		parent     string
		yes        bool
		noManifest bool
	)

	cmd := &cobra.Command{
		Use:     "new [name]",
		Aliases: []string{"init"},
		Short:   "Create a new sketch",
		Args:    cobra.MaximumNArgs(1),
		Example: `  sketchc new
  sketchc new Blink --board uno
  sketchc new Blink --dir ~/sketchbook --yes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := &wizard{
				in:          bufio.NewReader(cmd.InOrStdin()),
				interactive: !yes && stdinIsTerminal(),
			}

			name := ""
			if len(args) > 0 {
				name = args[0]
			}
			name, err := w.name(1, name)
			if err != nil {
				return err
			}

			c, err := boards.Load(pf.Get(prefs.KeyHardwarePath))
			if err != nil {
				return err
			}
			if board == "" {
				if board, err = w.board(2, c, pf.Get(prefs.KeyBoard)); err != nil {
					return err
				}
			} else {
				if _, err := c.Board(board); err != nil {
					return err
				}
				stepDone(2, "Board", board)
			}

			if parent == "" {
				parent = projectDir()
			}
			s, err := sketch.New(parent, name)
			if err != nil {
				return err
			}
			if s.Name != name {
				ui.Warn(fmt.Sprintf("The sketch name had to be changed to %q", s.Name))
			}
			if !noManifest {
				if err := manifest.Default(board).Save(s.Folder); err != nil {
					return fmt.Errorf("writing %s: %w", manifest.FileName, err)
				}
			}
			printCreated(s, board, parent)
			return nil
		},
	}

	cmd.Flags().StringVarP(&board, "board", "b", "", "skip the board prompt")
	cmd.Flags().StringVar(&parent, "dir", "", "folder to create the sketch in (default: current folder)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "accept all defaults")
	cmd.Flags().BoolVar(&noManifest, "no-manifest", false, "do not write sketch.toml")
	return cmd
}

// ─────────────────────────────────────────────────────────────────────────────
//  Wizard
// ─────────────────────────────────────────────────────────────────────────────

type wizard struct {
	in          *bufio.Reader
	interactive bool
}

func (w *wizard) name(step int, prefill string) (string, error) {
	switch {
	case prefill != "":
		stepDone(step, "Sketch name", prefill)
		return prefill, nil
	case !w.interactive:
		stepDone(step, "Sketch name", defaultName()+" (default)")
		return defaultName(), nil
	}
	return promptText(w.in, step, "Sketch name", defaultName()), nil
}

// defaultName is sketch_<month><day>a, e.g. sketch_oct17a.
func defaultName() string {
	return "sketch_" + strings.ToLower(time.Now().Format("Jan02")) + "a"
}

func (w *wizard) board(step int, c *boards.Catalog, current string) (string, error) {
	if !w.interactive || len(c.Boards) == 0 {
		stepDone(step, "Board", current+" (default)")
		return current, nil
	}
	labels := make([]string, len(c.Boards))
	def := 0
	for i, b := range c.Boards {
		labels[i] = fmt.Sprintf("%-12s %s", b.ID, b.Name())
		if b.ID == current {
			def = i
		}
	}
	idx, err := promptArrowSelect(step, "Board", labels, def)
	if err != nil {
		return "", err
	}
	return c.Boards[idx].ID, nil
}

func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// promptArrowSelect shows an arrow-key menu. When the terminal cannot be
// put in raw mode it falls back to a numbered list.
func promptArrowSelect(step int, question string, choices []string, defaultIdx int) (int, error) {
	stepLabel(step, question)
	fmt.Println()

	restore, err := rawMode(int(os.Stdin.Fd()))
	if err != nil {
		return promptNumbered(bufio.NewReader(os.Stdin), step, question, choices, defaultIdx), nil
	}
	defer restore()

	fmt.Print("\033[?25l")
	defer fmt.Print("\033[?25h")

	cur, n := defaultIdx, len(choices)
	render := func() {
		for i, c := range choices {
			fmt.Print("   \033[K")
			if i == cur {
				wGreen.Print("▶ ")
				wBold.Printf("%s\n", c)
			} else {
				wDim.Printf("  %s\n", c)
			}
		}
		fmt.Printf("\033[%dA", n)
	}
	render()

	buf := make([]byte, 3)
	for {
		nread, err := os.Stdin.Read(buf)
		if err != nil {
			return defaultIdx, err
		}
		switch {
		case nread == 0:
		case buf[0] == '\r' || buf[0] == '\n':
			fmt.Printf("\033[%dB\n", n)
			stepDone(step, question, choices[cur])
			return cur, nil
		case buf[0] == 3: // Ctrl-C
			fmt.Printf("\033[%dB\n", n)
			return defaultIdx, errCancelled
		case nread >= 3 && buf[0] == 27 && buf[1] == '[':
			switch buf[2] {
			case 'A':
				cur = (cur - 1 + n) % n
			case 'B':
				cur = (cur + 1) % n
			}
			render()
		}
	}
}

func promptNumbered(r *bufio.Reader, step int, question string, choices []string, defaultIdx int) int {
	for i, c := range choices {
		if i == defaultIdx {
			wGreen.Printf("   ● %d. %s\n", i+1, c)
		} else {
			wDim.Printf("   ○ %d. %s\n", i+1, c)
		}
	}
	wDim.Printf("\n   Enter number")
	wCyan.Printf(" [1-%d]", len(choices))
	wDim.Printf(" (default %d)\n", defaultIdx+1)
	wCyan.Print("   › ")

	idx := parseChoice(readLine(r), len(choices), defaultIdx)
	fmt.Println()
	stepDone(step, question, choices[idx])
	return idx
}

// parseChoice turns a 1-based answer into an index.
func parseChoice(answer string, n, def int) int {
	var i int
	if _, err := fmt.Sscanf(answer, "%d", &i); err == nil && i >= 1 && i <= n {
		return i - 1
	}
	return def
}

func promptText(r *bufio.Reader, step int, question, defaultVal string) string {
	stepLabel(step, question)
	wDim.Printf("   (default: %s)\n", defaultVal)
	wCyan.Print("   › ")

	line := readLine(r)
	if line == "" {
		line = defaultVal
	}
	stepDone(step, question, line)
	return line
}

func readLine(r *bufio.Reader) string {
	line, err := r.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return ""
	}
	return strings.TrimSpace(line)
}

// ─────────────────────────────────────────────────────────────────────────────
//  Visual helpers
// ─────────────────────────────────────────────────────────────────────────────

func stepLabel(n int, question string) {
	wDim.Printf(" %d  ", n)
	wBold.Printf("%s\n", question)
}

func stepDone(n int, question, answer string) {
	wDim.Printf(" %d  ", n)
	wDim.Printf("%s  ", question)
	wGreen.Printf("✓ %s\n", answer)
}

func printCreated(s *sketch.Sketch, board, parent string) {
	fmt.Println()
	ui.Success(fmt.Sprintf("Created %s", s.Main().Path))
	fmt.Println()
	wBold.Println("  Next steps:")
	if rel, err := filepath.Rel(parent, s.Folder); err == nil && parent == projectDir() {
		printStep("cd", rel)
	} else {
		printStep("cd", s.Folder)
	}
	printStep("sketchc build", "")
	printStep("sketchc upload", "--port <port>")
	fmt.Println()
	wDim.Printf("  Board %s; change it in %s or with --board.\n\n", board, manifest.FileName)
}

func printStep(cmd, arg string) {
	fmt.Print("    ")
	wCyan.Print(cmd)
	if arg != "" {
		fmt.Print(" ")
		wDim.Print(arg)
	}
	fmt.Println()
}
