// ─────────────────────────────────────────────────────────────────────────────
//  sketchc :: ui  -  rich terminal output
//  Boxed panels, source tracebacks for compile and upload errors, colored
//  key/value tables, spinners and the flash usage bar.
// ─────────────────────────────────────────────────────────────────────────────

package ui

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// Output streams. Tests swap them.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// ── Color palette ─────────────────────────────────────────────────────────────

var (
	ColorTitle   = color.New(color.FgHiWhite, color.Bold)
	ColorKey     = color.New(color.FgHiCyan)
	ColorValue   = color.New(color.FgHiYellow)
	ColorString  = color.New(color.FgHiGreen)
	ColorNumber  = color.New(color.FgHiBlue)
	ColorBool    = color.New(color.FgHiMagenta)
	ColorNull    = color.New(color.FgHiBlack)
	ColorComment = color.New(color.FgHiBlack, color.Italic)

	ColorSuccess = color.New(color.FgHiGreen, color.Bold)
	ColorError   = color.New(color.FgHiRed, color.Bold)
	ColorWarn    = color.New(color.FgHiYellow, color.Bold)
	ColorInfo    = color.New(color.FgHiCyan)
	ColorMuted   = color.New(color.FgHiBlack)

	ColorTBBorder  = color.New(color.FgRed)
	ColorTBTitle   = color.New(color.FgHiRed, color.Bold)
	ColorTBFile    = color.New(color.FgHiCyan)
	ColorTBLine    = color.New(color.FgHiYellow)
	ColorTBFunc    = color.New(color.FgHiGreen)
	ColorTBCode    = color.New(color.FgHiWhite)
	ColorTBHigh    = color.New(color.FgHiRed, color.Bold)
	ColorTBErrType = color.New(color.FgHiRed, color.Bold)
	ColorTBErrMsg  = color.New(color.FgHiWhite)
)

// ── Box drawing ───────────────────────────────────────────────────────────────

// termWidth is the width of stdout, clamped to 60..120; 100 when stdout
// is not a terminal.
func termWidth() int {
	f, ok := stdout.(*os.File)
	if !ok {
		return 100
	}
	w, _, err := term.GetSize(int(f.Fd()))
	switch {
	case err != nil:
		return 100
	case w < 60:
		return 60
	case w > 120:
		return 120
	}
	return w
}

// isTerminal reports whether stdout is interactive.
func isTerminal() bool {
	f, ok := stdout.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func hline(width int, ch string) string {
	if width <= 0 {
		return ""
	}
	return strings.Repeat(ch, width)
}

// visibleLen counts runes outside ANSI escapes.
func visibleLen(s string) int {
	return len([]rune(stripANSI(s)))
}

func stripANSI(s string) string {
	var b strings.Builder
	inEsc := false
	for _, r := range s {
		if r == '\x1b' {
			inEsc = true
			continue
		}
		if inEsc {
			if r == 'm' {
				inEsc = false
			}
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// panel writes a bordered block to w.
//
//	╭── Title ──────────────────────────────────╮
//	│ content...                                │
//	╰───────────────────────────────────────────╯
type panel struct {
	w      io.Writer
	inner  int
	border *color.Color
}

func newPanel(w io.Writer, title string, titleColor *color.Color, border *color.Color, inner int) *panel {
	p := &panel{w: w, inner: inner, border: border}
	titleStr := " " + title + " "
	border.Fprint(w, "╭"+hline(2, "─"))
	titleColor.Fprint(w, titleStr)
	border.Fprintln(w, hline(inner-2-visibleLen(titleStr), "─")+"╮")
	return p
}

func (p *panel) line(content string) {
	pad := p.inner - visibleLen(content) - 1
	if pad < 0 {
		pad = 0
	}
	p.border.Fprint(p.w, "│")
	fmt.Fprint(p.w, " "+content+strings.Repeat(" ", pad))
	p.border.Fprintln(p.w, "│")
}

func (p *panel) empty() { p.line("") }

func (p *panel) close() {
	p.border.Fprintln(p.w, "╰"+hline(p.inner, "─")+"╯")
}

// Box draws a bordered panel with a title on stderr.
func Box(title, content string, titleColor *color.Color) {
	if titleColor == nil {
		titleColor = ColorTitle
	}
	p := newPanel(stderr, title, titleColor, ColorTBBorder, termWidth()-2)
	for _, line := range strings.Split(content, "\n") {
		p.line(line)
	}
	p.close()
}

// ── Traceback ─────────────────────────────────────────────────────────────────

// Frame is one location in a traceback: a sketch file and the lines
// around the failing one.
type Frame struct {
	File string
	Line int
	Func string
	Code []CodeLine
}

// CodeLine is one line of source context.
type CodeLine struct {
	Number    int
	Text      string
	IsPointer bool // the failing line, marked with ❱
}

// Traceback renders located errors to stderr:
//
//	╭── Traceback ────────────────────────────────────────────────╮
//	│ Blink.pde:4 in compile                                     │
//	│                                                            │
//	│      3 │ void loop() {                                     │
//	│  ❱   4 │   digitalWrite(13, HIGH)                          │
//	│      5 │   delay(1000);                                    │
//	╰────────────────────────────────────────────────────────────╯
//	CompileError: expected ';' before 'delay'
func Traceback(errType, errMsg string, frames []Frame) {
	p := newPanel(stderr, "Traceback", ColorTBTitle, ColorTBBorder, termWidth()-2)
	for _, frame := range frames {
		loc := ColorTBFile.Sprint(frame.File)
		if frame.Line > 0 {
			loc += ":" + ColorTBLine.Sprint(fmt.Sprint(frame.Line))
		}
		if frame.Func != "" {
			loc += " in " + ColorTBFunc.Sprint(frame.Func)
		}
		p.line(loc)
		if len(frame.Code) > 0 {
			p.empty()
		}
		for _, cl := range frame.Code {
			num := fmt.Sprintf("%4d", cl.Number)
			sep := ColorTBBorder.Sprint(" │ ")
			text := truncate(cl.Text, p.inner-12)
			if cl.IsPointer {
				p.line(ColorTBHigh.Sprint(" ❱ "+num) + sep + ColorTBHigh.Sprint(text))
			} else {
				p.line("   " + ColorMuted.Sprint(num) + sep + ColorTBCode.Sprint(text))
			}
		}
		p.empty()
	}
	p.close()

	ColorTBErrType.Fprint(stderr, errType)
	fmt.Fprint(stderr, ": ")
	ColorTBErrMsg.Fprintln(stderr, errMsg)
}

// SourceContext returns up to radius lines either side of line (1-based)
// from src, with line marked.
func SourceContext(src string, line, radius int) []CodeLine {
	lines := strings.Split(src, "\n")
	if line < 1 || line > len(lines) {
		return nil
	}
	from := max(1, line-radius)
	to := min(len(lines), line+radius)
	out := make([]CodeLine, 0, to-from+1)
	for n := from; n <= to; n++ {
		out = append(out, CodeLine{
			Number:    n,
			Text:      strings.ReplaceAll(lines[n-1], "\t", "    "),
			IsPointer: n == line,
		})
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 1 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// ── Config display ────────────────────────────────────────────────────────────

// ConfigEntry is one key/value row.
type ConfigEntry struct {
	Key     string
	Value   interface{}
	Comment string
}

// PrintConfig renders a key/value table. raw prints plain key=value
// lines, the preferences.txt format.
func PrintConfig(title string, entries []ConfigEntry, raw bool) {
	if raw {
		for _, e := range entries {
			fmt.Fprintf(stdout, "%s=%v\n", e.Key, e.Value)
		}
		return
	}

	keyWidth := 0
	for _, e := range entries {
		if len(e.Key) > keyWidth {
			keyWidth = len(e.Key)
		}
	}

	type row struct{ display, plain string }
	rows := make([]row, 0, len(entries))
	longest := len(title) + 6
	for _, e := range entries {
		display := ColorKey.Sprint(fmt.Sprintf("%-*s", keyWidth, e.Key)) +
			ColorMuted.Sprint("  =  ") + formatConfigValue(e.Value)
		plain := fmt.Sprintf("%-*s  =  %v", keyWidth, e.Key, e.Value)
		if e.Comment != "" {
			display += ColorComment.Sprint("  # " + e.Comment)
			plain += "  # " + e.Comment
		}
		rows = append(rows, row{display, plain})
		if n := len(plain) + 2; n > longest {
			longest = n
		}
	}

	inner := max(termWidth()-2, longest)
	p := newPanel(stdout, title, ColorTitle, ColorTBBorder, inner)
	for _, r := range rows {
		p.line(r.display)
	}
	p.close()
}

func formatConfigValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return ColorString.Sprint(`"` + val + `"`)
	case bool:
		return ColorBool.Sprint(fmt.Sprintf("%v", val))
	case int, int64, float64:
		return ColorNumber.Sprint(fmt.Sprintf("%v", val))
	case []string:
		if len(val) == 0 {
			return ColorNull.Sprint("[]")
		}
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = formatConfigValue(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case nil:
		return ColorNull.Sprint("null")
	default:
		return ColorValue.Sprint(fmt.Sprintf("%v", val))
	}
}

// Table prints rows under a header, columns padded to the widest cell.
func Table(header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, r := range rows {
		for i, c := range r {
			if i < len(widths) && len([]rune(c)) > widths[i] {
				widths[i] = len([]rune(c))
			}
		}
	}
	cells := func(r []string, c *color.Color) {
		fmt.Fprint(stdout, "  ")
		for i, cell := range r {
			if i >= len(widths) {
				break
			}
			if i == len(r)-1 {
				c.Fprint(stdout, cell)
			} else {
				c.Fprint(stdout, cell+strings.Repeat(" ", widths[i]-len([]rune(cell))+2))
			}
		}
		fmt.Fprintln(stdout)
	}
	cells(header, ColorMuted)
	for _, r := range rows {
		cells(r, ColorTBCode)
	}
}

// ── Status messages ───────────────────────────────────────────────────────────

func Success(msg string) {
	ColorSuccess.Fprint(stdout, "  ✓ ")
	fmt.Fprintln(stdout, msg)
}

func Fail(msg string) {
	ColorError.Fprint(stderr, "  ✗ ")
	fmt.Fprintln(stderr, msg)
}

func Info(msg string) {
	ColorInfo.Fprint(stdout, "  • ")
	fmt.Fprintln(stdout, msg)
}

func Warn(msg string) {
	ColorWarn.Fprint(stdout, "  ⚠ ")
	fmt.Fprintln(stdout, msg)
}

func Step(label, msg string) {
	fmt.Fprint(stdout, "  ")
	ColorTitle.Fprint(stdout, label)
	ColorMuted.Fprint(stdout, " → ")
	fmt.Fprintln(stdout, msg)
}

// SectionTitle prints a section header.
func SectionTitle(title string) {
	pad := termWidth() - len([]rune(title)) - 4
	fmt.Fprintln(stdout)
	ColorTitle.Fprint(stdout, "  "+title+"  ")
	ColorMuted.Fprintln(stdout, hline(pad, "─"))
}

// ── Spinner ───────────────────────────────────────────────────────────────────

// Spinner animates a message while a step runs. Off a terminal it prints
// nothing until Stop.
type Spinner struct {
	msg    string
	frames []string
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

func NewSpinner(msg string) *Spinner {
	return &Spinner{msg: msg, frames: spinnerFrames, done: make(chan struct{})}
}

func (s *Spinner) Start() {
	if !isTerminal() {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		tick := time.NewTicker(80 * time.Millisecond)
		defer tick.Stop()
		for i := 0; ; i++ {
			frame := ColorInfo.Sprint(s.frames[i%len(s.frames)])
			fmt.Fprintf(stdout, "\r  %s  %s", frame, s.msg)
			select {
			case <-s.done:
				fmt.Fprintf(stdout, "\r%s\r", strings.Repeat(" ", visibleLen(s.msg)+6))
				return
			case <-tick.C:
			}
		}
	}()
}

// Stop ends the animation and prints the outcome. Safe to call twice.
func (s *Spinner) Stop(ok bool, finalMsg string) {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
		if ok {
			Success(finalMsg)
		} else {
			Fail(finalMsg)
		}
	})
}

// ── Upload badge ──────────────────────────────────────────────────────────────

// UploadBadge prints the upload tool and how it reaches the board:
//
//	[ ⚡ avrdude · bootloader ]
//	[ ⚡ avrdude · avrispmkii ]
func UploadBadge(tool, using string) {
	if tool == "" {
		tool = "avrdude"
	}
	label := "⚡ " + tool
	if using != "" {
		label += " · " + using
	}
	color.New(color.FgHiYellow, color.Bold).Fprintf(stdout, "  [ %s ]\n", label)
}

// ── Flash usage ───────────────────────────────────────────────────────────────

// SizeBar draws how much of the flash the sketch takes. Over 100% the bar
// is red.
func SizeBar(label string, used, total int) {
	const w = 40
	if total <= 0 {
		fmt.Fprintf(stdout, "  %s  %d bytes\n", label, used)
		return
	}
	pct := float64(used) / float64(total)
	filled := min(w, int(math.Round(w*pct)))
	fill := ColorSuccess
	switch {
	case pct > 1:
		fill = ColorError
	case pct > 0.9:
		fill = ColorWarn
	}
	bar := fill.Sprint(strings.Repeat("█", filled)) + ColorMuted.Sprint(strings.Repeat("░", w-filled))
	fmt.Fprintf(stdout, "  %s  [%s]  %d%%  %d/%d bytes\n", label, bar, int(pct*100), used, total)
}
