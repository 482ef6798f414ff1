// ─────────────────────────────────────────────────────────────────────────────
//  sketchc :: runner  -  spawn one build step and siphon its output
// ─────────────────────────────────────────────────────────────────────────────

package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrToolNotFound is returned when the executable of a step is missing.
var ErrToolNotFound = errors.New("tool not found")

// Step records one executed process.
type Step struct {
	Argv     []string      `json:"argv" yaml:"argv"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	ExitCode int           `json:"exit_code" yaml:"exit_code"`
}

// Runner executes build steps. The zero value is ready to use.
type Runner struct {
	// Echo receives every argv before it runs (verbose mode). nil = silent.
	Echo io.Writer
	// Dir is the working directory of every step; "" = current.
	Dir string

	mu    sync.Mutex
	steps []Step
}

// Steps returns a copy of every step run so far.
func (r *Runner) Steps() []Step {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Step(nil), r.steps...)
}

// Run starts argv, hands every stdout and stderr line (without the
// trailing newline) to consume, waits for both streams to drain and then
// for the process. consume is never called concurrently and may be nil.
//
// A non-zero exit is reported through the exit code, not the error. The
// error is set when the process could not start, a stream failed, or ctx
// was cancelled (the child is killed).
func (r *Runner) Run(ctx context.Context, argv []string, consume func(line string)) (int, error) {
	if len(argv) == 0 {
		return -1, errors.New("runner: empty command")
	}
	if r.Echo != nil {
		fmt.Fprintln(r.Echo, strings.Join(argv, " "))
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = r.Dir
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return -1, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return -1, fmt.Errorf("stderr pipe: %w", err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return -1, fmt.Errorf("%w: %s", ErrToolNotFound, argv[0])
		}
		return -1, fmt.Errorf("starting %s: %w", argv[0], err)
	}

	var lineMu sync.Mutex
	emit := func(line string) {
		if consume == nil {
			return
		}
		lineMu.Lock()
		defer lineMu.Unlock()
		consume(line)
	}

	var g errgroup.Group
	g.Go(func() error { return siphon(stdout, emit) })
	g.Go(func() error { return siphon(stderr, emit) })
	readErr := g.Wait()
	waitErr := cmd.Wait()

	code := 0
	if cmd.ProcessState != nil {
		code = cmd.ProcessState.ExitCode()
	}
	took := time.Since(start)

	r.mu.Lock()
	r.steps = append(r.steps, Step{Argv: argv, Duration: took, ExitCode: code})
	r.mu.Unlock()
	slog.Debug("step finished", "tool", argv[0], "exit", code, "took", took)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return code, ctxErr
	}
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return code, fmt.Errorf("waiting for %s: %w", argv[0], waitErr)
	}
	if readErr != nil {
		return code, fmt.Errorf("reading %s output: %w", argv[0], readErr)
	}
	return code, nil
}

func siphon(r io.Reader, emit func(string)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		emit(strings.TrimRight(sc.Text(), "\r"))
	}
	err := sc.Err()
	// the pipe is closed under us when the child is killed
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}
