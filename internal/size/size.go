// ─────────────────────────────────────────────────────────────────────────────
//  sketchc :: size  -  measure the .hex against the board's flash budget
// ─────────────────────────────────────────────────────────────────────────────

package size

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tsuki/sketchc/internal/runner"
	"github.com/tsuki/sketchc/internal/toolchain"
)

var (
	ErrSketchTooBig = errors.New("sketch too big")
	ErrNoSize       = errors.New("could not determine program size")
)

// Report is the outcome of a size check. Max is 0 when the board has no
// upload.maximum_size.
type Report struct {
	Text int `json:"text" yaml:"text"`
	Data int `json:"data" yaml:"data"`
	Max  int `json:"max" yaml:"max"`
}

// Size is the program size: text + data.
func (r Report) Size() int { return r.Text + r.Data }

// Percent of Max used, 0 without a budget.
func (r Report) Percent() int {
	if r.Max <= 0 {
		return 0
	}
	return r.Size() * 100 / r.Max
}

func (r Report) String() string {
	if r.Max <= 0 {
		return fmt.Sprintf("Binary sketch size: %d bytes", r.Size())
	}
	return fmt.Sprintf("Binary sketch size: %d bytes (%d%%) of a %d byte maximum", r.Size(), r.Percent(), r.Max)
}

// Measure runs avr-size on hex and checks it against max. A sketch over
// budget returns the report together with an ErrSketchTooBig error.
func Measure(ctx context.Context, tc *toolchain.Toolchain, r *runner.Runner, hex string, max int) (Report, error) {
	var out []string
	code, err := r.Run(ctx, tc.SizeHex(hex), func(line string) { out = append(out, line) })
	if err != nil {
		return Report{}, err
	}
	if code != 0 {
		return Report{}, fmt.Errorf("%w: %s exited with %d: %s", ErrNoSize, toolchain.Size, code, strings.Join(out, "; "))
	}
	rep, err := Parse(out)
	if err != nil {
		return Report{}, err
	}
	rep.Max = max
	if max > 0 && rep.Size() > max {
		return rep, fmt.Errorf("%w: %d bytes, maximum is %d bytes", ErrSketchTooBig, rep.Size(), max)
	}
	return rep, nil
}

// Parse reads the Berkeley-format table avr-size prints:
//
//	   text	   data	    bss	    dec	    hex	filename
//	      0	   1066	      0	   1066	    42a	Blink.hex
func Parse(lines []string) (Report, error) {
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		text, err1 := strconv.Atoi(fields[0])
		data, err2 := strconv.Atoi(fields[1])
		if err1 != nil || err2 != nil {
			continue
		}
		return Report{Text: text, Data: data}, nil
	}
	return Report{}, ErrNoSize
}
