package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tsuki/sketchc/internal/prefs"
	"github.com/tsuki/sketchc/internal/serial"
	"github.com/tsuki/sketchc/internal/ui"
)

func newPortsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports a board may be connected to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := serial.Ports()
			if err != nil {
				return err
			}
			if len(ports) == 0 {
				ui.Info("No serial ports found; is the board plugged in?")
				return nil
			}
			selected := pf.Get(prefs.KeySerialPort)
			for _, p := range ports {
				if p == selected {
					ui.Success(p + "  (selected)")
				} else {
					ui.Info(p)
				}
			}
			return nil
		},
	}
}

// ── monitor ──────────────────────────────────────────────────────────────────

func newMonitorCmd() *cobra.Command {
	var (
		port string
		baud int
	)

	cmd := &cobra.Command{
		Use:   "monitor [sketch]",
		Short: "Print what the board sends over the serial port",
		Long: `Open the serial port and copy everything the board sends to stdout
until interrupted. Lines typed on stdin are sent to the board.`,
		Args: cobra.MaximumNArgs(1),
		Example: `  sketchc monitor
  sketchc monitor --port /dev/ttyACM0 --baud 115200`,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := loadSettings(sketchArg(args), overrides{prefs.KeySerialPort: port})
			if err != nil {
				return err
			}
			name := st.Prefs.Get(prefs.KeySerialPort)
			rate := baud
			if rate == 0 {
				rate = st.Prefs.GetInt(prefs.KeySerialDebugRate, 9600)
			}

			p, err := serial.Open(name, rate)
			if err != nil {
				return err
			}
			defer p.Close()
			ui.Info(fmt.Sprintf("Monitoring %s at %d baud (Ctrl-C to stop)", name, rate))

			go func() {
				sc := bufio.NewScanner(cmd.InOrStdin())
				for sc.Scan() {
					if _, err := p.Write(append(sc.Bytes(), '\n')); err != nil {
						return
					}
				}
			}()

			ctx := cmd.Context()
			buf := make([]byte, 256)
			for ctx.Err() == nil {
				n, err := p.Read(buf)
				if n > 0 {
					os.Stdout.Write(buf[:n])
				}
				if err != nil && !errors.Is(err, io.EOF) {
					return fmt.Errorf("reading %s: %w", name, err)
				}
			}
			fmt.Println()
			return nil
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "serial port (default: the serial.port preference)")
	cmd.Flags().IntVar(&baud, "baud", 0, "baud rate (default: the serial.debug_rate preference)")
	return cmd
}
