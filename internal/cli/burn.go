package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tsuki/sketchc/internal/prefs"
	"github.com/tsuki/sketchc/internal/ui"
	"github.com/tsuki/sketchc/internal/upload"
)

func newBurnCmd() *cobra.Command {
	var (
		board      string
		programmer string
		port       string
	)

	cmd := &cobra.Command{
		Use:   "burn-bootloader",
		Short: "Write the board's bootloader through a programmer",
		Long: `Erase the microcontroller, set its fuses and write the bootloader
image named by the board's bootloader.* properties. Needs a programmer;
the bootloader images are looked up below <hardware.path>/bootloaders.`,
		Args: cobra.NoArgs,
		Example: `  sketchc burn-bootloader --board uno --programmer avrispmkii
  sketchc burn-bootloader --programmer parallel`,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := loadSettings(projectDir(), overrides{
				prefs.KeyBoard:      board,
				prefs.KeySerialPort: port,
				prefs.KeyProgrammer: programmer,
			})
			if err != nil {
				return err
			}
			// a bootloader is never burned through itself
			st.Prefs.Set(prefs.KeyUploadUsing, st.Prefs.Get(prefs.KeyProgrammer))

			req, err := uploadRequest(st, 0)
			if err != nil {
				return err
			}
			if req.Programmer == nil {
				return upload.ErrNeedsProgrammer
			}
			up, err := uploader(st)
			if err != nil {
				return err
			}

			ui.SectionTitle(fmt.Sprintf("Burning bootloader  [board: %s]", req.Board.ID))
			ui.UploadBadge(st.Prefs.Get(prefs.KeyUploader), req.Programmer.Name())

			sp := ui.NewSpinner("Burning bootloader to I/O board (this may take a minute)...")
			if !req.Verbose {
				sp.Start()
			}
			if err := up.BurnBootloader(cmd.Context(), req); err != nil {
				sp.Stop(false, "burning bootloader failed")
				if renderError(nil, err) {
					return fmt.Errorf("burning bootloader with %s failed", req.Programmer.ID)
				}
				return err
			}
			sp.Stop(true, "Done burning bootloader")
			return nil
		},
	}

	cmd.Flags().StringVarP(&board, "board", "b", "", "target board")
	cmd.Flags().StringVar(&programmer, "programmer", "", "programmer (default: the programmer preference)")
	cmd.Flags().StringVarP(&port, "port", "p", "", "serial port, for serial programmers")
	return cmd
}
