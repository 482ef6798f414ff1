package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tsuki/sketchc/internal/build"
	"github.com/tsuki/sketchc/internal/prefs"
	"github.com/tsuki/sketchc/internal/runner"
	"github.com/tsuki/sketchc/internal/ui"
	"github.com/tsuki/sketchc/internal/upload"
)

func newUploadCmd() *cobra.Command {
	var (
		port       string
		board      string
		programmer string
		tool       string
		buildPath  string
		speed      int
	)

	cmd := &cobra.Command{
		Use:   "upload [sketch]",
		Short: "Build a sketch and upload it to a connected board",
		Args:  cobra.MaximumNArgs(1),
		Example: `  sketchc upload
  sketchc upload --port /dev/ttyACM0 --board uno
  sketchc upload --programmer avrispmkii`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSketch(args, overrides{
				prefs.KeyBoard:       board,
				prefs.KeySerialPort:  port,
				prefs.KeyUploadUsing: programmer,
				prefs.KeyUploader:    tool,
				prefs.KeyBuildPath:   buildPath,
			})
			if err != nil {
				return err
			}
			res, err := runBuild(cmd.Context(), sess)
			if err != nil {
				return err
			}
			rate := speed
			if rate == 0 {
				rate = sess.Manifest.Upload.Speed
			}
			return runUpload(cmd.Context(), sess, res, rate)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "serial port (list them with: sketchc ports)")
	cmd.Flags().StringVarP(&board, "board", "b", "", "target board (overrides sketch.toml and preferences)")
	cmd.Flags().StringVar(&programmer, "programmer", "", "upload through a programmer instead of the bootloader")
	cmd.Flags().StringVar(&tool, "tool", "", "upload tool: avrdude | uisp")
	cmd.Flags().StringVar(&buildPath, "build-path", "", "build folder, kept between builds")
	cmd.Flags().IntVar(&speed, "speed", 0, "upload baud rate (default: the board's upload.speed)")
	return cmd
}

// uploadRequest fills in everything about an upload except the hex file.
func uploadRequest(st *settings, speed int) (upload.Request, error) {
	p := st.Prefs
	b, err := st.board()
	if err != nil {
		return upload.Request{}, err
	}
	req := upload.Request{
		Board:         b,
		Port:          p.Get(prefs.KeySerialPort),
		Speed:         speed,
		Verbose:       p.GetBool(prefs.KeyUploadVerbose),
		AvrdudeConf:   p.Get(prefs.KeyAvrdudeConfig),
		BootloaderDir: st.hardware().Bootloaders(),
	}
	if using := p.Get(prefs.KeyUploadUsing); using != "" && using != prefs.UsingBootloader {
		c, err := st.catalog()
		if err != nil {
			return upload.Request{}, err
		}
		if req.Programmer, err = c.Programmer(using); err != nil {
			return upload.Request{}, fmt.Errorf("%w; run `sketchc boards programmers`", err)
		}
	}
	return req, nil
}

func uploader(st *settings) (upload.Uploader, error) {
	var console io.Writer
	r := &runner.Runner{}
	if st.Prefs.GetBool(prefs.KeyUploadVerbose) {
		console = os.Stdout
		r.Echo = os.Stdout
	}
	return upload.New(st.Prefs.Get(prefs.KeyUploader), st.toolchain(), r, console)
}

func runUpload(ctx context.Context, sess *session, res *build.Result, speed int) error {
	req, err := uploadRequest(sess.settings, speed)
	if err != nil {
		return err
	}
	up, err := uploader(sess.settings)
	if err != nil {
		return err
	}

	p := sess.Prefs
	ui.SectionTitle(fmt.Sprintf("Uploading to %s  [%s]", req.Port, req.Board.MCU()))
	ui.UploadBadge(p.Get(prefs.KeyUploader), p.Get(prefs.KeyUploadUsing))

	sp := ui.NewSpinner("Flashing firmware...")
	if !req.Verbose {
		sp.Start()
	}
	err = build.Upload(ctx, res, build.UploadOptions{
		Uploader: up,
		Request:  req,
		Timeout:  time.Duration(p.GetInt(prefs.KeyUploadTimeout, 0)) * time.Second,
	})
	if err != nil {
		sp.Stop(false, "upload failed")
		if renderError(sess.Sketch, err) {
			return fmt.Errorf("upload to %s failed", req.Port)
		}
		return err
	}
	sp.Stop(true, fmt.Sprintf("Done uploading to %s", req.Port))
	return nil
}
