package commands

import (
	"context"
	"time"

	"github.com/dkeye/Canvas/internal/printer"
	"github.com/dkeye/Canvas/internal/session"
	"github.com/spf13/cobra"
)

var (
	shareFrames     string
	shareFPS        int
	shareDuration   time.Duration
	shareScreenshot bool
)

var shareCmd = &cobra.Command{
	Use:   "share",
	Short: "Stream a directory of images as the screen share",
	Long: `Claim the broadcaster role and stream images as screen-share frames.

Images are read from --frames in name order and looped. Only one participant
shares at a time; the last one to start wins.

Examples:
  # Share for a minute at 5 frames per second
  canvas share --frames ./slides --fps 5 --duration 1m

  # Send the first image once as a full-resolution screenshot
  canvas share --frames ./slides --screenshot`,
	RunE: runShare,
}

func init() {
	shareCmd.Flags().StringVarP(&shareFrames, "frames", "f", "", "directory of images to stream (required)")
	shareCmd.Flags().IntVar(&shareFPS, "fps", 0, "frames per second (default from config)")
	shareCmd.Flags().DurationVarP(&shareDuration, "duration", "d", 0, "stop after this long (default: until interrupted)")
	shareCmd.Flags().BoolVar(&shareScreenshot, "screenshot", false, "send one screenshot and exit")
	_ = shareCmd.MarkFlagRequired("frames")
	rootCmd.AddCommand(shareCmd)
}

func runShare(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	frames, err := newDirFrames(shareFrames)
	if err != nil {
		return printer.Error("no frames to share", err.Error(), "point --frames at a directory of png or jpeg files")
	}
	me, err := author()
	if err != nil {
		return err
	}
	client, err := dialRelay(ctx, relayURL, me)
	if err != nil {
		return err
	}
	defer client.Close()

	clientCfg := cfg.Client
	if shareFPS > 0 {
		clientCfg.ShareFPS = shareFPS
	}
	sess := session.New(client, nil, nil, session.Options{
		Author:        me,
		ShareInterval: clientCfg.ShareInterval(),
	})
	defer sess.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := client.Run(runCtx, sess.HandleMessage); err != nil {
			printer.Warning("relay connection lost: %v", err)
		}
		cancel()
	}()

	if shareScreenshot {
		if err := sess.Screenshot(runCtx, frames); err != nil {
			return printer.Error("screenshot failed", err.Error())
		}
		printer.Success("screenshot sent")
		return nil
	}

	if shareDuration > 0 {
		var stop context.CancelFunc
		runCtx, stop = context.WithTimeout(runCtx, shareDuration)
		defer stop()
	}
	sess.StartShare(runCtx, frames)
	printer.Success("sharing %d images from %s to %s", len(frames.files), shareFrames, relayURL)
	<-runCtx.Done()
	sess.StopShare()
	printer.Success("share stopped")
	return nil
}
