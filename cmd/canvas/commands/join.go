package commands

import (
	"context"
	"os"
	"time"

	"github.com/dkeye/Canvas/internal/adapters/ws"
	"github.com/dkeye/Canvas/internal/discovery"
	"github.com/dkeye/Canvas/internal/domain"
	"github.com/dkeye/Canvas/internal/export"
	"github.com/dkeye/Canvas/internal/printer"
	"github.com/dkeye/Canvas/internal/recognition"
	"github.com/dkeye/Canvas/internal/session"
	"github.com/dkeye/Canvas/internal/wire"
	"github.com/spf13/cobra"
)

var (
	joinExport        string
	joinDiscover      bool
	joinColor         string
	joinSize          float64
	joinNoRecognition bool
)

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join a relay and draw from stdin",
	Long: `Join a relay as a drawing participant.

Pointer input is read from stdin, one command per line:

` + scriptHelp + `

Examples:
  # Draw a line and leave
  printf 'line 0 0 100 100\nquit\n' | canvas join

  # Find a relay on the LAN and save the canvas on exit
  canvas join --discover --export board.pdf`,
	RunE: runJoin,
}

func init() {
	joinCmd.Flags().StringVarP(&joinExport, "export", "e", "", "write the canvas to this PDF on exit")
	joinCmd.Flags().BoolVar(&joinDiscover, "discover", false, "use the first relay found over mDNS")
	joinCmd.Flags().StringVar(&joinColor, "color", "#000000", "pen color")
	joinCmd.Flags().Float64Var(&joinSize, "size", 2, "pen width")
	joinCmd.Flags().BoolVar(&joinNoRecognition, "no-recognition", false, "do not send strokes to the handwriting service")
	rootCmd.AddCommand(joinCmd)
}

func runJoin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	me, err := author()
	if err != nil {
		return err
	}

	target := relayURL
	if joinDiscover {
		found, err := discoverFirst(ctx, 3*time.Second)
		if err != nil {
			return err
		}
		target = found
	}

	client, err := dialRelay(ctx, target, me)
	if err != nil {
		return err
	}
	defer client.Close()

	var gateway recognition.Gateway
	if !joinNoRecognition {
		gateway = recognition.NewClient(cfg.Recognition.URL, cfg.Recognition.Timeout)
	}

	sess := session.New(client, nil, gateway, session.Options{
		Author:             me,
		Color:              joinColor,
		BrushSize:          joinSize,
		CanvasWidth:        cfg.Client.CanvasWidth,
		CanvasHeight:       cfg.Client.CanvasHeight,
		Language:           cfg.Recognition.Language,
		LabelOffset:        cfg.Recognition.LabelOffset,
		StrictMerge:        cfg.Client.StrictMerge,
		ShareInterval:      cfg.Client.ShareInterval(),
		RecognitionTimeout: cfg.Recognition.Timeout,
		OnLabel: func(l session.Label) {
			printer.Word(string(l.Author), l.Text, l.X, l.Y)
		},
		OnScreenshot: func(from domain.AuthorID, image string) {
			printer.Event(string(from), "sent a screenshot (%d bytes)", len(image))
		},
		OnSignal: func(from domain.AuthorID, data wire.SignalData) {
			printer.Event(string(from), "sent a signal")
		},
	})
	printer.Success("joined %s as %s", target, me)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := client.Run(runCtx, sess.HandleMessage); err != nil {
			printer.Warning("relay connection lost: %v", err)
		}
		cancel()
	}()

	err = runScript(runCtx, os.Stdin, sess, func(err error) { printer.Warning("%v", err) })
	sess.Wait()
	sess.Close()
	if err != nil {
		return printer.Error("reading input failed", err.Error())
	}

	if joinExport != "" {
		if err := export.WriteFile(joinExport, snapshot(sess)); err != nil {
			return printer.Error("export failed", err.Error(), "check that the directory exists and is writable")
		}
		printer.Success("wrote %s", joinExport)
	}
	return nil
}

func snapshot(s *session.Session) export.Drawing {
	labels := s.Labels()
	out := export.Drawing{
		Width:   cfg.Client.CanvasWidth,
		Height:  cfg.Client.CanvasHeight,
		Strokes: s.Strokes(),
		Boxes:   s.Boxes(),
		Labels:  make([]export.Label, 0, len(labels)),
	}
	for _, l := range labels {
		out.Labels = append(out.Labels, export.Label{Text: l.Text, X: l.X, Y: l.Y})
	}
	return out
}

func dialRelay(ctx context.Context, url string, me domain.AuthorID) (*ws.Client, error) {
	client, err := ws.Dial(ctx, url, me, ws.Options{
		ReadLimit:  cfg.ReadLimit,
		WriteWait:  cfg.WriteWait,
		SendBuffer: cfg.SendBuffer,
	})
	if err != nil {
		return nil, printer.Error("cannot reach relay", err.Error(),
			"start one with: go run ./cmd/server",
			"pass its address with --relay ws://host:port/api/ws",
			"look for one on the LAN with --discover")
	}
	return client, nil
}

func discoverFirst(ctx context.Context, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	found := make(chan string, 1)
	go func() {
		_ = discovery.Browse(ctx, cfg.MDNS.Service, timeout, func(r discovery.Relay) {
			select {
			case found <- r.URL():
			default:
			}
		})
	}()
	select {
	case url := <-found:
		return url, nil
	case <-ctx.Done():
		return "", printer.Error("no relay found", "nothing answered on "+cfg.MDNS.Service,
			"make sure the server runs with mdns.enabled: true")
	}
}
