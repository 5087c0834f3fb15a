package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dkeye/Canvas/internal/session"
)

var errQuit = errors.New("quit")

const scriptHelp = `commands:
  down X Y | move X Y | up     pointer input
  line X1 Y1 X2 Y2             down, move, up in one go
  undo | clear | boxes         canvas actions
  brush COLOR SIZE             change the pen
  draw on|off                  enable or disable input
  quit`

// runScript drives s from line commands read from r until EOF, quit or
// ctx cancellation. Bad lines are reported through report and skipped.
func runScript(ctx context.Context, r io.Reader, s *session.Session, report func(error)) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}
			err := execLine(s, line)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				report(err)
			}
		}
	}
}

func execLine(s *session.Session, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return nil
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "down", "move":
		xy, err := floats(args, 2)
		if err != nil {
			return fmt.Errorf("%s: %w", cmd, err)
		}
		if cmd == "down" {
			return s.PointerDown(xy[0], xy[1])
		}
		return s.PointerMove(xy[0], xy[1])
	case "up":
		return s.PointerUp()
	case "line":
		p, err := floats(args, 4)
		if err != nil {
			return fmt.Errorf("line: %w", err)
		}
		if err := s.PointerDown(p[0], p[1]); err != nil {
			return err
		}
		if err := s.PointerMove(p[2], p[3]); err != nil {
			return err
		}
		return s.PointerUp()
	case "undo":
		s.Undo()
	case "clear":
		s.Clear()
	case "boxes":
		s.ToggleBoxes()
	case "brush":
		if len(args) != 2 {
			return errors.New("brush: want COLOR SIZE")
		}
		size, err := strconv.ParseFloat(args[1], 64)
		if err != nil || size <= 0 {
			return fmt.Errorf("brush: bad size %q", args[1])
		}
		s.SetBrush(args[0], size)
	case "draw":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			return errors.New("draw: want on or off")
		}
		s.SetDrawingEnabled(args[0] == "on")
	case "quit", "exit":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, scriptHelp)
	}
	return nil
}

func floats(args []string, n int) ([]float64, error) {
	if len(args) != n {
		return nil, fmt.Errorf("want %d numbers, got %d", n, len(args))
	}
	out := make([]float64, n)
	for i, a := range args {
		f, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", a)
		}
		out[i] = f
	}
	return out, nil
}
