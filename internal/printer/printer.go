// Package printer writes colored participant CLI output.
package printer

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

func init() {
	// NO_COLOR still disables colors
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	Out    io.Writer = color.Output
	ErrOut io.Writer = color.Error

	green   = color.New(color.FgGreen)
	yellow  = color.New(color.FgYellow)
	red     = color.New(color.FgRed, color.Bold)
	cyan    = color.New(color.FgCyan)
	magenta = color.New(color.FgMagenta)
)

func Success(format string, a ...any) {
	green.Fprintf(Out, "✓ %s\n", fmt.Sprintf(format, a...))
}

func Info(format string, a ...any) {
	fmt.Fprintf(Out, format+"\n", a...)
}

func Warning(format string, a ...any) {
	yellow.Fprintf(Out, "⚠️  %s\n", fmt.Sprintf(format, a...))
}

// Event reports something another participant did.
func Event(author, format string, a ...any) {
	cyan.Fprintf(Out, "[%s] ", author)
	fmt.Fprintf(Out, format+"\n", a...)
}

// Word prints a recognized word at its canvas position.
func Word(author, word string, x, y float64) {
	cyan.Fprintf(Out, "[%s] ", author)
	magenta.Fprintf(Out, "%q", word)
	fmt.Fprintf(Out, " at (%.0f, %.0f)\n", x, y)
}

// Error prints a titled error with suggestions to ErrOut and returns a
// plain error for cobra, which runs with SilenceErrors.
func Error(title, explanation string, suggestions ...string) error {
	red.Fprintf(ErrOut, "%s\n\n", title)
	if explanation != "" {
		fmt.Fprintf(ErrOut, "%s\n", explanation)
	}
	switch len(suggestions) {
	case 0:
	case 1:
		fmt.Fprintf(ErrOut, "\n%s\n", suggestions[0])
	default:
		fmt.Fprintf(ErrOut, "\nEither:\n")
		for i, s := range suggestions {
			fmt.Fprintf(ErrOut, "  %d. %s\n", i+1, s)
		}
	}
	return fmt.Errorf("%s", title)
}
