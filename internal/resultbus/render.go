package resultbus

import (
	"fmt"
	"io"
	"os"

	colorable "github.com/mattn/go-colorable"
	isatty "github.com/mattn/go-isatty"
	terminfo "github.com/xo/terminfo"
)

// Renderer prints one Record. Registered per command name;
// a command with no tailored renderer falls back to GenericRenderer.
type Renderer func(w io.Writer, r Record)

// registry maps command name to its tailored renderer, a dispatch-by-name
// table rather than a type switch.
var registry = map[string]Renderer{}

// RegisterRenderer installs a tailored renderer for command name.
func RegisterRenderer(name string, r Renderer) { registry[name] = r }

// RendererFor returns the tailored renderer for name, or GenericRenderer.
func RendererFor(name string) Renderer {
	if r, ok := registry[name]; ok {
		return r
	}
	return GenericRenderer
}

// GenericRenderer prints one line per record: "<status> <path> (<action>):
// <message>" colorized by status when the output stream is a real terminal
// and color has not been disabled.
func GenericRenderer(w io.Writer, r Record) {
	color := colorEnabled(w)
	label := string(r.Status)
	if color {
		label = colorFor(r.Status) + label + resetCode
	}
	fmt.Fprintf(w, "%s %s (%s): %s\n", label, r.Path, r.Action, r.Rendered())
}

const resetCode = "\x1b[0m"

func colorFor(s Status) string {
	switch s {
	case StatusOK:
		return "\x1b[32m" // green
	case StatusError:
		return "\x1b[31m" // red
	case StatusImpossible:
		return "\x1b[33m" // yellow
	default:
		return ""
	}
}

// colorEnabled honors NO_COLOR, datalad.ui.color (resolved by the caller
// into the stream wrapper passed here), and whether w is a real terminal.
func colorEnabled(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// ColorableStdout wraps os.Stdout so ANSI sequences render correctly on
// Windows consoles that do not natively interpret them.
func ColorableStdout() io.Writer { return colorable.NewColorableStdout() }

// TerminalCapabilities loads the current terminal's terminfo entry for
// renderers that need more than raw ANSI codes (e.g. clearing a progress
// line in place), degrading silently when no terminfo database is present.
func TerminalCapabilities() *terminfo.Terminfo {
	ti, err := terminfo.LoadFromEnv()
	if err != nil {
		return nil
	}
	return ti
}
