package diffview

import (
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ANSI color codes
const (
	colorReset = "\033[0m"
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
	colorCyan  = "\033[36m"
	colorBold  = "\033[1m"
)

// Colorize adds ANSI color codes to diff text. Lines starting with "~" come from
// RenderDiff and are shown like hunk headers.
func Colorize(diff string) string {
	lines := strings.Split(diff, "\n")
	for i, line := range lines {
		switch {
		case line == "":
		case strings.HasPrefix(line, "---") || strings.HasPrefix(line, "+++"):
			lines[i] = colorBold + colorCyan + line + colorReset
		case strings.HasPrefix(line, "@@") || strings.HasPrefix(line, "~"):
			lines[i] = colorCyan + line + colorReset
		case strings.HasPrefix(line, "-"):
			lines[i] = colorRed + line + colorReset
		case strings.HasPrefix(line, "+"):
			lines[i] = colorGreen + line + colorReset
		}
	}
	return strings.Join(lines, "\n")
}

// SupportsColor reports whether w is a terminal that understands ANSI colors.
// NO_COLOR and TERM=dumb disable color.
func SupportsColor(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	termEnv := os.Getenv("TERM")
	if termEnv == "dumb" || termEnv == "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
