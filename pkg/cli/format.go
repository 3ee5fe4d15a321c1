// Package cli provides shared formatting helpers for the birdsync commands.
package cli

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// colorEnabled is false when NO_COLOR is set (per no-color.org) or stdout is
// not a terminal.
var colorEnabled = os.Getenv("NO_COLOR") == "" && term.IsTerminal(int(os.Stdout.Fd()))

// SetColor forces colored output on or off.
func SetColor(on bool) {
	colorEnabled = on
}

func paint(code, s string) string {
	if !colorEnabled {
		return s
	}
	return code + s + "\033[0m"
}

// Green wraps s in ANSI green.
func Green(s string) string { return paint("\033[32m", s) }

// Yellow wraps s in ANSI yellow.
func Yellow(s string) string { return paint("\033[33m", s) }

// Red wraps s in ANSI red.
func Red(s string) string { return paint("\033[31m", s) }

// Bold wraps s in ANSI bold.
func Bold(s string) string { return paint("\033[1m", s) }

// Dim wraps s in ANSI dim.
func Dim(s string) string { return paint("\033[2m", s) }

// Status colors a route status: primary green, filtered red, anything else
// unchanged. An empty status renders as "-".
func Status(s string) string {
	switch s {
	case "":
		return "-"
	case "primary":
		return Green(s)
	case "filtered":
		return Red(s)
	}
	return s
}

// Phase renders one step of a multi-step operation as "name ..... ok".
func Phase(name string, ok bool, width int) string {
	mark := Green("ok")
	if !ok {
		mark = Red("FAILED")
	}
	return DotPad(name, width) + " " + mark
}

// DotPad pads name with dots to the given width.
// Example: DotPad("store", 12) → "store ......"
func DotPad(name string, width int) string {
	if width <= 0 || len(name) >= width-1 {
		return name
	}
	dots := width - len(name) - 1
	return name + " " + strings.Repeat(".", dots)
}
