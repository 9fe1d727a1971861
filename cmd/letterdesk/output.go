package main

import (
	"fmt"
	"io"
	"os"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

// messageOut receives status lines. Stdout is kept for session ids and JSON.
var messageOut io.Writer = os.Stderr

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printMessage(color, mark, format string, args ...any) {
	fmt.Fprintln(messageOut, colorize(color, mark+" "+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) { printMessage(colorGreen, "✓", format, args...) }

func printError(format string, args ...any) { printMessage(colorRed, "✗", format, args...) }

func printWarning(format string, args ...any) { printMessage(colorYellow, "⚠", format, args...) }

func printStatus(label string, format string, args ...any) {
	l := colorize(colorBold, label+":")
	fmt.Fprintf(messageOut, "  %s %s\n", l, fmt.Sprintf(format, args...))
}
