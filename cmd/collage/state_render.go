package main

import (
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"collage/internal/queue"
	"collage/internal/status"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

var titleCaser = cases.Title(language.Und)

// formatStateLabel renders "not_found" as "Not Found".
func formatStateLabel(state string) string {
	state = strings.TrimSpace(state)
	if state == "" {
		return ""
	}
	return titleCaser.String(strings.ReplaceAll(state, "_", " "))
}

func stateColor(state string) string {
	switch state {
	case string(queue.StateCompleted):
		return ansiGreen
	case string(queue.StateFailed), status.StateNotFound:
		return ansiRed
	case string(queue.StateActive):
		return ansiYellow
	case string(queue.StateQueued):
		return ansiBlue
	default:
		return ""
	}
}

func renderState(state string, colorize bool) string {
	label := formatStateLabel(state)
	if !colorize {
		return label
	}
	if color := stateColor(state); color != "" {
		return color + label + ansiReset
	}
	return label
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
