// Package tui renders runs on a terminal: a banner, live step progress and
// the final markdown.
package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []struct {
	text  string
	color string
}{
	{`  ___                      _`, "#818cf8"},
	{` / __| ___  __ _ _ __ _ __| |_ ___ ___`, "#a78bfa"},
	{` \__ \/ _ \/ _| '_/ _' |  _/ -_|_-<`, "#c084fc"},
	{` |___/\___/\__|_| \__,_|\__\___/__/`, "#e879f9"},
}

// PrintBanner writes the banner to w. Colors are dropped when w is not a terminal.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	fmt.Fprintln(w)
	for _, l := range bannerLines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w, out.String("  v"+version).Faint())
	fmt.Fprintln(w)
}
