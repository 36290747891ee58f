package main

import (
	"context"
	"fmt"
	"os"

	"github.com/snonux/otail/internal/otail/session"
	"github.com/snonux/otail/internal/otail/view"
	"golang.org/x/term"
)

// rawWindow builds a full-height, unscrolled window for height terminal
// rows, reserving one row for the status line between the two panes.
func rawWindow(height int) view.Window {
	h := height - 1
	if h < 1 {
		h = 1
	}
	return view.Window{FirstVisible: 1, Height: h}
}

// runHeadless drives the session without a curses-style widget layer: on
// every coalesced redraw signal it reprints the two panes' current
// viewport. Building the interactive split-pane/colouring/dialog layer
// itself is out of scope for the core (spec.md §1 Non-goals); this keeps
// the binary runnable and observable.
func runHeadless(ctx context.Context, sess *session.Session, resizeCh <-chan os.Signal) {
	sess.Raw.SetTailing(true)

	for {
		select {
		case <-ctx.Done():
			return
		case <-resizeCh:
			if _, h, err := term.GetSize(int(os.Stdin.Fd())); err == nil && h > 1 {
				rawWin, filteredWin := rawWindow(h), rawWindow(h)
				rawWin.FirstVisible = sess.Raw.Window().FirstVisible
				filteredWin.FirstVisible = sess.Filtered.Window().FirstVisible
				sess.Raw.SetWindow(rawWin)
				sess.Filtered.SetWindow(filteredWin)
			}
		case <-sess.Redraw():
			printPane(os.Stdout, "raw", sess.Raw)
			printPane(os.Stdout, "filtered", sess.Filtered)
			if p := sess.Progress(); p.SourceTotal > 0 {
				fmt.Fprintf(os.Stdout, "-- scan %d%% (%d/%d matched)\n", p.Percent(), p.Matches, p.SourceTotal)
			}
		}
	}
}

func printPane(w *os.File, name string, v *view.View) {
	win := v.Window()
	fmt.Fprintf(w, "== %s [%d..%d] ==\n", name, win.FirstVisible, win.FirstVisible+uint64(win.Height)-1)
	for n := win.FirstVisible; n < win.FirstVisible+uint64(win.Height); n++ {
		text, ok, pending := v.Line(n)
		switch {
		case ok:
			fmt.Fprintln(w, v.RenderLine(n))
		case pending:
			fmt.Fprintln(w, "~")
		default:
			_ = text
			return
		}
	}
}
