// Command otail is a two-pane terminal log viewer: a raw pane tailing a
// file and a filtered pane projecting it through a live filter. This
// binary wires the core pipeline (internal/otail/...) to a terminal; the
// widget/colouring/dialog rendering layer itself is out of scope for the
// core (spec.md §1) and is kept deliberately thin here.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/snonux/otail/internal/otail/config"
	"github.com/snonux/otail/internal/otail/dlog"
	"github.com/snonux/otail/internal/otail/filterspec"
	"github.com/snonux/otail/internal/otail/session"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

func main() {
	var configFile string
	var configFileShort string
	var regexStr string
	var invert bool

	flag.StringVar(&configFile, "config", "", "Config file path")
	flag.StringVar(&configFileShort, "c", "", "Config file path (shorthand)")
	flag.StringVar(&regexStr, "regex", "", "Initial filter pattern (plain substring, case-insensitive)")
	flag.BoolVar(&invert, "invert", false, "Apply the initial filter case-sensitively")
	flag.Parse()

	if configFile == "" {
		configFile = configFileShort
	}

	args := flag.Args()
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: otail [--config=<path>|-c <path>] <file>")
		os.Exit(1)
	}
	path := args[0]

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dlog.Start(ctx, config.LogLevelFromEnv(), os.Stderr)
	defer dlog.Flush()

	cfg, err := config.Load(configFile)
	if err != nil {
		if configFile != "" {
			fmt.Fprintln(os.Stderr, "otail:", err)
			os.Exit(2)
		}
		cfg = &config.Config{}
	}
	_ = cfg // colouring rules are consumed by the (out-of-scope) TUI layer

	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	resizeCh := make(chan os.Signal, 4)
	signal.Notify(resizeCh, unix.SIGWINCH)

	height := 24
	if w, h, err := term.GetSize(int(os.Stdin.Fd())); err == nil && h > 0 {
		height = h
		_ = w
	}

	sess, err := session.Open(ctx, path, 0)
	if err != nil {
		fmt.Fprintln(os.Stderr, "otail:", err)
		os.Exit(1)
	}
	defer sess.Close()

	sess.Raw.SetWindow(rawWindow(height))
	if regexStr != "" {
		kind := filterspec.PlainCI
		if invert {
			kind = filterspec.PlainCS
		}
		sess.SetFilter(filterspec.Spec{Kind: kind, Pattern: regexStr, Enabled: true})
	}
	sess.Filtered.SetWindow(rawWindow(height))

	runHeadless(ctx, sess, resizeCh)
}
