package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/jiandong01/firebox/terminal"
)

// TermCmd drives an interactive Terminal session, proxying the local
// controlling terminal's raw-mode stdin to Terminal.SendData and printing
// OnData chunks to stdout. The attach is indirect, through the
// rendezvous-file backend, so this uses golang.org/x/term for local raw
// mode and forwards SIGWINCH to Terminal.Resize instead of an ioctl-level
// resize (there is no real remote PTY to resize against, per spec.md §9
// design note iii).
type TermCmd struct {
	ID  string `arg:"" help:"sandbox ID"`
	Cmd string `default:"bash" help:"shell name passed to the terminal; input always runs through bash -c"`
}

func (c *TermCmd) Run(cctx *Context) error {
	ctx := context.Background()

	reg, cleanup, err := openRegistry(cctx)
	if err != nil {
		return err
	}
	defer cleanup()

	sb := reg.Get(c.ID)
	if sb == nil {
		return fmt.Errorf("sandbox %s is not open", c.ID)
	}

	mgr := terminal.NewManager(sb)

	cols, rows, _ := term.GetSize(int(os.Stdout.Fd()))
	if cols == 0 {
		cols, rows = 80, 24
	}

	t, err := mgr.Start(ctx, func(chunk string) {
		fmt.Print(chunk)
	}, cols, rows, "", c.Cmd, nil, "")
	if err != nil {
		return err
	}
	defer mgr.Kill(ctx, t)

	if term.IsTerminal(int(os.Stdin.Fd())) {
		oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
		if err == nil {
			defer term.Restore(int(os.Stdin.Fd()), oldState)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGWINCH)
	go func() {
		for range sigCh {
			if cols, rows, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
				mgr.Resize(t, cols, rows)
			}
		}
	}()

	reader := bufio.NewReader(os.Stdin)
	line := make([]byte, 0, 256)
	for {
		b, err := reader.ReadByte()
		if err != nil {
			return nil
		}
		if b == 3 { // Ctrl-C
			return nil
		}
		line = append(line, b)
		if b == '\r' || b == '\n' {
			if sendErr := mgr.SendData(ctx, t, string(line)); sendErr != nil {
				return sendErr
			}
			line = line[:0]
		}
	}
}
