package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jiandong01/firebox/filesystem"
)

// FsCmd groups filesystem subcommands against an open sandbox, grounded
// on spec.md §4.E's read/write/remove/mkdir/list/exists/size operation
// set.
type FsCmd struct {
	Read  FsReadCmd  `cmd:"" help:"print a file's contents"`
	Write FsWriteCmd `cmd:"" help:"write a file's contents"`
	Ls    FsLsCmd    `cmd:"" help:"list a directory"`
	Rm    FsRmCmd    `cmd:"" help:"remove a file or directory"`
	Mkdir FsMkdirCmd `cmd:"" help:"create a directory"`
}

func fsManager(cctx *Context, sandboxID string) (*filesystem.Manager, func(), error) {
	reg, cleanup, err := openRegistry(cctx)
	if err != nil {
		return nil, nil, err
	}
	sb := reg.Get(sandboxID)
	if sb == nil {
		cleanup()
		return nil, nil, fmt.Errorf("sandbox %s is not open", sandboxID)
	}
	return filesystem.NewManager(sb, 30*time.Second), cleanup, nil
}

type FsReadCmd struct {
	ID   string `arg:"" help:"sandbox ID"`
	Path string `arg:"" help:"path to read"`
}

func (c *FsReadCmd) Run(cctx *Context) error {
	fs, cleanup, err := fsManager(cctx, c.ID)
	if err != nil {
		return err
	}
	defer cleanup()
	text, err := fs.Read(context.Background(), c.Path)
	if err != nil {
		return err
	}
	fmt.Print(text)
	return nil
}

type FsWriteCmd struct {
	ID   string `arg:"" help:"sandbox ID"`
	Path string `arg:"" help:"path to write"`
	Text string `arg:"" help:"content to write"`
}

func (c *FsWriteCmd) Run(cctx *Context) error {
	fs, cleanup, err := fsManager(cctx, c.ID)
	if err != nil {
		return err
	}
	defer cleanup()
	return fs.Write(context.Background(), c.Path, c.Text)
}

type FsLsCmd struct {
	ID   string `arg:"" help:"sandbox ID"`
	Path string `arg:"" default:"." help:"directory to list"`
}

func (c *FsLsCmd) Run(cctx *Context) error {
	fs, cleanup, err := fsManager(cctx, c.ID)
	if err != nil {
		return err
	}
	defer cleanup()
	entries, err := fs.List(context.Background(), c.Path)
	if err != nil {
		return err
	}
	for _, e := range entries {
		kind := "-"
		if e.IsDir {
			kind = "d"
		}
		fmt.Printf("%s\t%s\n", kind, e.Name)
	}
	return nil
}

type FsRmCmd struct {
	ID   string `arg:"" help:"sandbox ID"`
	Path string `arg:"" help:"path to remove"`
}

func (c *FsRmCmd) Run(cctx *Context) error {
	fs, cleanup, err := fsManager(cctx, c.ID)
	if err != nil {
		return err
	}
	defer cleanup()
	return fs.Remove(context.Background(), c.Path)
}

type FsMkdirCmd struct {
	ID   string `arg:"" help:"sandbox ID"`
	Path string `arg:"" help:"directory to create"`
}

func (c *FsMkdirCmd) Run(cctx *Context) error {
	fs, cleanup, err := fsManager(cctx, c.ID)
	if err != nil {
		return err
	}
	defer cleanup()
	return fs.MakeDir(context.Background(), c.Path)
}
