package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jiandong01/firebox"
)

// OpenCmd opens a new sandbox from a template and prints its ID and
// container ID, using the Sandbox's own create+open path.
type OpenCmd struct {
	ID         string            `arg:"" optional:"" help:"stable sandbox ID; a fresh UUID is used if omitted"`
	Image      string            `default:"" help:"image reference to run (mutually exclusive with --dockerfile)"`
	Dockerfile string            `default:"" help:"path to a Dockerfile to build and run instead of --image"`
	CPU        int               `default:"1" help:"CPU quota, whole cores"`
	Memory     string            `default:"1g" help:"memory limit"`
	CWD        string            `default:"/sandbox" help:"working directory inside the container"`
	Timeout    int               `default:"60" help:"readiness timeout, seconds"`
}

func (c *OpenCmd) Run(cctx *Context) error {
	ctx := context.Background()

	reg, cleanup, err := openRegistry(cctx)
	if err != nil {
		return err
	}
	defer cleanup()

	tmpl := firebox.Template{
		Image:  c.Image,
		CPU:    c.CPU,
		Memory: c.Memory,
		CWD:    c.CWD,
	}
	if c.Dockerfile != "" {
		body, err := readFile(c.Dockerfile)
		if err != nil {
			return err
		}
		tmpl.Dockerfile = body
	}
	if tmpl.Image == "" && tmpl.Dockerfile == "" {
		tmpl.Image = cctx.Config.SandboxImage
	}
	if tmpl.CPU <= 0 {
		tmpl.CPU = cctx.Config.CPU
	}
	if tmpl.Memory == "" {
		tmpl.Memory = cctx.Config.Memory
	}

	sb, err := reg.Open(ctx, c.ID, tmpl, time.Duration(c.Timeout)*time.Second)
	if err != nil {
		return err
	}
	fmt.Printf("%s\t%s\n", sb.ID, sb.ContainerID())
	return nil
}
