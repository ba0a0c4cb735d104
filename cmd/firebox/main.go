// Command firebox is the CLI entrypoint exercising every subsystem:
// opening/closing/listing sandboxes, one-shot exec, filesystem ops, an
// interactive terminal, and the daemon front end. Uses an alecthomas/kong
// CLI struct, kong-yaml config layering, and slog-to-file logging setup.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"
	kongyaml "github.com/alecthomas/kong-yaml"
	kongcompletion "github.com/jotaen/kong-completion"
	"github.com/posener/complete"

	"github.com/jiandong01/firebox/config"
	"github.com/jiandong01/firebox/imagebuilder"
	"github.com/jiandong01/firebox/registry"
	"github.com/jiandong01/firebox/rpc"
	"github.com/jiandong01/firebox/runtime"
	"github.com/jiandong01/firebox/telemetry"
)

// Context carries shared state into every CLI subcommand's Run method.
type Context struct {
	AppBaseDir string
	Config     *config.Config
}

// CLI is the root kong command tree.
type CLI struct {
	LogFile  string `default:"" placeholder:"<log-file-path>" help:"location of log file (empty logs to stderr)"`
	LogLevel string `default:"info" placeholder:"<debug|info|warn|error>" help:"logging level"`
	Config   string `default:"" placeholder:"<config-yaml-path>" help:"path to a firebox config YAML file"`

	Open       OpenCmd       `cmd:"" help:"open a new sandbox from a template"`
	Exec       ExecCmd       `cmd:"" help:"run a command in an open sandbox"`
	Ls         LsCmd         `cmd:"" help:"list sandboxes"`
	Close      CloseCmd      `cmd:"" help:"stop a sandbox's container, keeping it for reconnect"`
	Rm         RmCmd         `cmd:"" help:"release (permanently remove) a sandbox"`
	Fs         FsCmd         `cmd:"" help:"filesystem operations against a sandbox"`
	Term       TermCmd       `cmd:"" help:"open an interactive terminal in a sandbox"`
	Ports      PortsCmd      `cmd:"" help:"scan a sandbox's listening TCP/UDP sockets"`
	Daemon     DaemonCmd     `cmd:"" help:"start, stop, or check the optional RPC daemon"`
	Version    VersionCmd    `cmd:"" help:"print version information"`
	Completion kongcompletion.Cmd `cmd:"" help:"generate shell completion scripts"`
}

func appHomeDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("error getting home directory: %w", err)
	}
	dir := filepath.Join(homeDir, ".firebox")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating app base directory: %w", err)
	}
	return dir, nil
}

func initSlog(logFile, logLevel string) {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var w *os.File = os.Stderr
	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
			panic(err)
		}
		f, err := os.OpenFile(logFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			panic(err)
		}
		w = f
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})))
}

func main() {
	var cli CLI

	parser := kong.Must(&cli,
		kong.Configuration(kongyaml.Loader, ".firebox.yaml", "~/.firebox.yaml"),
		kong.Description("Manage ephemeral, isolated code-execution sandboxes on any Docker-compatible runtime."),
	)
	kongcompletion.Register(parser, kongcompletion.WithPredictor("file", complete.PredictFiles("*")))

	kctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	initSlog(cli.LogFile, cli.LogLevel)

	appBaseDir, err := appHomeDir()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfgPath := cli.Config
	if cfgPath == "" {
		cfgPath = filepath.Join(appBaseDir, "config.yaml")
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		Endpoint:    cfg.OtlpEndpoint,
		ServiceName: "firebox",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "initializing telemetry: %v\n", err)
		os.Exit(1)
	}
	defer shutdownTelemetry(context.Background())

	err = kctx.Run(&Context{AppBaseDir: appBaseDir, Config: cfg})
	kctx.FatalIfErrorf(err)
}

// openRegistry wires a runtime client, image builder, and registry for
// commands that need to reach a Sandbox directly (bypassing the daemon),
// used by commands that can't assume a daemon is running.
func openRegistry(cctx *Context) (*registry.Registry, func(), error) {
	rt, err := runtime.New(cctx.Config.DockerHost)
	if err != nil {
		return nil, nil, err
	}
	builder := imagebuilder.New(rt)
	reg, err := registry.Open(filepath.Join(cctx.AppBaseDir, "firebox.db"), rt, builder, cctx.Config.ContainerPrefix, cctx.Config.PersistentStoragePath)
	if err != nil {
		rt.Close()
		return nil, nil, err
	}
	cleanup := func() {
		reg.CloseDB()
		rt.Close()
	}
	return reg, cleanup, nil
}

func rpcClient(cctx *Context) (*rpc.Client, error) {
	ctx := context.Background()
	if err := rpc.EnsureDaemon(ctx, cctx.AppBaseDir, filepath.Join(cctx.AppBaseDir, "daemon.log")); err != nil {
		return nil, err
	}
	srv := rpc.NewServer(cctx.AppBaseDir, nil)
	return srv.NewClient(), nil
}
