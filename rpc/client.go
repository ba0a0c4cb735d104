package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/jiandong01/firebox/registry"
	"github.com/jiandong01/firebox/version"
)

// Client talks to a running Server over its Unix socket.
type Client struct {
	socketPath string
	httpClient *http.Client
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, result any) error {
	var req *http.Request
	var err error

	if body != nil {
		raw, merr := json.Marshal(body)
		if merr != nil {
			return merr
		}
		req, err = http.NewRequestWithContext(ctx, method, "http://unix"+path, strings.NewReader(string(raw)))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, method, "http://unix"+path, nil)
	}
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("firebox daemon not running: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("%s", errResp.Error)
		}
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	var resp map[string]string
	return c.doRequest(ctx, http.MethodGet, "/ping", nil, &resp)
}

func (c *Client) Version(ctx context.Context) (version.Info, error) {
	var info version.Info
	err := c.doRequest(ctx, http.MethodGet, "/version", nil, &info)
	return info, err
}

func (c *Client) Shutdown(ctx context.Context) error {
	var resp map[string]string
	if err := c.doRequest(ctx, http.MethodPost, "/shutdown", nil, &resp); err != nil {
		return err
	}
	time.Sleep(200 * time.Millisecond)
	if _, err := os.Stat(c.socketPath); err == nil {
		return fmt.Errorf("daemon may not have shut down cleanly")
	}
	return nil
}

func (c *Client) List(ctx context.Context, includeClosed bool) ([]registry.Entry, error) {
	path := "/list"
	if includeClosed {
		path += "?include_closed=true"
	}
	var entries []registry.Entry
	err := c.doRequest(ctx, http.MethodGet, path, nil, &entries)
	return entries, err
}

func (c *Client) Close(ctx context.Context, id string) error {
	return c.doRequest(ctx, http.MethodPost, "/close", map[string]string{"id": id}, nil)
}

func (c *Client) Release(ctx context.Context, id string) error {
	return c.doRequest(ctx, http.MethodPost, "/release", map[string]string{"id": id}, nil)
}

type execResponse struct {
	ExitCode int    `json:"exit_code"`
	Output   string `json:"output"`
}

func (c *Client) Exec(ctx context.Context, id, command string, timeout time.Duration) (int, string, error) {
	var resp execResponse
	err := c.doRequest(ctx, http.MethodPost, "/exec", map[string]any{
		"id": id, "command": command, "timeout_seconds": int(timeout.Seconds()),
	}, &resp)
	if err != nil {
		return 0, "", err
	}
	return resp.ExitCode, resp.Output, nil
}

// EnsureDaemon dials the daemon socket at appBaseDir, starting one in the
// background (by re-invoking the current binary's "daemon start"
// subcommand) if none answers, and shutting down a version-mismatched one
// first.
func EnsureDaemon(ctx context.Context, appBaseDir, logFile string) error {
	socketPath := appBaseDir + "/" + defaultSocketFile

	conn, err := net.DialTimeout("unix", socketPath, 500*time.Millisecond)
	if err == nil {
		conn.Close()
		if err := checkDaemonVersion(ctx, appBaseDir); err != nil {
			_ = shutdownDaemon(appBaseDir)
		} else {
			return nil
		}
	}

	cmd := exec.Command(os.Args[0], "daemon", "start", "--log-file", logFile)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return err
	}

	for i := 0; i < 20; i++ {
		time.Sleep(100 * time.Millisecond)
		conn, err := net.DialTimeout("unix", socketPath, 100*time.Millisecond)
		if err == nil {
			conn.Close()
			return nil
		}
	}
	return fmt.Errorf("firebox daemon failed to start")
}

func dialClient(appBaseDir string) *Client {
	socketPath := appBaseDir + "/" + defaultSocketFile
	return &Client{
		socketPath: socketPath,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
					return net.Dial("unix", socketPath)
				},
			},
		},
	}
}

func checkDaemonVersion(ctx context.Context, appBaseDir string) error {
	client := dialClient(appBaseDir)
	daemonVersion, err := client.Version(ctx)
	if err != nil {
		return err
	}
	if !version.Get().Equal(daemonVersion) {
		return fmt.Errorf("version mismatch")
	}
	return nil
}

func shutdownDaemon(appBaseDir string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return dialClient(appBaseDir).Shutdown(ctx)
}
