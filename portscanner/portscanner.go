// Package portscanner implements the Code-Snippet / Port Scanner
// (spec.md §4.H): a periodic background task that reports listening
// TCP/UDP sockets inside a sandbox, plus a small script-library helper for
// managing user-added commands under /root/commands, following the
// original `code_snippet` convention
// (SPEC_FULL.md supplemented features).
package portscanner

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Sandbox is the subset of firebox.Sandbox the Port Scanner needs.
type Sandbox interface {
	Exec(ctx context.Context, cmd string, timeout time.Duration) (int, string, error)
}

// OpenPort mirrors spec.md §3's OpenPort{ip, port, state}.
type OpenPort struct {
	IP    string
	Port  int
	State string
}

const scanPeriod = 10 * time.Second

// OnScanPorts is invoked with every scan's results.
type OnScanPorts func([]OpenPort)

// Scanner runs the periodic scan for one Sandbox. The task terminates when
// its context is cancelled (the Sandbox closing), per spec.md §4.H.
type Scanner struct {
	sb Sandbox
}

// New returns a Port Scanner bound to sb.
func New(sb Sandbox) *Scanner {
	return &Scanner{sb: sb}
}

// Start begins the periodic scan loop, invoking cb with each scan's
// results until ctx is cancelled.
func (s *Scanner) Start(ctx context.Context, cb OnScanPorts) {
	go func() {
		ticker := time.NewTicker(scanPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.scanOnce(ctx, cb)
			}
		}
	}()
}

func (s *Scanner) scanOnce(ctx context.Context, cb OnScanPorts) {
	ports, err := s.Scan(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "portscanner.scanOnce", "error", err)
		return
	}
	if cb != nil {
		cb(ports)
	}
}

// Scan runs one scan pass: netstat -tuln | grep LISTEN, falling back to
// `ss -tuln` when netstat is unavailable, per spec.md §9 design note (iv).
func (s *Scanner) Scan(ctx context.Context) ([]OpenPort, error) {
	exitCode, out, err := s.sb.Exec(ctx, "netstat -tuln 2>/dev/null | grep LISTEN", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("portscanner: exec netstat: %w", err)
	}
	if exitCode != 0 || strings.TrimSpace(out) == "" {
		exitCode, out, err = s.sb.Exec(ctx, "ss -tuln 2>/dev/null | grep LISTEN", 5*time.Second)
		if err != nil {
			return nil, fmt.Errorf("portscanner: exec ss: %w", err)
		}
		if exitCode != 0 {
			return nil, nil
		}
	}
	return parseListenLines(out), nil
}

// parseListenLines splits each matching line on whitespace and reads the
// local "ip:port" column: the fourth column of netstat output, or the fifth
// of ss output (whose second column is the LISTEN state).
func parseListenLines(out string) []OpenPort {
	var ports []OpenPort
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		col := 3
		if len(fields) > 1 && fields[1] == "LISTEN" {
			col = 4
		}
		if len(fields) <= col {
			continue
		}
		ipPort := fields[col]
		idx := strings.LastIndexByte(ipPort, ':')
		if idx < 0 {
			continue
		}
		ip := ipPort[:idx]
		port, err := strconv.Atoi(ipPort[idx+1:])
		if err != nil {
			continue
		}
		ports = append(ports, OpenPort{IP: ip, Port: port, State: "LISTEN"})
	}
	return ports
}
