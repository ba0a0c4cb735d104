package portscanner

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeSandbox struct {
	execFunc func(cmd string) (int, string, error)
}

func (f *fakeSandbox) Exec(ctx context.Context, cmd string, timeout time.Duration) (int, string, error) {
	return f.execFunc(cmd)
}

func TestScanner_ScanNetstat(t *testing.T) {
	const netstatOut = "tcp  0  0 0.0.0.0:8080  0.0.0.0:*  LISTEN\n" +
		"tcp6 0  0 :::22         :::*       LISTEN\n"
	sb := &fakeSandbox{
		execFunc: func(cmd string) (int, string, error) {
			return 0, netstatOut, nil
		},
	}
	s := New(sb)
	ports, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if len(ports) != 2 {
		t.Fatalf("Scan returned %d ports, want 2", len(ports))
	}
	if ports[0].Port != 8080 || ports[0].IP != "0.0.0.0" {
		t.Errorf("ports[0] = %+v", ports[0])
	}
	if ports[1].Port != 22 || ports[1].IP != "::" {
		t.Errorf("ports[1] = %+v", ports[1])
	}
}

func TestScanner_ScanFallsBackToSS(t *testing.T) {
	var calls []string
	sb := &fakeSandbox{
		execFunc: func(cmd string) (int, string, error) {
			calls = append(calls, cmd)
			if len(calls) == 1 {
				return 1, "", nil // netstat unavailable
			}
			return 0, "tcp LISTEN 0 128 127.0.0.1:9000 0.0.0.0:*\n", nil
		},
	}
	s := New(sb)
	ports, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if len(calls) != 2 {
		t.Fatalf("expected fallback to ss, got %d exec calls", len(calls))
	}
	if len(ports) != 1 || ports[0].Port != 9000 {
		t.Errorf("ports = %+v, want single port 9000", ports)
	}
}

func TestScanner_ScanExecError(t *testing.T) {
	wantErr := errors.New("exec failed")
	sb := &fakeSandbox{
		execFunc: func(cmd string) (int, string, error) {
			return 0, "", wantErr
		},
	}
	s := New(sb)
	_, err := s.Scan(context.Background())
	if !errors.Is(err, wantErr) {
		t.Errorf("Scan error = %v, want wrapping %v", err, wantErr)
	}
}

func TestScanner_StartReturnsImmediately(t *testing.T) {
	sb := &fakeSandbox{
		execFunc: func(cmd string) (int, string, error) {
			return 0, "tcp LISTEN 0 0 0.0.0.0:80 0.0.0.0:*\n", nil
		},
	}
	s := New(sb)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx, func(ports []OpenPort) {})
}

func TestParseListenLines(t *testing.T) {
	out := "tcp 0 0 127.0.0.1:3000 0.0.0.0:* LISTEN\nmalformed line\n"
	ports := parseListenLines(out)
	if len(ports) != 1 {
		t.Fatalf("parseListenLines returned %d ports, want 1", len(ports))
	}
	if ports[0].IP != "127.0.0.1" || ports[0].Port != 3000 || ports[0].State != "LISTEN" {
		t.Errorf("ports[0] = %+v", ports[0])
	}
}
