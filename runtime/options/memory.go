package options

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/docker/go-connections/nat"
)

// ParseMemory parses a human memory string (e.g. "1g", "512m", "2048") into
// bytes. Hand-rolled rather than pulled in from a humanize-style library
// since the suffix set (K, M, G, T) is small and fixed.
func ParseMemory(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty memory string")
	}
	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "k"):
		mult = 1 << 10
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "m"):
		mult = 1 << 20
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "g"):
		mult = 1 << 30
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "t"):
		mult = 1 << 40
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int64(n * float64(mult)), nil
}

// toPortMap translates a simple containerPort->hostPort map (e.g.
// "8080/tcp":"18080") into the Docker engine API's nat.PortMap shape.
func toPortMap(published map[string]string) nat.PortMap {
	out := nat.PortMap{}
	for containerPort, hostPort := range published {
		port, err := nat.NewPort(protoOf(containerPort), portOnly(containerPort))
		if err != nil {
			continue
		}
		out[port] = []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: hostPort}}
	}
	return out
}

func protoOf(spec string) string {
	if i := strings.IndexByte(spec, '/'); i >= 0 {
		return spec[i+1:]
	}
	return "tcp"
}

func portOnly(spec string) string {
	if i := strings.IndexByte(spec, '/'); i >= 0 {
		return spec[:i]
	}
	return spec
}

// hostPortFor is a small helper retained for symmetry with net.JoinHostPort
// callers building "ip:port" published-port specs.
func hostPortFor(ip string, port int) string {
	return net.JoinHostPort(ip, strconv.Itoa(port))
}
