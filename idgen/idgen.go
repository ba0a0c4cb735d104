// Package idgen generates sandbox/process/terminal identifiers and resolves
// sandbox-relative paths, using google/uuid for IDs and
// goombaio/namegenerator for human-friendly names.
package idgen

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/goombaio/namegenerator"
)

// NewSandboxID returns a fresh UUID string used as the sandbox's stable
// identity and the container name suffix (spec.md §3 Sandbox Identity).
func NewSandboxID() string {
	return uuid.NewString()
}

// NewFriendlyName returns a human-readable name (e.g. "cheerful-einstein")
// seeded from the current time. Nothing in this module calls it; sandboxes
// are named by NewSandboxID.
func NewFriendlyName() string {
	seed := time.Now().UTC().UnixNano()
	gen := namegenerator.NewNameGenerator(seed)
	return gen.Generate()
}

// NewProcessID mints "process_<ms-since-epoch>" per spec.md §4.D step 1.
// The caller must guarantee monotonically distinct values under concurrent
// calls by serializing through the process manager's mutex.
func NewProcessID(nowMS int64) string {
	return "process_" + strconv.FormatInt(nowMS, 10)
}

// NewTerminalID mints a 12-character alphanumeric terminal ID.
func NewTerminalID() string {
	u := strings.ReplaceAll(uuid.NewString(), "-", "")
	return u[:12]
}

// ResolvePath resolves a client-supplied path against the sandbox's CWD.
// Absolute paths bypass resolution, per spec.md §4.E.
func ResolvePath(cwd, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(cwd, path)
}

// ContainerName joins the configured prefix and sandbox ID, per spec.md §6
// Naming: "<container_prefix>_<sandbox_id>".
func ContainerName(prefix, sandboxID string) string {
	return prefix + "_" + sandboxID
}
