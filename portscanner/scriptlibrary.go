package portscanner

import (
	"context"
	"fmt"
	"time"

	"github.com/jiandong01/firebox/ferrors"
)

// ScriptLibrary manages user-added scripts under /root/commands, the
// directory Sandbox.Open's postReadyInit puts on PATH. This is the
// supplemented "quick scripts" convention from firebox's original
// code_snippet module (SPEC_FULL.md supplemented features): rather than
// every snippet being re-uploaded on each call, a named script is written
// once and then invoked by name like any other command.
type ScriptLibrary struct {
	sb  Sandbox
	dir string
}

// NewScriptLibrary returns a ScriptLibrary bound to sb, rooted at dir
// (typically "/root/commands").
func NewScriptLibrary(sb Sandbox, dir string) *ScriptLibrary {
	if dir == "" {
		dir = "/root/commands"
	}
	return &ScriptLibrary{sb: sb, dir: dir}
}

// EnsureUserScript writes body to <dir>/<name> and marks it executable,
// creating it only if it doesn't already exist verbatim — a second call
// with identical content is a no-op; a call with different content
// overwrites it.
func (l *ScriptLibrary) EnsureUserScript(ctx context.Context, name, body string) error {
	path := l.dir + "/" + name
	existing, err := l.readScript(ctx, path)
	if err == nil && existing == body {
		return nil
	}

	cmd := fmt.Sprintf("mkdir -p %s && cat > %s << 'FIREBOX_SCRIPT_EOF'\n%s\nFIREBOX_SCRIPT_EOF\nchmod +x %s",
		quotePath(l.dir), quotePath(path), body, quotePath(path))
	exitCode, out, err := l.sb.Exec(ctx, cmd, 5*time.Second)
	if err != nil {
		return ferrors.Wrap(ferrors.KindIO, "ScriptLibrary.EnsureUserScript", err)
	}
	if exitCode != 0 {
		return ferrors.New(ferrors.KindIO, "ScriptLibrary.EnsureUserScript", out, nil)
	}
	return nil
}

func (l *ScriptLibrary) readScript(ctx context.Context, path string) (string, error) {
	exitCode, out, err := l.sb.Exec(ctx, "cat "+quotePath(path), 5*time.Second)
	if err != nil {
		return "", err
	}
	if exitCode != 0 {
		return "", ferrors.New(ferrors.KindNotFound, "ScriptLibrary.readScript", path, nil)
	}
	return out, nil
}

func quotePath(s string) string {
	return "'" + s + "'"
}
