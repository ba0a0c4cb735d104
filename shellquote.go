package firebox

import "strings"

// ShellQuote wraps s in single quotes, escaping embedded single quotes so
// the result is safe to interpolate into a /bin/bash -c string. Spec.md
// §4.E requires "All shell interpolations of user paths MUST be quoted so
// paths containing spaces, quotes, or ; are safe". The root package's own
// shell one-liners use it; the filesystem, process and terminal packages
// each carry an identical private helper.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func shellQuote(s string) string { return ShellQuote(s) }
