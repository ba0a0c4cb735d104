// Package process implements the Process Manager (spec.md §4.D): spawns a
// backgrounded shell command inside a Sandbox, captures stdout/stderr to
// rendezvous files, tracks the exit code, and streams updates to optional
// callbacks.
package process

import "sync"

// Message is one line of process output, timestamped at the moment the
// streaming task observed it.
type Message struct {
	Line      string
	Error     bool // true if this line came from stderr
	Timestamp int64 // nanoseconds, monotonically non-decreasing across appends
}

// Output is the ProcessOutput aggregator from spec.md §3: an
// insertion-ordered sequence of Message, merge-deque in spirit since
// timestamps are monotonic per source (see design notes) even though the
// underlying storage here is a plain guarded slice. Derived stdout/stderr
// views are joins of non-error / error lines respectively.
type Output struct {
	mu       sync.RWMutex
	messages []Message
	hadError bool
}

// Append inserts m in timestamp order. Because callers append with
// monotonically non-decreasing per-source timestamps, the common case is
// an append at the tail; the loop below only walks backward when two
// sources interleave out of order.
func (o *Output) Append(m Message) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if m.Error {
		o.hadError = true
	}

	i := len(o.messages)
	for i > 0 && o.messages[i-1].Timestamp > m.Timestamp {
		i--
	}
	o.messages = append(o.messages, Message{})
	copy(o.messages[i+1:], o.messages[i:])
	o.messages[i] = m
}

// Messages returns a snapshot of every message appended so far.
func (o *Output) Messages() []Message {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]Message, len(o.messages))
	copy(out, o.messages)
	return out
}

// Stdout joins every non-error line's text.
func (o *Output) Stdout() string { return o.join(false) }

// Stderr joins every error line's text.
func (o *Output) Stderr() string { return o.join(true) }

// HadError reports whether any stderr message was ever appended.
func (o *Output) HadError() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.hadError
}

// join reassembles the lines dispatch split on "\n" (process/manager.go)
// back into text, mirroring the original's delimiter.join(...) over "\n".
func (o *Output) join(wantError bool) string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	var sb []byte
	first := true
	for _, m := range o.messages {
		if m.Error != wantError {
			continue
		}
		if !first {
			sb = append(sb, '\n')
		}
		sb = append(sb, m.Line...)
		first = false
	}
	return string(sb)
}
