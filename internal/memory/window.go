// Package memory captures a bounded window of a target process's address
// space. A window is read all-or-nothing against a single contiguous
// range: a short or failed read is a hard error for the run, never a
// partially filled buffer.
package memory

import (
	"context"
	"fmt"
)

// Window is a byte range captured from a process's address space.
// Immutable once captured; discarded after scanning.
type Window struct {
	PID    int
	Offset uint64
	Data   []byte
}

// Len returns the captured length in bytes.
func (w *Window) Len() int { return len(w.Data) }

// Reader produces a Window from a live process through some privileged
// channel.
type Reader interface {
	Read(ctx context.Context, pid int, offset, size uint64) (*Window, error)
}

// ReadError describes a failed or truncated window read.
type ReadError struct {
	PID    int
	Offset uint64
	Size   uint64
	Err    error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %d bytes at 0x%x from pid %d: %v", e.Size, e.Offset, e.PID, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }
