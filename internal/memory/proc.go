package memory

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/tarsier-dev/tarsier/internal/adb"
)

// ProcReader reads directly from /proc/<pid>/mem. Usable when the tool
// itself runs inside the device shell as root; the desktop pipeline uses
// DumpReader instead.
type ProcReader struct{}

// Read captures size bytes starting at offset in pid's address space.
func (ProcReader) Read(ctx context.Context, pid int, offset, size uint64) (*Window, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := fmt.Sprintf("/proc/%d/mem", pid)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ReadError{PID: pid, Offset: offset, Size: size, Err: adb.ErrNoProcess}
		}
		return nil, &ReadError{PID: pid, Offset: offset, Size: size, Err: err}
	}
	defer f.Close()

	buf := make([]byte, size)
	n, err := f.ReadAt(buf, int64(offset))
	if err != nil && err != io.EOF {
		return nil, &ReadError{PID: pid, Offset: offset, Size: size, Err: err}
	}
	if uint64(n) < size {
		return nil, &ReadError{PID: pid, Offset: offset, Size: size,
			Err: fmt.Errorf("short read: got %d bytes", n)}
	}
	return &Window{PID: pid, Offset: offset, Data: buf}, nil
}

// Regions returns the process's memory map, for failure diagnostics.
func Regions(pid int) ([]Region, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/maps", pid))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseMaps(f)
}
