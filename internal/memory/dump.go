package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tarsier-dev/tarsier/internal/adb"
	"github.com/tarsier-dev/tarsier/internal/log"
)

const blockSize = 1 << 20 // dd block size; offsets are MiB-aligned

// DumpReader captures a window by running dd against /proc/<pid>/mem on
// the device, then pulling the dump to the host. The remote copy is
// removed once pulled; the local copy is removed unless KeepLocal is set.
type DumpReader struct {
	ADB        *adb.ADB
	RemotePath string // default /data/local/tmp/heap.bin
	LocalDir   string // default os.TempDir()
	KeepLocal  bool

	// LastLocalPath is set after a successful read when KeepLocal is on,
	// so the operator can rescan offline later.
	LastLocalPath string
}

// Read dumps [offset, offset+size) of pid's memory and returns it as a
// Window. Offset and size must be multiples of 1 MiB; the built-in
// profiles always are.
func (d *DumpReader) Read(ctx context.Context, pid int, offset, size uint64) (*Window, error) {
	if offset%blockSize != 0 || size%blockSize != 0 {
		return nil, &ReadError{PID: pid, Offset: offset, Size: size,
			Err: fmt.Errorf("offset and size must be MiB-aligned")}
	}
	remote := d.RemotePath
	if remote == "" {
		remote = "/data/local/tmp/heap.bin"
	}

	skip := offset / blockSize
	count := size / blockSize
	src := fmt.Sprintf("/proc/%d/mem", pid)

	out, err := d.ADB.Shell(ctx,
		"dd", "if="+src, "bs="+fmt.Sprint(blockSize),
		"skip="+fmt.Sprint(skip), "count="+fmt.Sprint(count), "of="+remote)
	if err != nil {
		if strings.Contains(out, "No such process") || strings.Contains(out, "No such file") {
			return nil, &ReadError{PID: pid, Offset: offset, Size: size, Err: adb.ErrNoProcess}
		}
		return nil, &ReadError{PID: pid, Offset: offset, Size: size, Err: err}
	}
	defer d.ADB.Remove(ctx, remote)

	// All-or-nothing: a dump truncated by an unmapped page or a dying
	// process fails the whole read.
	got, err := d.ADB.RemoteSize(ctx, remote)
	if err != nil {
		return nil, &ReadError{PID: pid, Offset: offset, Size: size, Err: err}
	}
	if uint64(got) < size {
		return nil, &ReadError{PID: pid, Offset: offset, Size: size,
			Err: fmt.Errorf("short dump: got %d of %d bytes", got, size)}
	}

	dir := d.LocalDir
	if dir == "" {
		dir = os.TempDir()
	}
	local := filepath.Join(dir, fmt.Sprintf("tarsier-%d.bin", pid))
	if err := d.ADB.Pull(ctx, remote, local); err != nil {
		return nil, &ReadError{PID: pid, Offset: offset, Size: size, Err: err}
	}
	if !d.KeepLocal {
		defer os.Remove(local)
	} else {
		d.LastLocalPath = local
	}

	data, err := os.ReadFile(local)
	if err != nil {
		return nil, &ReadError{PID: pid, Offset: offset, Size: size, Err: err}
	}
	if uint64(len(data)) < size {
		return nil, &ReadError{PID: pid, Offset: offset, Size: size,
			Err: fmt.Errorf("short pull: got %d of %d bytes", len(data), size)}
	}
	log.L.Debug("window captured", log.Pid(pid), log.Offset(offset), log.Size(uint64(len(data))))
	return &Window{PID: pid, Offset: offset, Data: data[:size]}, nil
}
