package memory

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Region is one line of a /proc/<pid>/maps file.
type Region struct {
	Start    uint64
	End      uint64
	Perms    string
	Offset   uint64
	Pathname string
}

// Readable reports whether the region is mapped readable.
func (r Region) Readable() bool { return strings.HasPrefix(r.Perms, "r") }

// ParseMaps parses the /proc/<pid>/maps format. Used for diagnostics when
// a window read fails: the first few regions tell the operator whether
// the privileged channel could see the process at all.
func ParseMaps(r io.Reader) ([]Region, error) {
	var regions []Region
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 64*1024)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		addrs := strings.SplitN(fields[0], "-", 2)
		if len(addrs) != 2 {
			continue
		}
		start, err := strconv.ParseUint(addrs[0], 16, 64)
		if err != nil {
			return nil, fmt.Errorf("parse maps: bad start address %q", addrs[0])
		}
		end, err := strconv.ParseUint(addrs[1], 16, 64)
		if err != nil {
			return nil, fmt.Errorf("parse maps: bad end address %q", addrs[1])
		}
		reg := Region{Start: start, End: end, Perms: fields[1]}
		if len(fields) >= 3 {
			if off, err := strconv.ParseUint(fields[2], 16, 64); err == nil {
				reg.Offset = off
			}
		}
		if len(fields) >= 6 {
			// Pathnames can contain spaces: "[anon:dalvik-main space]",
			// APKs installed from paths with spaces.
			reg.Pathname = strings.Join(fields[5:], " ")
		}
		regions = append(regions, reg)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return regions, nil
}
