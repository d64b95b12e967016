// Copyright 2022 Google LLC. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package memmap

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"strings"

	"github.com/golang/glog"
)

// DefaultIOMemPath is where Linux lists physical resources, relative to the
// host root.
const DefaultIOMemPath = "proc/iomem"

// ParseIOMem reads a /proc/iomem listing and adds the top-level resources it
// understands to a. Nested (indented) lines describe sub-resources such as
// the running kernel's text and are skipped, as are malformed lines.
//
// Note that unprivileged readers see every address as zero; such a listing
// parses fine and yields nothing useful.
func ParseIOMem(r io.Reader, a *Avail) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if line == "" || line[0] == ' ' || line[0] == '\t' {
			continue
		}
		start, end, name, err := parseIOMemLine(line)
		if err != nil {
			glog.V(2).Infof("Skipping iomem line %q: %v", line, err)
			continue
		}
		if t := iomemType(name); t != Unknown {
			a.Add(start, end, t)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read iomem: %w", err)
	}
	return nil
}

// iomemType classifies a top-level resource name. Linux may qualify a name,
// as in "Persistent Memory (legacy)".
func iomemType(name string) Type {
	for _, t := range []Type{SystemRAM, Persistent, Reserved} {
		if strings.HasPrefix(name, t.rangeType().String()) {
			return t
		}
	}
	return Unknown
}

// parseIOMemLine splits "00000000-00000fff : Reserved".
func parseIOMemLine(line string) (uint64, uint64, string, error) {
	rng, name, ok := strings.Cut(line, " : ")
	if !ok {
		return 0, 0, "", fmt.Errorf("missing separator")
	}
	lo, hi, ok := strings.Cut(strings.TrimSpace(rng), "-")
	if !ok {
		return 0, 0, "", fmt.Errorf("bad range %q", rng)
	}
	start, err := strconv.ParseUint(lo, 16, 64)
	if err != nil {
		return 0, 0, "", fmt.Errorf("bad start: %w", err)
	}
	end, err := strconv.ParseUint(hi, 16, 64)
	if err != nil {
		return 0, 0, "", fmt.Errorf("bad end: %w", err)
	}
	if end < start {
		return 0, 0, "", fmt.Errorf("end %#x before start %#x", end, start)
	}
	return start, end, strings.TrimSpace(name), nil
}

// IOMem enumerates memory from the host's /proc/iomem into Avail.
type IOMem struct {
	// FS is the host filesystem, rooted at the host's "/".
	FS fs.FS
	// Path of the iomem listing within FS; DefaultIOMemPath if empty.
	Path string
	// Avail receives the segments.
	Avail *Avail
}

// Populate reads and parses the iomem listing.
func (m *IOMem) Populate() error {
	p := m.Path
	if p == "" {
		p = DefaultIOMemPath
	}
	f, err := m.FS.Open(p)
	if err != nil {
		return fmt.Errorf("can't get memory map: %w", err)
	}
	defer f.Close()
	return ParseIOMem(f, m.Avail)
}

// Print logs the resulting view.
func (m *IOMem) Print() {
	m.Avail.Print()
}
