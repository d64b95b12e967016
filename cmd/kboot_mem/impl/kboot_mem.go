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

// Package impl is the implementation of a tool which discovers the host's
// physical memory layout and reports where kboot would load the next stage.
package impl

import (
	"fmt"
	"io"
	"os"

	"github.com/golang/glog"
	"github.com/google/kboot/internal/boot"
	"github.com/google/kboot/internal/config"
	"github.com/google/kboot/internal/memmap"
)

// Opts encapsulates kboot_mem parameters. Non-empty fields override the
// configuration file.
type Opts struct {
	ConfigFile string
	HostRoot   string
	DevMem     string
	KernelSize uint64
	MapOut     string
}

// Summary is what kboot_mem found out.
type Summary struct {
	// UEFI is true if the firmware memory map parameters were recovered.
	UEFI        bool
	SystemTable uint64
	MapSource   uint64
	MapDest     uint64
	MapSize     int
	// Populated is true if the real descriptors were read from DevMem.
	Populated bool

	// Segments is the available-memory view, less anything reserved for the
	// next stage.
	Segments    []memmap.Segment
	LoadSegment uint64
	Fallback    bool
}

// Main runs the tool and prints a summary to stdout.
func Main(opts Opts) error {
	s, err := Run(opts)
	if err != nil {
		return err
	}
	return s.Write(os.Stdout)
}

// Run discovers the memory layout described by opts.
func Run(opts Opts) (*Summary, error) {
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return nil, err
	}
	if opts.HostRoot != "" {
		cfg.HostRoot = opts.HostRoot
	}
	if opts.DevMem != "" {
		cfg.DevMem = opts.DevMem
	}

	host := os.DirFS(cfg.HostRoot)
	avail := &memmap.Avail{}
	c := boot.NewContext(cfg.LoadPolicy())
	e := &memmap.IOMem{FS: host, Path: cfg.IOMemPath, Avail: avail}
	boot.Enumerate(c, host, e, cfg.EnumerateOptions())

	s := &Summary{}
	if c.StagedMap() != nil && cfg.DevMem != "" {
		s.Populated = populate(c, cfg.DevMem, avail)
	}

	s.LoadSegment = c.LoadSegment(avail)
	s.Fallback = c.LoadSegmentFallback()
	glog.Infof("Next stage load segment: %#x", s.LoadSegment)

	if m := c.StagedMap(); m != nil {
		s.UEFI = true
		s.SystemTable, _ = c.SystemTable()
		s.MapSource, _ = c.MapSource()
		s.MapSize = m.Len()
		if s.MapDest, err = c.PlanHandoff(opts.KernelSize); err != nil {
			return nil, fmt.Errorf("failed to plan handoff: %w", err)
		}
		if err := c.ReserveHandoff(avail); err != nil {
			return nil, fmt.Errorf("failed to reserve handoff memory: %w", err)
		}
		if opts.MapOut != "" {
			if err := os.WriteFile(opts.MapOut, m.Bytes(), 0644); err != nil {
				return nil, fmt.Errorf("failed to write memory map to %q: %w", opts.MapOut, err)
			}
		}
	}
	s.Segments = avail.Segments()
	return s, nil
}

func populate(c *boot.Context, devmem string, avail *memmap.Avail) bool {
	f, err := os.Open(devmem)
	if err != nil {
		glog.Warningf("Can't open %q, leaving UEFI memory map for the next stage: %v", devmem, err)
		return false
	}
	defer f.Close()
	if err := boot.PopulateDescriptors(c, f, avail); err != nil {
		glog.Warningf("Leaving UEFI memory map for the next stage: %v", err)
		return false
	}
	return true
}

// Write prints s in a form meant for people.
func (s *Summary) Write(w io.Writer) error {
	var err error
	p := func(format string, args ...interface{}) {
		if err == nil {
			_, err = fmt.Fprintf(w, format, args...)
		}
	}
	if s.UEFI {
		p("UEFI system table:  %#x\n", s.SystemTable)
		p("UEFI memory map:    %#x -> %#x (%d bytes, populated: %v)\n", s.MapSource, s.MapDest, s.MapSize, s.Populated)
	} else {
		p("UEFI memory map:    unavailable\n")
	}
	for _, seg := range s.Segments {
		p("  %v\n", seg)
	}
	if s.Fallback {
		p("Load segment:       %#x (FALLBACK, memory map is probably wrong)\n", s.LoadSegment)
	} else {
		p("Load segment:       %#x\n", s.LoadSegment)
	}
	return err
}
