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

// Package memmap keeps the boot loader's view of physical memory: an ordered
// set of typed, non-overlapping segments, populated from whatever the host
// is willing to tell us.
package memmap

import (
	"fmt"

	"github.com/golang/glog"
	"github.com/u-root/u-root/pkg/boot/kexec"
)

// Type classifies a physical memory segment.
type Type int

const (
	// Unknown segments are never handed out.
	Unknown Type = iota
	// SystemRAM is general purpose memory.
	SystemRAM
	// Persistent is byte-addressable persistent memory.
	Persistent
	// Reserved memory belongs to firmware or devices.
	Reserved
)

// rangePersistent is how Linux names persistent memory in /proc/iomem.
const rangePersistent kexec.RangeType = "Persistent Memory"

func (t Type) rangeType() kexec.RangeType {
	switch t {
	case SystemRAM:
		return kexec.RangeRAM
	case Persistent:
		return rangePersistent
	case Reserved:
		return kexec.RangeReserved
	}
	return kexec.RangeType(fmt.Sprintf("Unknown(%d)", int(t)))
}

func typeOf(rt kexec.RangeType) Type {
	switch rt {
	case kexec.RangeRAM:
		return SystemRAM
	case rangePersistent:
		return Persistent
	case kexec.RangeReserved:
		return Reserved
	}
	return Unknown
}

func (t Type) String() string {
	return t.rangeType().String()
}

// Segment is an inclusive physical address range [Start, End].
type Segment struct {
	Start, End uint64
	Type       Type
}

// Size returns the number of bytes covered by s, saturating at the size of
// the address space.
func (s Segment) Size() uint64 {
	if n := s.End - s.Start; n != ^uint64(0) {
		return n + 1
	}
	return ^uint64(0)
}

func (s Segment) String() string {
	return fmt.Sprintf("%#016x-%#016x %s", s.Start, s.End, s.Type)
}

// LastAddr is the highest address the view can hold. Ranges reaching past it
// are clipped.
const LastAddr = uint64(kexec.MaxAddr) - 1

// Avail is the available-memory view. The zero value is empty and ready to
// use. It is not safe for concurrent use.
type Avail struct {
	mm kexec.MemoryMap
}

func toSegment(tr kexec.TypedRange) Segment {
	return Segment{Start: uint64(tr.Start), End: uint64(tr.Last()), Type: typeOf(tr.Type)}
}

// toRange converts the inclusive [start, end] to a kexec range.
func toRange(start, end uint64) (kexec.Range, bool) {
	if end < start || start > LastAddr {
		return kexec.Range{}, false
	}
	if end > LastAddr {
		end = LastAddr
	}
	return kexec.RangeFromInclusiveInterval(uintptr(start), uintptr(end)), true
}

// Segments returns a copy of the segments in address order.
func (a *Avail) Segments() []Segment {
	segs := make([]Segment, 0, len(a.mm))
	for _, tr := range a.mm {
		segs = append(segs, toSegment(tr))
	}
	if len(segs) == 0 {
		return nil
	}
	return segs
}

// Len returns the number of segments.
func (a *Avail) Len() int {
	return len(a.mm)
}

// Add records [start, end] as type t. Any part of an existing segment that
// overlaps the new range is replaced, and neighbours of the same type are
// coalesced.
func (a *Avail) Add(start, end uint64, t Type) {
	r, ok := toRange(start, end)
	if !ok {
		glog.V(2).Infof("Ignoring memory range %#x-%#x", start, end)
		return
	}
	a.mm.Insert(kexec.TypedRange{Range: r, Type: t.rangeType()})
	a.coalesce()
}

// Remove drops [start, end] from the view.
func (a *Avail) Remove(start, end uint64) {
	r, ok := toRange(start, end)
	if !ok {
		return
	}
	var mm kexec.MemoryMap
	for _, tr := range a.mm {
		for _, left := range tr.Range.Minus(r) {
			mm = append(mm, kexec.TypedRange{Range: left, Type: tr.Type})
		}
	}
	a.mm = mm
}

// coalesce merges neighbours of the same type. The map is kept sorted by
// Insert.
func (a *Avail) coalesce() {
	if len(a.mm) < 2 {
		return
	}
	out := a.mm[:1]
	for _, tr := range a.mm[1:] {
		last := &out[len(out)-1]
		if last.Type == tr.Type && last.End() == tr.Start {
			last.Size += tr.Size
			continue
		}
		out = append(out, tr)
	}
	a.mm = out
}

// FirstAvail returns the lowest address s, aligned to align, of a segment of
// type t such that [s, s+minSize) lies within that segment. It returns 0 if
// there is no such segment. align must be a power of two, or 0 for none.
func (a *Avail) FirstAvail(align, minSize uint64, t Type) uint64 {
	for i, tr := range a.mm {
		seg := toSegment(tr)
		if seg.Type != t {
			continue
		}
		s, ok := roundUp(seg.Start, align)
		if !ok || s > seg.End {
			continue
		}
		if minSize == 0 || seg.End-s >= minSize-1 {
			glog.Infof("Found a big enough hole in seg %d at %#x (%#x-%#x)", i, s, seg.Start, seg.End)
			return s
		}
	}
	return 0
}

// Total returns the number of bytes of type t in the view, saturating at the
// size of the address space.
func (a *Avail) Total(t Type) uint64 {
	var n uint64
	for _, r := range a.mm.FilterByType(t.rangeType()) {
		sz := uint64(r.Size)
		if n+sz < n {
			return ^uint64(0)
		}
		n += sz
	}
	return n
}

// Print logs every segment of the view.
func (a *Avail) Print() {
	glog.Infof("Available memory: %d segments", len(a.mm))
	for i, tr := range a.mm {
		glog.Infof("  %2d: %v", i, toSegment(tr))
	}
	glog.Infof("System RAM: %d MiB", a.Total(SystemRAM)>>20)
}

func roundUp(v, align uint64) (uint64, bool) {
	if align <= 1 {
		return v, true
	}
	r := (v + align - 1) &^ (align - 1)
	return r, r >= v
}
