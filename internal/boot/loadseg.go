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

package boot

import (
	"errors"
	"fmt"

	"github.com/golang/glog"
	"github.com/google/kboot/internal/memmap"
)

const (
	// HoleSize is how much contiguous RAM the next stage needs at its load
	// address.
	HoleSize = 64 << 20
	// KernelAlign is the required alignment of the load address.
	KernelAlign = 2 << 20
	// FallbackLoadSegment is used when no RAM segment fits. RAM on QEMU's
	// arm64 virt machine starts at 0x40000000.
	FallbackLoadSegment = 0x40000000 | 0x4200000
)

// Allocator answers "first address of type t, aligned to align, with at least
// minSize bytes after it", or 0 if there is none.
type Allocator interface {
	FirstAvail(align, minSize uint64, t memmap.Type) uint64
}

// LoadPolicy says where the next stage kernel may be placed.
type LoadPolicy struct {
	HoleSize uint64
	Align    uint64
	Fallback uint64
}

// DefaultLoadPolicy places the kernel on a 2MiB boundary in at least 64MiB
// of RAM.
var DefaultLoadPolicy = LoadPolicy{
	HoleSize: HoleSize,
	Align:    KernelAlign,
	Fallback: FallbackLoadSegment,
}

// Validate checks that p is usable.
func (p LoadPolicy) Validate() error {
	if p.HoleSize == 0 {
		return errors.New("hole size must be nonzero")
	}
	if p.Align == 0 || p.Align&(p.Align-1) != 0 {
		return fmt.Errorf("alignment %#x is not a power of two", p.Align)
	}
	if p.Fallback == 0 || p.Fallback&(p.Align-1) != 0 {
		return fmt.Errorf("fallback %#x is not aligned to %#x", p.Fallback, p.Align)
	}
	return nil
}

// LoadSegment returns the physical address the next stage kernel will be
// loaded at. The first call asks a for a suitable RAM segment; later calls
// return the same address without asking again.
func (c *Context) LoadSegment(a Allocator) uint64 {
	if s, ok := c.loadSegment.Get(); ok {
		return s
	}
	s := a.FirstAvail(c.policy.Align, c.policy.HoleSize, memmap.SystemRAM)
	if s == 0 {
		// Should never get here: it means the memory map is broken.
		s = c.policy.Fallback
		c.loadFallback = true
		glog.Errorf("Falling back to crazy address %#x", s)
	}
	c.loadSegment.Set(s)
	return s
}

// LoadSegmentFallback reports whether LoadSegment had to use the fallback
// address.
func (c *Context) LoadSegmentFallback() bool {
	return c.loadFallback
}
