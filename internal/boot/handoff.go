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
	"io"

	"github.com/golang/glog"
	"github.com/google/kboot/internal/efi"
	"github.com/google/kboot/internal/memmap"
)

var (
	// ErrNoStagedMap is returned when an operation needs the UEFI memory map
	// but none was recovered.
	ErrNoStagedMap = errors.New("no staged UEFI memory map")
	// ErrNoLoadSegment is returned when the load segment has not been chosen.
	ErrNoLoadSegment = errors.New("load segment not chosen")
	// ErrNoHandoff is returned when the handoff has not been planned.
	ErrNoHandoff = errors.New("handoff not planned")
)

// PlanHandoff places the staged memory map on the first page boundary after
// a kernel of kernelSize bytes at the load segment, and publishes that as the
// map's destination.
func (c *Context) PlanHandoff(kernelSize uint64) (uint64, error) {
	m := c.StagedMap()
	if m == nil {
		return 0, ErrNoStagedMap
	}
	base, ok := c.loadSegment.Get()
	if !ok {
		return 0, ErrNoLoadSegment
	}
	end := base + kernelSize
	dst := (end + efi.PageSize - 1) &^ (efi.PageSize - 1)
	if end < base || dst < end {
		return 0, fmt.Errorf("kernel of %#x bytes at %#x overflows", kernelSize, base)
	}
	if err := c.mapDest.Set(dst); err != nil {
		return 0, fmt.Errorf("map destination: %w", err)
	}
	glog.Infof("UEFI memory map (%d bytes) will be handed off at %#x", m.Len(), dst)
	return dst, nil
}

// ReserveHandoff removes the memory PlanHandoff laid out, from the load
// segment to the end of the staged map, from a.
func (c *Context) ReserveHandoff(a *memmap.Avail) error {
	m := c.StagedMap()
	if m == nil {
		return ErrNoStagedMap
	}
	base, ok := c.loadSegment.Get()
	if !ok {
		return ErrNoLoadSegment
	}
	dst, ok := c.mapDest.Get()
	if !ok {
		return ErrNoHandoff
	}
	last := dst + uint64(m.Len()) - 1
	if last < dst {
		return fmt.Errorf("memory map of %d bytes at %#x overflows", m.Len(), dst)
	}
	a.Remove(base, last)
	glog.Infof("Reserved %#x-%#x for the next stage", base, last)
	return nil
}

// PopulateDescriptors copies the firmware's memory map into the staged map
// from devmem, a reader over physical memory, and adds each descriptor to a.
//
// Hosts commonly forbid reading the map this way; a failure leaves both the
// staged map and a unchanged.
func PopulateDescriptors(c *Context, devmem io.ReaderAt, a *memmap.Avail) error {
	m := c.StagedMap()
	if m == nil {
		return ErrNoStagedMap
	}
	src, _ := c.MapSource()
	if err := m.Fill(devmem, src); err != nil {
		return fmt.Errorf("failed to read UEFI memory map: %w", err)
	}
	ds, err := m.Descriptors()
	if err != nil {
		// Put the slots back as we found them.
		clear(m.Slots())
		return fmt.Errorf("failed to decode UEFI memory map: %w", err)
	}
	for _, d := range ds {
		if d.NumberOfPages == 0 {
			continue
		}
		glog.V(1).Infof("UEFI: %v", d)
		a.Add(d.PhysicalStart, d.PhysicalEnd(), d.Type.Class())
	}
	glog.Infof("Added %d UEFI memory descriptors", len(ds))
	return nil
}
