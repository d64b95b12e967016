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

// Package boot discovers the physical memory layout of the machine kboot is
// running on and picks where the next stage kernel goes.
//
// Everything the next stage needs to know is published into a Context, whose
// fields are written at most once per boot attempt.
package boot

import (
	"errors"
	"fmt"

	"github.com/google/kboot/internal/efi"
)

// ErrAlreadySet is returned when a Context value is published twice.
var ErrAlreadySet = errors.New("already set")

// once holds a value that may be assigned a single time.
type once[T any] struct {
	v   T
	set bool
}

func (o *once[T]) Set(v T) error {
	if o.set {
		return ErrAlreadySet
	}
	o.v, o.set = v, true
	return nil
}

func (o *once[T]) Get() (T, bool) {
	return o.v, o.set
}

// Context is the boot-time bookkeeping shared by the memory discovery steps
// and read by whatever hands off to the next stage. It is not safe for
// concurrent use.
type Context struct {
	policy LoadPolicy

	systemTable once[uint64]
	mapSource   once[uint64]
	mapDest     once[uint64]
	stagedMap   once[*efi.ReservedMap]

	loadSegment  once[uint64]
	loadFallback bool
}

// NewContext returns an empty Context which will place the kernel according
// to p.
func NewContext(p LoadPolicy) *Context {
	return &Context{policy: p}
}

// SystemTable returns the physical address of the UEFI system table.
func (c *Context) SystemTable() (uint64, bool) {
	return c.systemTable.Get()
}

// MapSource returns the physical address of the firmware's own memory map.
func (c *Context) MapSource() (uint64, bool) {
	return c.mapSource.Get()
}

// MapDest returns the physical address the staged map will occupy once it is
// handed to the next stage.
func (c *Context) MapDest() (uint64, bool) {
	return c.mapDest.Get()
}

// StagedMap returns the staged UEFI memory map, or nil if none was recovered.
func (c *Context) StagedMap() *efi.ReservedMap {
	m, _ := c.stagedMap.Get()
	return m
}

// publishFirmwareMap records a recovered map. Either every value is
// published or, if any was already set, none is.
func (c *Context) publishFirmwareMap(fm *FirmwareMap) error {
	if c.systemTable.set || c.mapSource.set || c.stagedMap.set {
		return fmt.Errorf("firmware map: %w", ErrAlreadySet)
	}
	c.systemTable.Set(fm.SystemTable)
	c.mapSource.Set(fm.MapSource)
	c.stagedMap.Set(fm.Map)
	return nil
}
