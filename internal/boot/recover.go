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
	"io/fs"

	"github.com/golang/glog"
	"github.com/google/kboot/internal/efi"
	"github.com/google/kboot/internal/fdt"
)

// Properties the host kernel's EFI stub leaves under /chosen.
const (
	chosenPath      = "/chosen"
	propSystemTable = "linux,uefi-system-table"
	propDescVersion = "linux,uefi-mmap-desc-ver"
	propDescSize    = "linux,uefi-mmap-desc-size"
	propMapSize     = "linux,uefi-mmap-size"
	propMapStart    = "linux,uefi-mmap-start"
)

// Reason says why the firmware map could not be recovered.
type Reason int

const (
	// SourceUnavailable means the device tree could not be read.
	SourceUnavailable Reason = iota + 1
	// MalformedProperty means the device tree lacks a usable /chosen node or
	// one of its UEFI properties.
	MalformedProperty
	// AllocationFailed means a buffer could not be allocated.
	AllocationFailed
)

func (r Reason) String() string {
	switch r {
	case SourceUnavailable:
		return "source unavailable"
	case MalformedProperty:
		return "malformed property"
	case AllocationFailed:
		return "allocation failed"
	}
	return fmt.Sprintf("Reason(%d)", int(r))
}

// RecoveryError is returned by RecoverFirmwareMap.
type RecoveryError struct {
	Reason Reason
	Err    error
}

func (e *RecoveryError) Error() string {
	return fmt.Sprintf("%v: %v", e.Reason, e.Err)
}

func (e *RecoveryError) Unwrap() error {
	return e.Err
}

func recoveryErr(r Reason, format string, args ...interface{}) error {
	return &RecoveryError{Reason: r, Err: fmt.Errorf(format, args...)}
}

// ReasonOf returns the Reason carried by err, or 0 if err is not a
// RecoveryError.
func ReasonOf(err error) Reason {
	var re *RecoveryError
	if errors.As(err, &re) {
		return re.Reason
	}
	return 0
}

// Limits bound the allocations made while recovering the map.
type Limits struct {
	// MaxBlobSize is the largest device tree we will read.
	MaxBlobSize uint64
	// MaxMapSize is the largest memory map we will stage.
	MaxMapSize uint64
}

// DefaultLimits are generous for any real machine.
var DefaultLimits = Limits{
	MaxBlobSize: 16 << 20,
	MaxMapSize:  16 << 20,
}

// FirmwareMap is what RecoverFirmwareMap pulls out of the device tree.
type FirmwareMap struct {
	// SystemTable is the physical address of the UEFI system table.
	SystemTable uint64
	// MapSource is the physical address of the firmware's memory map. We
	// usually cannot read it from here.
	MapSource uint64
	// Map is a staged copy of the map, header filled in and descriptor slots
	// zeroed, for the next stage to populate from MapSource.
	Map *efi.ReservedMap
}

// RecoverFirmwareMap reads the host's flattened device tree from f and
// builds a staged UEFI memory map from the parameters under /chosen.
//
// It either returns a complete FirmwareMap or a *RecoveryError, never
// anything in between.
func RecoverFirmwareMap(f fs.File, lim Limits) (*FirmwareMap, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, recoveryErr(SourceUnavailable, "stat: %w", err)
	}
	sz := st.Size()
	if sz < 0 || uint64(sz) > lim.MaxBlobSize {
		return nil, recoveryErr(AllocationFailed, "device tree size %d exceeds limit %d", sz, lim.MaxBlobSize)
	}

	p, err := readParams(f, sz)
	if err != nil {
		return nil, err
	}
	glog.Infof("UEFI MMAP: Ver %d Ent Size %d Tot Size %d PA %#x", p.ver, p.esz, p.sz, p.mmapPA)

	// We have no way to read the physical memory the firmware map lives in,
	// so stage an empty map of the right shape. Early boot in the next stage
	// copies the real descriptors from MapSource into it.
	if uint64(p.sz) > lim.MaxMapSize {
		return nil, recoveryErr(AllocationFailed, "memory map size %d exceeds limit %d", p.sz, lim.MaxMapSize)
	}
	return &FirmwareMap{
		SystemTable: p.systbl,
		MapSource:   p.mmapPA,
		Map:         efi.NewReservedMap(uint64(p.sz), uint64(p.esz), p.ver),
	}, nil
}

type uefiParams struct {
	systbl       uint64
	ver, esz, sz uint32
	mmapPA       uint64
}

// readParams reads the blob and extracts the /chosen UEFI properties. The
// raw blob does not outlive this call.
func readParams(f io.Reader, sz int64) (*uefiParams, error) {
	buf := make([]byte, sz)
	// This is sysfs, so the size from stat need not match what a read
	// returns. Anything short is left for the parser to reject.
	n, err := io.ReadFull(f, buf)
	if n <= 0 {
		if err == nil || err == io.EOF {
			err = errors.New("empty device tree")
		}
		return nil, recoveryErr(SourceUnavailable, "read: %w", err)
	}
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, recoveryErr(SourceUnavailable, "read: %w", err)
	}

	tree, err := fdt.Parse(buf[:n])
	if err != nil {
		return nil, recoveryErr(MalformedProperty, "%w", err)
	}
	chosen, err := tree.PathOffset(chosenPath)
	if err != nil {
		return nil, recoveryErr(MalformedProperty, "%w", err)
	}

	var p uefiParams
	if p.systbl, err = fdt.Uint64(chosen, propSystemTable); err != nil {
		return nil, recoveryErr(MalformedProperty, "%w", err)
	}
	if p.ver, err = fdt.Uint32(chosen, propDescVersion); err != nil {
		return nil, recoveryErr(MalformedProperty, "%w", err)
	}
	if p.esz, err = fdt.Uint32(chosen, propDescSize); err != nil {
		return nil, recoveryErr(MalformedProperty, "%w", err)
	}
	if p.sz, err = fdt.Uint32(chosen, propMapSize); err != nil {
		return nil, recoveryErr(MalformedProperty, "%w", err)
	}
	if p.mmapPA, err = fdt.Uint64(chosen, propMapStart); err != nil {
		return nil, recoveryErr(MalformedProperty, "%w", err)
	}
	return &p, nil
}
