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

package efi

import (
	"encoding/binary"
	"fmt"

	"github.com/google/kboot/internal/memmap"
)

const (
	// PageSize is the UEFI page size in bytes.
	PageSize = 4096
	// DescriptorLen is the encoded size of a version 1 descriptor. Firmware
	// may use a larger stride.
	DescriptorLen = 40
	// DescriptorVersion is the only descriptor format we understand.
	DescriptorVersion = 1
)

// MemoryType is EFI_MEMORY_TYPE.
type MemoryType uint32

// Memory types, numbered as firmware reports them.
const (
	ReservedMemoryType MemoryType = iota
	LoaderCode
	LoaderData
	BootServicesCode
	BootServicesData
	RuntimeServicesCode
	RuntimeServicesData
	ConventionalMemory
	UnusableMemory
	ACPIReclaimMemory
	ACPIMemoryNVS
	MemoryMappedIO
	MemoryMappedIOPortSpace
	PalCode
	PersistentMemory
)

var typeNames = [...]string{
	"Reserved",
	"LoaderCode",
	"LoaderData",
	"BootServicesCode",
	"BootServicesData",
	"RuntimeServicesCode",
	"RuntimeServicesData",
	"ConventionalMemory",
	"UnusableMemory",
	"ACPIReclaimMemory",
	"ACPIMemoryNVS",
	"MemoryMappedIO",
	"MemoryMappedIOPortSpace",
	"PalCode",
	"PersistentMemory",
}

func (t MemoryType) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("MemoryType(%#x)", uint32(t))
}

// Class returns how the boot loader may treat memory of type t once boot
// services have exited.
func (t MemoryType) Class() memmap.Type {
	switch t {
	case LoaderCode, LoaderData, BootServicesCode, BootServicesData, ConventionalMemory:
		return memmap.SystemRAM
	case PersistentMemory:
		return memmap.Persistent
	}
	return memmap.Reserved
}

// Descriptor is EFI_MEMORY_DESCRIPTOR.
type Descriptor struct {
	Type          MemoryType
	PhysicalStart uint64
	VirtualStart  uint64
	NumberOfPages uint64
	Attribute     uint64
}

// PhysicalEnd returns the last byte covered by d.
func (d Descriptor) PhysicalEnd() uint64 {
	return d.PhysicalStart + d.NumberOfPages*PageSize - 1
}

// MarshalBinary implements the encoding.BinaryMarshaler interface.
func (d Descriptor) MarshalBinary() ([]byte, error) {
	b := make([]byte, DescriptorLen)
	binary.LittleEndian.PutUint32(b[0:], uint32(d.Type))
	binary.LittleEndian.PutUint64(b[8:], d.PhysicalStart)
	binary.LittleEndian.PutUint64(b[16:], d.VirtualStart)
	binary.LittleEndian.PutUint64(b[24:], d.NumberOfPages)
	binary.LittleEndian.PutUint64(b[32:], d.Attribute)
	return b, nil
}

// UnmarshalBinary implements the encoding.BinaryUnmarshaler interface.
// Bytes past DescriptorLen are ignored.
func (d *Descriptor) UnmarshalBinary(b []byte) error {
	if len(b) < DescriptorLen {
		return fmt.Errorf("got %d bytes, want at least %d", len(b), DescriptorLen)
	}
	d.Type = MemoryType(binary.LittleEndian.Uint32(b[0:]))
	d.PhysicalStart = binary.LittleEndian.Uint64(b[8:])
	d.VirtualStart = binary.LittleEndian.Uint64(b[16:])
	d.NumberOfPages = binary.LittleEndian.Uint64(b[24:])
	d.Attribute = binary.LittleEndian.Uint64(b[32:])
	return nil
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%-24v %#016x-%#016x attr %#x", d.Type, d.PhysicalStart, d.PhysicalEnd(), d.Attribute)
}
