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

// Package efi describes the UEFI memory map as it is handed to the next
// stage kernel: a small header followed by an array of firmware memory
// descriptors.
package efi

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// HeaderSize is the encoded size of MapHeader: two 64-bit fields and a
	// 32-bit field, padded to 8 bytes.
	HeaderSize = 24
	// PaddedHeaderSize is the offset of the first descriptor slot.
	PaddedHeaderSize = (HeaderSize + 0xf) &^ 0xf
)

// ErrShortMap is returned when a descriptor source yields fewer bytes than
// the map declares.
var ErrShortMap = errors.New("short memory map")

// MapHeader precedes the descriptor array. It is encoded little-endian in
// HeaderSize bytes, the last four of which are padding.
type MapHeader struct {
	MemorySize        uint64
	DescriptorSize    uint64
	DescriptorVersion uint32
}

// ReservedMap is a UEFI memory map staged for the next boot stage.
//
// When the real map cannot be read from physical memory yet, the slots are
// left zeroed and the next stage copies the descriptors in once it can reach
// the map's physical source address.
type ReservedMap struct {
	// buf holds the encoded header followed by the descriptor slots.
	buf []byte
}

// NewReservedMap allocates a map with room for memorySize bytes of
// descriptors. The sizes are recorded as given: they come from firmware and
// are not re-derived.
func NewReservedMap(memorySize, descriptorSize uint64, version uint32) *ReservedMap {
	m := &ReservedMap{buf: make([]byte, PaddedHeaderSize+memorySize)}
	m.setHeader(MapHeader{
		MemorySize:        memorySize,
		DescriptorSize:    descriptorSize,
		DescriptorVersion: version,
	})
	return m
}

func (m *ReservedMap) setHeader(h MapHeader) {
	binary.LittleEndian.PutUint64(m.buf[0:], h.MemorySize)
	binary.LittleEndian.PutUint64(m.buf[8:], h.DescriptorSize)
	binary.LittleEndian.PutUint32(m.buf[16:], h.DescriptorVersion)
}

// Header decodes the header view of the map.
func (m *ReservedMap) Header() MapHeader {
	return MapHeader{
		MemorySize:        binary.LittleEndian.Uint64(m.buf[0:]),
		DescriptorSize:    binary.LittleEndian.Uint64(m.buf[8:]),
		DescriptorVersion: binary.LittleEndian.Uint32(m.buf[16:]),
	}
}

// Slots returns the descriptor area. It aliases the map's storage.
func (m *ReservedMap) Slots() []byte {
	return m.buf[PaddedHeaderSize:]
}

// Bytes returns the whole encoded map, header first. It aliases the map's
// storage.
func (m *ReservedMap) Bytes() []byte {
	return m.buf
}

// Len is the total size of the map in bytes.
func (m *ReservedMap) Len() int {
	return len(m.buf)
}

// NumDescriptors is the number of descriptor slots the header declares.
func (m *ReservedMap) NumDescriptors() int {
	h := m.Header()
	if h.DescriptorSize == 0 {
		return 0
	}
	return int(h.MemorySize / h.DescriptorSize)
}

// Fill copies the real descriptors from r, where the map lives at offset pa
// (typically /dev/mem and the firmware map's physical address). The slots are
// left untouched on failure.
func (m *ReservedMap) Fill(r io.ReaderAt, pa uint64) error {
	if pa > uint64(1<<63-1) {
		return fmt.Errorf("physical address %#x out of range", pa)
	}
	tmp := make([]byte, len(m.Slots()))
	n, err := r.ReadAt(tmp, int64(pa))
	if n < len(tmp) {
		if err == nil || err == io.EOF {
			err = ErrShortMap
		}
		return fmt.Errorf("failed to read %d bytes at %#x: %w", len(tmp), pa, err)
	}
	copy(m.Slots(), tmp)
	return nil
}

// Descriptors decodes every slot of the map.
func (m *ReservedMap) Descriptors() ([]Descriptor, error) {
	h := m.Header()
	if h.MemorySize == 0 {
		return nil, nil
	}
	if h.DescriptorVersion != DescriptorVersion {
		return nil, fmt.Errorf("unsupported descriptor version %d", h.DescriptorVersion)
	}
	if h.DescriptorSize < DescriptorLen {
		return nil, fmt.Errorf("descriptor size %d smaller than %d", h.DescriptorSize, DescriptorLen)
	}
	slots := m.Slots()
	ds := make([]Descriptor, 0, m.NumDescriptors())
	for off := uint64(0); off+h.DescriptorSize <= uint64(len(slots)); off += h.DescriptorSize {
		var d Descriptor
		if err := d.UnmarshalBinary(slots[off : off+h.DescriptorSize]); err != nil {
			return nil, fmt.Errorf("descriptor at offset %d: %w", off, err)
		}
		ds = append(ds, d)
	}
	return ds, nil
}
