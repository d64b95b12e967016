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

// Package testonly builds synthetic device tree blobs for tests.
package testonly

import (
	"bytes"
	"testing"

	"github.com/u-root/u-root/pkg/dt"
)

// UEFIParams are the values a host kernel publishes under /chosen when it
// was booted by UEFI firmware.
type UEFIParams struct {
	SystemTable uint64
	DescVersion uint32
	DescSize    uint32
	MapSize     uint32
	MapStart    uint64
}

// Property names under /chosen.
const (
	PropSystemTable = "linux,uefi-system-table"
	PropDescVersion = "linux,uefi-mmap-desc-ver"
	PropDescSize    = "linux,uefi-mmap-desc-size"
	PropMapSize     = "linux,uefi-mmap-size"
	PropMapStart    = "linux,uefi-mmap-start"
)

// ChosenProperties returns the /chosen properties for p, leaving out any
// property named in omit.
func ChosenProperties(p UEFIParams, omit ...string) []dt.Property {
	skip := make(map[string]bool)
	for _, o := range omit {
		skip[o] = true
	}
	var props []dt.Property
	for _, prop := range []dt.Property{
		{Name: "bootargs", Value: []byte("console=ttyAMA0\x00")},
		dt.PropertyU64(PropSystemTable, p.SystemTable),
		dt.PropertyU32(PropDescVersion, p.DescVersion),
		dt.PropertyU32(PropDescSize, p.DescSize),
		dt.PropertyU32(PropMapSize, p.MapSize),
		dt.PropertyU64(PropMapStart, p.MapStart),
	} {
		if !skip[prop.Name] {
			props = append(props, prop)
		}
	}
	return props
}

// Blob encodes a device tree whose root has the given children.
func Blob(t *testing.T, children ...*dt.Node) []byte {
	t.Helper()
	f := &dt.FDT{
		Header: dt.Header{
			Magic:           dt.Magic,
			Version:         17,
			LastCompVersion: 16,
		},
		RootNode: &dt.Node{
			Name: "",
			Properties: []dt.Property{
				dt.PropertyU32("#address-cells", 2),
				dt.PropertyU32("#size-cells", 2),
			},
			Children: children,
		},
	}
	var buf bytes.Buffer
	if _, err := f.Write(&buf); err != nil {
		t.Fatalf("failed to encode device tree: %v", err)
	}
	return buf.Bytes()
}

// UEFIBlob encodes a device tree with a /chosen node carrying p, minus any
// property named in omit.
func UEFIBlob(t *testing.T, p UEFIParams, omit ...string) []byte {
	t.Helper()
	return Blob(t,
		&dt.Node{Name: "chosen", Properties: ChosenProperties(p, omit...)},
		&dt.Node{Name: "memory@40000000", Properties: []dt.Property{
			{Name: "device_type", Value: []byte("memory\x00")},
		}},
	)
}
