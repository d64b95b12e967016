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

// Package fdt provides the small set of flattened device tree queries needed
// to pull boot parameters out of a host-supplied blob: find a node by path,
// fetch a named property, and decode big-endian cells to host integers.
package fdt

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/u-root/u-root/pkg/dt"
)

// ErrNotFound is returned when a node or property does not exist.
var ErrNotFound = errors.New("not found")

// Tree is a parsed flattened device tree.
type Tree struct {
	fdt *dt.FDT
}

// Parse decodes a flattened device tree blob.
//
// The returned Tree does not reference buf, so the caller may drop the raw
// blob as soon as Parse returns.
func Parse(buf []byte) (*Tree, error) {
	if len(buf) == 0 {
		return nil, errors.New("empty device tree blob")
	}
	f, err := dt.ReadFDT(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("failed to parse device tree: %w", err)
	}
	if f.RootNode == nil {
		return nil, errors.New("device tree has no root node")
	}
	return &Tree{fdt: f}, nil
}

// PathOffset returns the node at the given absolute path, e.g. "/chosen".
//
// As with libfdt, a path component without a unit address matches a node
// whose name carries one ("memory" matches "memory@80000000").
func (t *Tree) PathOffset(path string) (*dt.Node, error) {
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("path %q is not absolute", path)
	}
	n := t.fdt.RootNode
	for _, c := range strings.Split(strings.Trim(path, "/"), "/") {
		if c == "" {
			continue
		}
		next := child(n, c)
		if next == nil {
			return nil, fmt.Errorf("node %q: %w", path, ErrNotFound)
		}
		n = next
	}
	return n, nil
}

func child(n *dt.Node, name string) *dt.Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	if strings.Contains(name, "@") {
		return nil
	}
	for _, c := range n.Children {
		if i := strings.IndexByte(c.Name, '@'); i >= 0 && c.Name[:i] == name {
			return c
		}
	}
	return nil
}

// lookup finds the named property of n.
func lookup(n *dt.Node, name string) (*dt.Property, error) {
	if n == nil {
		return nil, fmt.Errorf("property %q: nil node", name)
	}
	p, ok := n.LookProperty(name)
	if !ok {
		return nil, fmt.Errorf("property %q: %w", name, ErrNotFound)
	}
	return p, nil
}

// Property returns the raw value of the named property of n.
func Property(n *dt.Node, name string) ([]byte, error) {
	p, err := lookup(n, name)
	if err != nil {
		return nil, err
	}
	return p.Value, nil
}

// Uint32 returns the named property of n, which must be exactly one
// big-endian 32-bit cell.
func Uint32(n *dt.Node, name string) (uint32, error) {
	p, err := lookup(n, name)
	if err != nil {
		return 0, err
	}
	return p.AsU32()
}

// Uint64 returns the named property of n, which must be exactly two
// big-endian 32-bit cells.
func Uint64(n *dt.Node, name string) (uint64, error) {
	p, err := lookup(n, name)
	if err != nil {
		return 0, err
	}
	return p.AsU64()
}
