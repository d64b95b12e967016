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

package boot_test

//go:generate mockgen -write_package_comment=false -self_package github.com/google/kboot/internal/boot_test -package boot_test -destination mock_boot_test.go github.com/google/kboot/internal/boot Allocator,Enumerator

import (
	"errors"
	"testing"
	"testing/fstest"

	"github.com/golang/glog"
	"github.com/golang/mock/gomock"
	"github.com/google/kboot/internal/boot"
	"github.com/google/kboot/internal/fdt/testonly"
	"github.com/google/kboot/internal/memmap"
)

func TestEnumerate(t *testing.T) {
	for _, test := range []struct {
		desc        string
		host        fstest.MapFS
		fdtPath     string
		populateErr error
		wantMap     bool

		// wantWarnings counts glog warnings: one for a device tree that is
		// present but unusable, one for having no map, one for Populate.
		wantWarnings int64
	}{
		{
			desc:    "uefi host",
			host:    fstest.MapFS{"sys/firmware/fdt": {Data: testonly.UEFIBlob(t, testParams)}},
			wantMap: true,
		}, {
			desc:    "custom path",
			host:    fstest.MapFS{"boot/host.dtb": {Data: testonly.UEFIBlob(t, testParams)}},
			fdtPath: "boot/host.dtb",
			wantMap: true,
		}, {
			desc:         "uefi host, enumerator fails",
			host:         fstest.MapFS{"sys/firmware/fdt": {Data: testonly.UEFIBlob(t, testParams)}},
			populateErr:  errors.New("no iomem"),
			wantMap:      true,
			wantWarnings: 1,
		}, {
			desc:         "no device tree",
			host:         fstest.MapFS{},
			wantWarnings: 1,
		}, {
			desc:         "no device tree, enumerator fails",
			host:         fstest.MapFS{},
			populateErr:  errors.New("no iomem"),
			wantWarnings: 2,
		}, {
			desc:         "empty device tree",
			host:         fstest.MapFS{"sys/firmware/fdt": {Data: []byte{}}},
			wantWarnings: 1,
		}, {
			desc:         "device tree without uefi",
			host:         fstest.MapFS{"sys/firmware/fdt": {Data: testonly.UEFIBlob(t, testParams, testonly.PropMapStart)}},
			wantWarnings: 2,
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			e := NewMockEnumerator(ctrl)
			gomock.InOrder(
				e.EXPECT().Populate().Return(test.populateErr).Times(1),
				e.EXPECT().Print().Times(1),
			)

			warnings := glog.Stats.Warning.Lines()
			c := boot.NewContext(boot.DefaultLoadPolicy)
			boot.Enumerate(c, test.host, e, boot.EnumerateOptions{FDTPath: test.fdtPath})
			if got := glog.Stats.Warning.Lines() - warnings; got != test.wantWarnings {
				t.Errorf("logged %d warnings, want %d", got, test.wantWarnings)
			}

			st, stOK := c.SystemTable()
			src, srcOK := c.MapSource()
			m := c.StagedMap()
			if !test.wantMap {
				if stOK || srcOK || m != nil {
					t.Errorf("Enumerate published state on failure: systbl %#x/%v, src %#x/%v, map %v", st, stOK, src, srcOK, m)
				}
				return
			}
			if !stOK || st != testParams.SystemTable {
				t.Errorf("SystemTable() = %#x, %v, want %#x", st, stOK, testParams.SystemTable)
			}
			if !srcOK || src != testParams.MapStart {
				t.Errorf("MapSource() = %#x, %v, want %#x", src, srcOK, testParams.MapStart)
			}
			if m == nil {
				t.Fatal("StagedMap() = nil")
			}
			if got := m.Header().MemorySize; got != uint64(testParams.MapSize) {
				t.Errorf("StagedMap().Header().MemorySize = %d, want %d", got, testParams.MapSize)
			}
			if _, ok := c.MapDest(); ok {
				t.Error("MapDest() set before handoff was planned")
			}
		})
	}
}

func TestEnumerateTwice(t *testing.T) {
	host := fstest.MapFS{"sys/firmware/fdt": {Data: testonly.UEFIBlob(t, testParams)}}
	ctrl := gomock.NewController(t)
	e := NewMockEnumerator(ctrl)
	e.EXPECT().Populate().Return(nil).Times(2)
	e.EXPECT().Print().Times(2)

	c := boot.NewContext(boot.DefaultLoadPolicy)
	boot.Enumerate(c, host, e, boot.EnumerateOptions{})
	first := c.StagedMap()

	other := testParams
	other.SystemTable = 0x1000
	other.MapSize = 48
	boot.Enumerate(c, fstest.MapFS{"sys/firmware/fdt": {Data: testonly.UEFIBlob(t, other)}}, e, boot.EnumerateOptions{})
	if c.StagedMap() != first {
		t.Error("second Enumerate replaced the staged map")
	}
	if st, _ := c.SystemTable(); st != testParams.SystemTable {
		t.Errorf("SystemTable() = %#x after second Enumerate, want %#x", st, testParams.SystemTable)
	}
}

func TestEnumerateWithIOMem(t *testing.T) {
	host := fstest.MapFS{
		"sys/firmware/fdt": {Data: testonly.UEFIBlob(t, testParams)},
		"proc/iomem": {Data: []byte(
			"40000000-bbd3ffff : System RAM\n" +
				"  40210000-415bffff : Kernel code\n" +
				"bbd40000-bbf0ffff : Reserved\n" +
				"bbf10000-bfffffff : System RAM\n")},
	}
	a := &memmap.Avail{}
	c := boot.NewContext(boot.DefaultLoadPolicy)
	boot.Enumerate(c, host, &memmap.IOMem{FS: host, Avail: a}, boot.EnumerateOptions{})
	if got, want := a.Len(), 3; got != want {
		t.Errorf("Avail has %d segments, want %d", got, want)
	}
	if got, want := c.LoadSegment(a), uint64(0x40000000); got != want {
		t.Errorf("LoadSegment() = %#x, want %#x", got, want)
	}
	if c.LoadSegmentFallback() {
		t.Error("LoadSegmentFallback() = true, want false")
	}
}
