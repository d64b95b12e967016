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

import (
	"testing"

	"github.com/golang/glog"
	"github.com/golang/mock/gomock"
	"github.com/google/kboot/internal/boot"
	"github.com/google/kboot/internal/memmap"
)

func TestLoadSegment(t *testing.T) {
	for _, test := range []struct {
		desc         string
		avail        uint64
		want         uint64
		wantFallback bool
	}{
		{
			desc:  "allocator finds ram",
			avail: 0x80200000,
			want:  0x80200000,
		}, {
			desc:         "allocator finds nothing",
			avail:        0,
			want:         boot.FallbackLoadSegment,
			wantFallback: true,
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			a := NewMockAllocator(ctrl)
			a.EXPECT().
				FirstAvail(uint64(boot.KernelAlign), uint64(boot.HoleSize), memmap.SystemRAM).
				Return(test.avail).
				Times(1)

			errLines := glog.Stats.Error.Lines()
			c := boot.NewContext(boot.DefaultLoadPolicy)
			first := c.LoadSegment(a)
			if first != test.want {
				t.Errorf("LoadSegment() = %#x, want %#x", first, test.want)
			}
			// Memoized: the mock fails the test if it is asked again.
			if second := c.LoadSegment(a); second != first {
				t.Errorf("second LoadSegment() = %#x, want %#x", second, first)
			}
			if got := c.LoadSegmentFallback(); got != test.wantFallback {
				t.Errorf("LoadSegmentFallback() = %v, want %v", got, test.wantFallback)
			}
			// The fallback is reported once, on the call that chose it.
			wantLines := int64(0)
			if test.wantFallback {
				wantLines = 1
			}
			if got := glog.Stats.Error.Lines() - errLines; got != wantLines {
				t.Errorf("logged %d error lines, want %d", got, wantLines)
			}
		})
	}
}

func TestLoadSegmentPolicy(t *testing.T) {
	p := boot.LoadPolicy{HoleSize: 16 << 20, Align: 1 << 20, Fallback: 0x80000000}
	var a memmap.Avail
	a.Add(0x80000000, 0x80efffff, memmap.SystemRAM)
	a.Add(0x90080000, 0x91ffffff, memmap.SystemRAM)

	c := boot.NewContext(p)
	if got, want := c.LoadSegment(&a), uint64(0x90100000); got != want {
		t.Errorf("LoadSegment() = %#x, want %#x", got, want)
	}
}

func TestLoadPolicyValidate(t *testing.T) {
	for _, test := range []struct {
		desc    string
		p       boot.LoadPolicy
		wantErr bool
	}{
		{desc: "default", p: boot.DefaultLoadPolicy},
		{desc: "zero hole", p: boot.LoadPolicy{Align: 1 << 21, Fallback: 1 << 30}, wantErr: true},
		{desc: "zero align", p: boot.LoadPolicy{HoleSize: 1 << 26, Fallback: 1 << 30}, wantErr: true},
		{desc: "align not power of two", p: boot.LoadPolicy{HoleSize: 1 << 26, Align: 3 << 20, Fallback: 3 << 20}, wantErr: true},
		{desc: "unaligned fallback", p: boot.LoadPolicy{HoleSize: 1 << 26, Align: 1 << 21, Fallback: 0x40001000}, wantErr: true},
		{desc: "zero fallback", p: boot.LoadPolicy{HoleSize: 1 << 26, Align: 1 << 21}, wantErr: true},
	} {
		t.Run(test.desc, func(t *testing.T) {
			if err := test.p.Validate(); (err != nil) != test.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, test.wantErr)
			}
		})
	}
}
