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
	"io/fs"

	"github.com/golang/glog"
)

// DefaultFDTPath is where Linux exposes the device tree it was booted with,
// relative to the host root.
const DefaultFDTPath = "sys/firmware/fdt"

// Enumerator fills in the available-memory view from a coarse, always
// present source such as /proc/iomem.
type Enumerator interface {
	// Populate adds what the source describes to the view.
	Populate() error
	// Print logs the resulting view.
	Print()
}

// EnumerateOptions configures Enumerate.
type EnumerateOptions struct {
	// FDTPath is the device tree file within the host filesystem;
	// DefaultFDTPath if empty.
	FDTPath string
	// Limits bound the recovery allocations; DefaultLimits if zero.
	Limits Limits
}

// Enumerate builds the best description of installed RAM the host allows.
//
// It first tries to recover the UEFI memory map parameters from the host's
// device tree and publishes them into c. Whether or not that works, e is
// then asked to populate the view: we can't generally read the firmware map
// itself from here, so the coarse listing is what the rest of kboot relies
// on. A failure of either source degrades the result but is not an error.
// If c already holds a firmware map, that map is kept.
func Enumerate(c *Context, host fs.FS, e Enumerator, opts EnumerateOptions) {
	p := opts.FDTPath
	if p == "" {
		p = DefaultFDTPath
	}
	lim := opts.Limits
	if lim == (Limits{}) {
		lim = DefaultLimits
	}

	var fm *FirmwareMap
	f, err := host.Open(p)
	if err != nil {
		glog.Infof("No device tree at %q: %v", p, err)
	} else {
		fm, err = RecoverFirmwareMap(f, lim)
		f.Close()
		switch {
		case err == nil:
		case ReasonOf(err) == SourceUnavailable:
			glog.Infof("Failed to read device tree %q: %v", p, err)
		default:
			glog.Warningf("Failed to recover UEFI memory map from %q: %v", p, err)
		}
	}
	if fm == nil {
		glog.Warning("Could not obtain UEFI memory tables, expect failure")
	} else if err := c.publishFirmwareMap(fm); err != nil {
		glog.Warningf("Keeping the UEFI memory map recovered earlier: %v", err)
	}

	if err := e.Populate(); err != nil {
		glog.Warningf("Failed to populate available memory: %v", err)
	}
	e.Print()
}
