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

// kboot_mem discovers the physical memory layout of the host it runs on, the
// way kboot does before loading the next stage kernel, and prints where that
// kernel and its UEFI memory map would go.
//
// Usage:
//   go run ./cmd/kboot_mem/ --logtostderr --kernel_size=0x2000000
//
// Reading /proc/iomem with real addresses needs root. Pass --devmem=/dev/mem
// to also try reading the firmware memory map itself.
package main

import (
	"flag"

	"github.com/golang/glog"
	"github.com/google/kboot/cmd/kboot_mem/impl"
)

var (
	configFile = flag.String("config", "", "Path to a yaml config overriding the built-in defaults")
	hostRoot   = flag.String("host_root", "", "Directory the host's / is visible at")
	devMem     = flag.String("devmem", "", "Physical memory device to read the UEFI memory map from")
	kernelSize = flag.Uint64("kernel_size", 0, "Size in bytes of the next stage kernel image")
	mapOut     = flag.String("map_out", "", "File to write the staged UEFI memory map to")
)

func main() {
	flag.Parse()

	if err := impl.Main(impl.Opts{
		ConfigFile: *configFile,
		HostRoot:   *hostRoot,
		DevMem:     *devMem,
		KernelSize: *kernelSize,
		MapOut:     *mapOut,
	}); err != nil {
		glog.Exit(err.Error())
	}
}
