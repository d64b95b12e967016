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

// Package config holds the platform description kboot uses to find memory
// on the host: where the host files live and how the next stage kernel must
// be placed.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/google/kboot/internal/boot"
	"gopkg.in/yaml.v2"
)

//go:embed kboot.yaml
var defaultConfig []byte

// Config describes the host and the placement policy.
type Config struct {
	// HostRoot is the directory the host's "/" is visible at.
	HostRoot string `yaml:"HostRoot"`
	// FDTPath is the device tree file, relative to HostRoot.
	FDTPath string `yaml:"FDTPath"`
	// IOMemPath is the physical resource listing, relative to HostRoot.
	IOMemPath string `yaml:"IOMemPath"`
	// DevMem, if set, is a file giving access to physical memory, used to
	// read the firmware memory map directly.
	DevMem string `yaml:"DevMem"`

	HoleSize            uint64 `yaml:"HoleSize"`
	KernelAlign         uint64 `yaml:"KernelAlign"`
	FallbackLoadSegment uint64 `yaml:"FallbackLoadSegment"`

	MaxBlobSize uint64 `yaml:"MaxBlobSize"`
	MaxMapSize  uint64 `yaml:"MaxMapSize"`
}

// Default returns the built-in configuration.
func Default() (Config, error) {
	var c Config
	if err := yaml.UnmarshalStrict(defaultConfig, &c); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal default config: %w", err)
	}
	return c, nil
}

// Parse overlays the yaml in b onto the default configuration. Fields not
// mentioned in b keep their default values.
func Parse(b []byte) (Config, error) {
	c, err := Default()
	if err != nil {
		return Config{}, err
	}
	if err := yaml.UnmarshalStrict(b, &c); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return c, c.Validate()
}

// Load reads a configuration file, or returns the default configuration if
// p is empty.
func Load(p string) (Config, error) {
	if p == "" {
		c, err := Default()
		if err != nil {
			return Config{}, err
		}
		return c, c.Validate()
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %q: %w", p, err)
	}
	return Parse(b)
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	if c.HostRoot == "" {
		return errors.New("missing field: HostRoot")
	}
	for name, p := range map[string]string{"FDTPath": c.FDTPath, "IOMemPath": c.IOMemPath} {
		if p == "" {
			return fmt.Errorf("missing field: %s", name)
		}
		if !fs.ValidPath(p) {
			return fmt.Errorf("%s %q must be relative to HostRoot", name, p)
		}
	}
	if err := c.LoadPolicy().Validate(); err != nil {
		return fmt.Errorf("invalid load policy: %w", err)
	}
	if c.MaxBlobSize == 0 || c.MaxMapSize == 0 {
		return errors.New("MaxBlobSize and MaxMapSize must be nonzero")
	}
	return nil
}

// LoadPolicy returns the placement policy for the next stage kernel.
func (c Config) LoadPolicy() boot.LoadPolicy {
	return boot.LoadPolicy{
		HoleSize: c.HoleSize,
		Align:    c.KernelAlign,
		Fallback: c.FallbackLoadSegment,
	}
}

// EnumerateOptions returns the options for boot.Enumerate.
func (c Config) EnumerateOptions() boot.EnumerateOptions {
	return boot.EnumerateOptions{
		FDTPath: c.FDTPath,
		Limits: boot.Limits{
			MaxBlobSize: c.MaxBlobSize,
			MaxMapSize:  c.MaxMapSize,
		},
	}
}
