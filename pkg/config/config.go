// Copyright 2024 Chainguard, Inc.
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

// Package config loads the defaults file of the imager command line.
package config

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/amigatools/imager/pkg/fsops"
	"github.com/amigatools/imager/pkg/uaemeta"
)

// Configuration holds defaults for the filesystem commands. Flags given on
// the command line take precedence.
type Configuration struct {
	// UaeMetadata is the metadata mode: none, uaefsdb or uaemetafile.
	UaeMetadata uaemeta.Mode `yaml:"uae-metadata,omitempty"`
	Recursive   bool         `yaml:"recursive,omitempty"`
	MakeDir     bool         `yaml:"make-dir,omitempty"`
	Force       bool         `yaml:"force,omitempty"`
	// BufferSize is the copy buffer size, such as "1MiB".
	BufferSize string `yaml:"buffer-size,omitempty"`
	// HostReservedNames overrides whether the host reserves device names
	// such as AUX.
	HostReservedNames *bool  `yaml:"host-reserved-names,omitempty"`
	LogLevel          string `yaml:"log-level,omitempty"`
	// LogPolicy lists log targets: builtin:stderr, builtin:stdout,
	// builtin:discard or a file path.
	LogPolicy       []string `yaml:"log-policy,omitempty"`
	MetricsTextfile string   `yaml:"metrics-textfile,omitempty"`
}

// Load reads the configuration file at path.
func (c *Configuration) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read configuration file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse configuration: %w", err)
	}

	return c.Validate()
}

// Validate checks the values that are not checked while parsing.
func (c *Configuration) Validate() error {
	if _, err := c.bufferSize(); err != nil {
		return err
	}
	return nil
}

func (c *Configuration) bufferSize() (int, error) {
	if c.BufferSize == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(c.BufferSize)
	if err != nil {
		return 0, fmt.Errorf("invalid buffer-size %q: %w", c.BufferSize, err)
	}
	if n == 0 || n > 1<<30 {
		return 0, fmt.Errorf("buffer-size %q must be between 1B and 1GiB", c.BufferSize)
	}
	return int(n), nil
}

// Options returns the filesystem options the configuration sets.
func (c *Configuration) Options() ([]fsops.Option, error) {
	opts := []fsops.Option{
		fsops.WithRecursive(c.Recursive),
		fsops.WithMakeDirectory(c.MakeDir),
		fsops.WithForce(c.Force),
		fsops.WithUaeMetadata(c.UaeMetadata),
	}
	size, err := c.bufferSize()
	if err != nil {
		return nil, err
	}
	if size > 0 {
		opts = append(opts, fsops.WithBufferSize(size))
	}
	if c.HostReservedNames != nil {
		opts = append(opts, fsops.WithHostReservedNames(*c.HostReservedNames))
	}
	return opts, nil
}
