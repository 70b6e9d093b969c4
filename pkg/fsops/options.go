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

package fsops

import (
	"fmt"

	"github.com/amigatools/imager/pkg/media"
	"github.com/amigatools/imager/pkg/uaemeta"
	"github.com/amigatools/imager/pkg/volume"
)

const defaultBufferSize = 1 << 20

// Observer is called for every entry a copy completes or a listing yields.
type Observer func(e volume.Entry)

type options struct {
	recursive  bool
	makeDir    bool
	force      bool
	mode       uaemeta.Mode
	registry   *media.Registry
	observer   Observer
	bufferSize int
	reserved   *bool
	metrics    *Metrics
}

// Option is an option for the filesystem operations.
type Option func(*options) error

func newOptions(opts []Option) (*options, error) {
	o := &options{bufferSize: defaultBufferSize}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if o.registry == nil {
		o.registry = media.New()
	}
	return o, nil
}

// WithRecursive descends into directories.
func WithRecursive(recursive bool) Option {
	return func(o *options) error {
		o.recursive = recursive
		return nil
	}
}

// WithMakeDirectory creates missing parent directories of the destination.
func WithMakeDirectory(makeDir bool) Option {
	return func(o *options) error {
		o.makeDir = makeDir
		return nil
	}
}

// WithForce overwrites existing destination files.
func WithForce(force bool) Option {
	return func(o *options) error {
		o.force = force
		return nil
	}
}

// WithUaeMetadata selects how Amiga names and attributes are kept on volumes
// that cannot store them.
func WithUaeMetadata(mode uaemeta.Mode) Option {
	return func(o *options) error {
		o.mode = mode
		return nil
	}
}

// WithRegistry sets the registry media are opened with. Without it every
// operation uses a fresh registry with the built-in drivers.
func WithRegistry(r *media.Registry) Option {
	return func(o *options) error {
		o.registry = r
		return nil
	}
}

// WithObserver registers a callback for completed entries.
func WithObserver(fn Observer) Option {
	return func(o *options) error {
		o.observer = fn
		return nil
	}
}

// WithBufferSize sets the size of the buffer file contents are copied with.
func WithBufferSize(size int) Option {
	return func(o *options) error {
		if size <= 0 {
			return fmt.Errorf("buffer size must be positive, got %d", size)
		}
		o.bufferSize = size
		return nil
	}
}

// WithHostReservedNames overrides whether the host reserves device names
// such as AUX.
func WithHostReservedNames(reserved bool) Option {
	return func(o *options) error {
		o.reserved = &reserved
		return nil
	}
}

// WithMetrics records copy statistics in m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) error {
		o.metrics = m
		return nil
	}
}

func (o *options) viewOptions() []uaemeta.Option {
	if o.reserved == nil {
		return nil
	}
	return []uaemeta.Option{uaemeta.WithHostReservedNames(*o.reserved)}
}
