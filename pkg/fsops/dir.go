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
	"context"
	"fmt"

	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel"

	"github.com/amigatools/imager/pkg/fserrors"
	"github.com/amigatools/imager/pkg/media"
	"github.com/amigatools/imager/pkg/volume"
	"github.com/amigatools/imager/pkg/vpath"
)

// Dir lists the entries path names, the way Copy would enumerate them as a
// source, without a destination. The observer sees every entry as it is
// read.
func Dir(ctx context.Context, path string, opts ...Option) ([]volume.Entry, error) {
	loc, err := vpath.Resolve(path)
	if err != nil {
		return nil, err
	}
	return DirLocation(ctx, loc, opts...)
}

// DirLocation is Dir for a resolved location.
func DirLocation(ctx context.Context, loc *vpath.Location, opts ...Option) (_ []volume.Entry, err error) {
	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}
	ctx, span := otel.Tracer("imager").Start(ctx, "fsops.Dir")
	defer span.End()
	clog.FromContext(ctx).Debugf("listing %s", loc)

	v, err := o.open(ctx, loc, media.ReadOnly)
	if err != nil {
		return nil, err
	}
	defer closeVolume(v, &err)

	s, err := enumerate(ctx, v, loc, o.recursive)
	if err != nil {
		return nil, err
	}
	if o.observer != nil {
		for _, e := range s.entries {
			o.observer(e)
		}
	}
	return s.entries, nil
}

// Partitions lists the partition table of the media path names.
func Partitions(ctx context.Context, path string, opts ...Option) ([]media.Partition, error) {
	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}
	loc, err := vpath.Resolve(path)
	if err != nil {
		return nil, err
	}
	if len(loc.VolumePath) > 0 {
		return nil, &fserrors.ParseError{Path: path, Reason: fmt.Sprintf("%s is inside a volume, not a partition table", loc.Display())}
	}
	return o.registry.Partitions(ctx, loc)
}
