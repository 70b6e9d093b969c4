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

// MakeDirectory creates the directory path names. Missing parents are only
// created with WithMakeDirectory; an existing directory is not an error.
func MakeDirectory(ctx context.Context, path string, opts ...Option) (err error) {
	o, err := newOptions(opts)
	if err != nil {
		return err
	}
	loc, err := vpath.Resolve(path)
	if err != nil {
		return err
	}
	if _, pattern := loc.Pattern(); pattern != "" {
		return &fserrors.ParseError{Path: path, Reason: "directory name cannot contain wildcards"}
	}
	ctx, span := otel.Tracer("imager").Start(ctx, "fsops.MakeDirectory")
	defer span.End()

	v, err := o.open(ctx, loc, media.ReadWrite)
	if err != nil {
		return err
	}
	defer closeVolume(v, &err)

	p := &Plan{}
	if err := p.addParents(ctx, v, loc.VolumePath, o.makeDir); err != nil {
		return err
	}
	if len(loc.VolumePath) > 0 {
		p.Dirs = append(p.Dirs, loc.VolumePath)
	}
	for _, d := range p.Dirs {
		clog.FromContext(ctx).Debugf("creating %s in %s", volume.String(d), v.Name())
		if err := v.CreateDirectory(ctx, d); err != nil {
			return fmt.Errorf("creating %s: %w", volume.String(d), err)
		}
	}
	return nil
}
