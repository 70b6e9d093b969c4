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
	"io"

	"github.com/amigatools/imager/pkg/amiga"
	"github.com/amigatools/imager/pkg/limitio"
	"github.com/amigatools/imager/pkg/media"
	"github.com/amigatools/imager/pkg/volume"
	"github.com/amigatools/imager/pkg/vpath"
)

// maxHandlerSize bounds the size of a filesystem handler.
const maxHandlerSize = 8 << 20

// Version reads the "$VER:" string of the filesystem handler file at path.
// A handler without one yields override, or a VersionNotFoundError when
// override is nil.
func Version(ctx context.Context, path string, override *amiga.Version, opts ...Option) (_ amiga.Version, err error) {
	o, err := newOptions(opts)
	if err != nil {
		return amiga.Version{}, err
	}
	loc, err := vpath.Resolve(path)
	if err != nil {
		return amiga.Version{}, err
	}
	v, err := o.registry.Open(ctx, loc, media.ReadOnly)
	if err != nil {
		return amiga.Version{}, err
	}
	defer closeVolume(v, &err)

	r, err := v.OpenRead(ctx, loc.VolumePath)
	if err != nil {
		return amiga.Version{}, fmt.Errorf("opening %s: %w", loc, err)
	}
	defer r.Close()
	payload, err := io.ReadAll(limitio.NewReader(r, loc.String(), maxHandlerSize))
	if err != nil {
		return amiga.Version{}, fmt.Errorf("reading %s: %w", loc, err)
	}
	return amiga.ParseVersion(volume.Base(loc.VolumePath), payload, override)
}
