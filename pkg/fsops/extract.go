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

	"github.com/amigatools/imager/pkg/vpath"
)

// Extract copies the entries src names into dest, which is always a path on
// the host filesystem even when it looks like an image.
func Extract(ctx context.Context, src, dest string, opts ...Option) (*Summary, error) {
	srcLoc, err := vpath.Resolve(src)
	if err != nil {
		return nil, err
	}
	destLoc, err := vpath.ResolveHost(dest)
	if err != nil {
		return nil, err
	}
	return CopyLocations(ctx, srcLoc, destLoc, opts...)
}
