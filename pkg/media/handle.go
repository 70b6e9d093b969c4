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

package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/amigatools/imager/pkg/amiga"
	"github.com/amigatools/imager/pkg/volume"
)

var (
	_ volume.Attributer    = (*handle)(nil)
	_ volume.ModTimeSetter = (*handle)(nil)
	_ volume.Flusher       = (*handle)(nil)
	_ volume.StreamReader  = (*handle)(nil)
	_ volume.StreamWriter  = (*handle)(nil)
)

// handle ties a driver's volume to the media stream it was opened on, so
// closing the volume also closes the media. Shared handles wrap mounted
// in-memory volumes and leave them open.
type handle struct {
	volume.Volume
	closer io.Closer
	shared bool
}

func (h *handle) unsupported(what string) error {
	return fmt.Errorf("%s: %s is not supported", h.Name(), what)
}

func (h *handle) GetProtectionBits(ctx context.Context, path []string) (amiga.Protection, error) {
	if a, ok := h.Volume.(volume.Attributer); ok {
		return a.GetProtectionBits(ctx, path)
	}
	return 0, h.unsupported("protection bits")
}

func (h *handle) SetProtectionBits(ctx context.Context, path []string, p amiga.Protection) error {
	if a, ok := h.Volume.(volume.Attributer); ok {
		return a.SetProtectionBits(ctx, path, p)
	}
	return h.unsupported("protection bits")
}

func (h *handle) GetComment(ctx context.Context, path []string) (string, error) {
	if a, ok := h.Volume.(volume.Attributer); ok {
		return a.GetComment(ctx, path)
	}
	return "", h.unsupported("comments")
}

func (h *handle) SetComment(ctx context.Context, path []string, comment string) error {
	if a, ok := h.Volume.(volume.Attributer); ok {
		return a.SetComment(ctx, path, comment)
	}
	return h.unsupported("comments")
}

// SetModTime is a no-op on volumes that do not record times.
func (h *handle) SetModTime(ctx context.Context, path []string, t time.Time) error {
	if m, ok := h.Volume.(volume.ModTimeSetter); ok {
		return m.SetModTime(ctx, path, t)
	}
	return nil
}

func (h *handle) Flush(ctx context.Context) error {
	if f, ok := h.Volume.(volume.Flusher); ok {
		return f.Flush(ctx)
	}
	return nil
}

func (h *handle) ReadStream(ctx context.Context, path []string, stream string) ([]byte, error) {
	if s, ok := h.Volume.(volume.StreamReader); ok {
		return s.ReadStream(ctx, path, stream)
	}
	return nil, volume.ErrNoStream
}

func (h *handle) WriteStream(ctx context.Context, path []string, stream string, data []byte) error {
	if s, ok := h.Volume.(volume.StreamWriter); ok {
		return s.WriteStream(ctx, path, stream, data)
	}
	return volume.ErrNoStream
}

func (h *handle) Close() error {
	if h.shared {
		return nil
	}
	var errs []error
	errs = append(errs, h.Volume.Close())
	if h.closer != nil {
		errs = append(errs, h.closer.Close())
	}
	return errors.Join(errs...)
}
