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

// Package fsops copies, lists and extracts entries between volumes addressed
// by virtual paths.
package fsops

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel"
	"golang.org/x/exp/slices"

	"github.com/amigatools/imager/pkg/fserrors"
	"github.com/amigatools/imager/pkg/media"
	"github.com/amigatools/imager/pkg/uaemeta"
	"github.com/amigatools/imager/pkg/volume"
	"github.com/amigatools/imager/pkg/vpath"
)

// Summary is what a copy did. After a failed copy it covers the items
// completed before the failure.
type Summary struct {
	Directories int
	Files       int
	Bytes       uint64
	Elapsed     time.Duration
}

func (s *Summary) String() string {
	return fmt.Sprintf("%d directories, %d files, %s copied in %s",
		s.Directories, s.Files, humanize.Bytes(s.Bytes), s.Elapsed.Round(time.Millisecond))
}

// Copy copies the entries src names to dest. Both are virtual paths.
func Copy(ctx context.Context, src, dest string, opts ...Option) (*Summary, error) {
	srcLoc, err := vpath.Resolve(src)
	if err != nil {
		return nil, err
	}
	destLoc, err := vpath.Resolve(dest)
	if err != nil {
		return nil, err
	}
	return CopyLocations(ctx, srcLoc, destLoc, opts...)
}

// CopyLocations copies the entries src names to dest. The copy is planned
// completely before the destination is modified, so invalid copies fail
// without side effects. Errors during execution stop the copy; items copied
// until then are kept.
func CopyLocations(ctx context.Context, src, dest *vpath.Location, opts ...Option) (_ *Summary, err error) {
	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}
	ctx, span := otel.Tracer("imager").Start(ctx, "fsops.Copy")
	defer span.End()
	log := clog.FromContext(ctx)

	if _, pattern := dest.Pattern(); pattern != "" {
		return nil, &fserrors.ParseError{Path: dest.String(), Reason: "destination cannot contain wildcards"}
	}
	if src.Key() == dest.Key() && slices.Equal(src.VolumePath, dest.VolumePath) {
		return nil, &fserrors.SelfCopyError{Path: dest.String()}
	}

	log.Infof("copying %s to %s", src, dest)

	sv, err := o.open(ctx, src, media.ReadOnly)
	if err != nil {
		return nil, err
	}
	defer closeVolume(sv, &err)

	s, err := enumerate(ctx, sv, src, o.recursive)
	if err != nil {
		return nil, err
	}

	dv, err := o.open(ctx, dest, media.ReadWrite)
	if err != nil {
		return nil, err
	}
	defer closeVolume(dv, &err)

	plan, err := planCopy(ctx, s, dest, dv, o.recursive, o.makeDir)
	if err != nil {
		return nil, err
	}
	log.Debugf("planned %d items and %d directories", len(plan.Items), len(plan.Dirs))

	summary, err := o.execute(ctx, sv, dv, plan)
	o.metrics.observe(summary)
	if err != nil {
		return summary, err
	}
	log.Infof("%s", summary)
	return summary, nil
}

// open opens the volume at loc. Volumes without native attributes are
// wrapped in a metadata view: destinations always, so names the host
// rejects are mapped, sources only when a metadata mode is selected.
func (o *options) open(ctx context.Context, loc *vpath.Location, access media.Access) (volume.Volume, error) {
	v, err := o.registry.Open(ctx, loc, access)
	if err != nil {
		return nil, err
	}
	caps := v.Capabilities()
	if access == media.ReadWrite && !caps.Writable {
		v.Close()
		return nil, &fserrors.OpenError{Path: loc.String(), Err: volume.ErrReadOnly}
	}
	if caps.Attributes || (access == media.ReadOnly && o.mode == uaemeta.None) {
		return v, nil
	}
	clog.FromContext(ctx).Debugf("keeping Amiga metadata of %s as %s", loc, o.mode)
	return uaemeta.NewView(v, o.mode, o.viewOptions()...), nil
}

func closeVolume(v volume.Volume, err *error) {
	if cerr := v.Close(); cerr != nil && *err == nil {
		*err = fmt.Errorf("closing %s: %w", v.Name(), cerr)
	}
}

func (o *options) execute(ctx context.Context, sv, dv volume.Volume, p *Plan) (*Summary, error) {
	start := time.Now()
	s := &Summary{}
	defer func() { s.Elapsed = time.Since(start) }()

	for _, d := range p.Dirs {
		if err := dv.CreateDirectory(ctx, d); err != nil {
			return s, fmt.Errorf("creating %s: %w", volume.String(d), err)
		}
		s.Directories++
	}

	buf := make([]byte, o.bufferSize)
	for _, item := range p.Items {
		// a file that was started is always completed
		if err := ctx.Err(); err != nil {
			return s, err
		}
		switch item.Source.Type {
		case volume.Dir:
			if err := dv.CreateDirectory(ctx, item.Dest); err != nil {
				return s, fmt.Errorf("creating %s: %w", volume.String(item.Dest), err)
			}
			s.Directories++
		case volume.File:
			n, err := copyFile(ctx, sv, dv, item, buf, o.force)
			if err != nil {
				return s, err
			}
			s.Files++
			s.Bytes += n
		}
		if err := applyMetadata(ctx, dv, item); err != nil {
			return s, err
		}
		if o.observer != nil {
			o.observer(item.Source)
		}
	}
	return s, nil
}

func copyFile(ctx context.Context, sv, dv volume.Volume, item Item, buf []byte, force bool) (uint64, error) {
	t, err := volume.Exists(ctx, dv, item.Dest)
	switch {
	case err != nil:
		return 0, fmt.Errorf("checking %s: %w", volume.String(item.Dest), err)
	case t == volume.Dir:
		return 0, &fserrors.NotDirectoryError{Path: volume.String(item.Dest)}
	case t == volume.File && !force:
		return 0, &fserrors.FileExistsError{Path: volume.String(item.Dest)}
	}

	clog.FromContext(ctx).Debugf("%s (%s)", item.Source.RelativePath, humanize.Bytes(item.Source.Size))
	r, err := sv.OpenRead(ctx, item.Source.Path)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", volume.String(item.Source.Path), err)
	}
	defer r.Close()

	w, err := dv.OpenWrite(ctx, item.Dest, true)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", volume.String(item.Dest), err)
	}
	n, err := io.CopyBuffer(w, r, buf)
	if err != nil {
		return 0, errors.Join(fmt.Errorf("copying %s: %w", volume.String(item.Source.Path), err), w.Close())
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("writing %s: %w", volume.String(item.Dest), err)
	}
	return uint64(n), nil
}

// applyMetadata carries the attributes and modification time of the source
// entry over, as far as the destination can store them.
func applyMetadata(ctx context.Context, dv volume.Volume, item Item) error {
	e := item.Source
	caps := dv.Capabilities()
	if a, ok := dv.(volume.Attributer); ok && e.Attributes != nil {
		if caps.Attributes {
			if err := a.SetProtectionBits(ctx, item.Dest, e.Attributes.Protection); err != nil {
				return fmt.Errorf("setting protection bits of %s: %w", volume.String(item.Dest), err)
			}
		}
		if caps.Comments {
			if err := a.SetComment(ctx, item.Dest, e.Attributes.Comment); err != nil {
				return fmt.Errorf("setting comment of %s: %w", volume.String(item.Dest), err)
			}
		}
	}
	if ms, ok := dv.(volume.ModTimeSetter); ok && !e.ModTime.IsZero() {
		if err := ms.SetModTime(ctx, item.Dest, e.ModTime); err != nil {
			return fmt.Errorf("setting modification time of %s: %w", volume.String(item.Dest), err)
		}
	}
	return nil
}
