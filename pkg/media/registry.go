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

// Package media opens the volume a resolved location points at: it opens
// the host file, device or in-memory media, walks the partition chain and
// hands the final stream to the driver that recognizes it.
package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel"

	"github.com/amigatools/imager/pkg/fserrors"
	"github.com/amigatools/imager/pkg/volume"
	"github.com/amigatools/imager/pkg/volume/archive"
	"github.com/amigatools/imager/pkg/volume/dirvol"
	"github.com/amigatools/imager/pkg/vpath"
)

// Access is the mode media is opened in.
type Access int

const (
	ReadOnly Access = iota
	ReadWrite
)

func (a Access) String() string {
	if a == ReadWrite {
		return "read-write"
	}
	return "read-only"
}

// Driver opens a filesystem volume on a stream.
type Driver struct {
	Name string
	// Match reports whether the driver serves streams identified as f.
	Match func(f Format) bool
	// Open mounts the volume. The stream stays owned by the registry.
	Open func(ctx context.Context, s Stream, access Access) (volume.Volume, error)
}

// Registry opens locations. It is created per invocation and holds no media
// open between calls.
type Registry struct {
	mu      sync.Mutex
	drivers []Driver
	mounts  map[string]volume.Volume
}

// New returns a registry that knows the built-in archive drivers.
func New() *Registry {
	r := &Registry{mounts: map[string]volume.Volume{}}
	for _, d := range builtinDrivers() {
		r.Register(d)
	}
	return r
}

// Register adds a filesystem driver. Drivers registered later take
// precedence over earlier ones.
func (r *Registry) Register(d Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers = append([]Driver{d}, r.drivers...)
}

// Mount makes v available as mem:<name>. Volumes opened from it share v, and
// closing them leaves v open.
func (r *Registry) Mount(name string, v volume.Volume) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mounts[strings.ToLower(name)] = v
}

func builtinDrivers() []Driver {
	archiveDriver := func(name string, f Format, open func(name string, s Stream) (*archive.Volume, error)) Driver {
		return Driver{
			Name:  name,
			Match: func(got Format) bool { return got == f },
			Open: func(_ context.Context, s Stream, _ Access) (volume.Volume, error) {
				return open(name, s)
			},
		}
	}
	return []Driver{
		archiveDriver("zip", Zip, func(name string, s Stream) (*archive.Volume, error) {
			return archive.OpenZip(name, s, s.Size(), nil)
		}),
		archiveDriver("tar", Tar, func(name string, s Stream) (*archive.Volume, error) {
			return archive.OpenTar(name, s, s.Size(), nil)
		}),
		archiveDriver("tar.gz", Gzip, func(name string, s Stream) (*archive.Volume, error) {
			return archive.OpenTarGzip(name, s, s.Size(), nil)
		}),
		archiveDriver("cpio", Cpio, func(name string, s Stream) (*archive.Volume, error) {
			return archive.OpenCpio(name, s, nil)
		}),
	}
}

// hostCaseSensitive is how host volumes opened at a filesystem root are
// treated; probing a root directory by creating files in it is not an option.
var hostCaseSensitive = runtime.GOOS != "windows" && runtime.GOOS != "darwin"

// Open opens the volume loc points at. The caller owns the returned volume
// and must close it.
func (r *Registry) Open(ctx context.Context, loc *vpath.Location, access Access) (volume.Volume, error) {
	ctx, span := otel.Tracer("imager").Start(ctx, "media.Open")
	defer span.End()
	log := clog.FromContext(ctx)

	switch loc.Kind {
	case vpath.MediaHost:
		log.Debugf("opening host volume %s %s", loc.MediaPath, access)
		v, err := dirvol.New(loc.MediaPath, dirvol.WithCaseSensitive(hostCaseSensitive))
		if err != nil {
			return nil, err
		}
		return v, nil

	case vpath.MediaMemory:
		r.mu.Lock()
		v, ok := r.mounts[strings.ToLower(loc.MediaPath)]
		r.mu.Unlock()
		if !ok {
			return nil, &fserrors.OpenError{Path: vpath.MemoryPrefix + loc.MediaPath, Err: errors.New("no such in-memory media")}
		}
		if len(loc.Chain) > 0 {
			return nil, &fserrors.OpenError{Path: loc.String(), Err: errors.New("in-memory media has no partition tables")}
		}
		return &handle{Volume: v, shared: true}, nil
	}

	fi, err := os.Stat(loc.MediaPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, &fserrors.PathNotFoundError{Path: loc.MediaPath, Reason: "media does not exist"}
	case err != nil:
		return nil, &fserrors.OpenError{Path: loc.MediaPath, Err: err}
	case fi.IsDir():
		if len(loc.Chain) > 0 {
			return nil, &fserrors.NotDirectoryError{Path: loc.MediaPath}
		}
		log.Debugf("media %s is a directory, opening it as a host volume", loc.MediaPath)
		v, err := dirvol.New(loc.MediaPath)
		if err != nil {
			return nil, err
		}
		return v, nil
	}

	f, err := openFile(loc.MediaPath, access)
	if err != nil {
		return nil, &fserrors.OpenError{Path: loc.MediaPath, Err: err}
	}
	v, err := r.openStream(ctx, loc, f, access)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &handle{Volume: v, closer: f}, nil
}

func (r *Registry) openStream(ctx context.Context, loc *vpath.Location, f *fileStream, access Access) (volume.Volume, error) {
	s, err := walkChain(loc, media(loc, f))
	if err != nil {
		return nil, err
	}

	format, err := Identify(s)
	if err != nil {
		return nil, &fserrors.OpenError{Path: loc.String(), Err: err}
	}
	clog.FromContext(ctx).Debugf("%s holds %s (%d bytes)", loc.String(), format, s.Size())

	r.mu.Lock()
	drivers := r.drivers
	r.mu.Unlock()
	for _, d := range drivers {
		if !d.Match(format) {
			continue
		}
		v, err := d.Open(ctx, s, access)
		if err != nil {
			return nil, &fserrors.OpenError{Path: loc.String(), Err: fmt.Errorf("%s driver: %w", d.Name, err)}
		}
		return v, nil
	}
	return nil, &fserrors.OpenError{Path: loc.String(), Err: fmt.Errorf("no driver for %s media", format)}
}

func media(loc *vpath.Location, f *fileStream) Stream {
	if loc.Modifiers.Has(vpath.ByteSwap) {
		return ByteSwapped(f)
	}
	return f
}

// walkChain narrows s to the partition the selector chain of loc names.
func walkChain(loc *vpath.Location, s Stream) (Stream, error) {
	var table vpath.TableKind
	for _, sel := range loc.Chain {
		switch sel.Kind {
		case vpath.RootMedia:
		case vpath.PartitionTable:
			table = sel.Table
		case vpath.Partition:
			parts, found, err := ReadTable(s, table)
			if err != nil {
				return nil, &fserrors.OpenError{Path: loc.String(), Err: err}
			}
			if !found {
				return nil, &fserrors.PathNotFoundError{Path: loc.String(), Reason: fmt.Sprintf("no %s partition table", table)}
			}
			p, ok := selectPartition(parts, sel)
			if !ok {
				return nil, &fserrors.PathNotFoundError{Path: loc.String(), Reason: fmt.Sprintf("%s partition %s does not exist", table, sel)}
			}
			if p.Offset < 0 || p.Size <= 0 || p.Offset > s.Size()-p.Size {
				return nil, &fserrors.OpenError{Path: loc.String(), Err: fmt.Errorf("%s partition %s extends past the end of the media", table, sel)}
			}
			s = Section(s, p.Offset, p.Size)
		}
	}
	return s, nil
}

// Partitions lists the partition table found at loc, which must not select
// a volume inside the table itself.
func (r *Registry) Partitions(ctx context.Context, loc *vpath.Location) ([]Partition, error) {
	if loc.Kind != vpath.MediaFile && loc.Kind != vpath.MediaDevice {
		return nil, &fserrors.OpenError{Path: loc.String(), Err: fmt.Errorf("%s media has no partition tables", loc.Kind)}
	}
	f, err := openFile(loc.MediaPath, ReadOnly)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &fserrors.PathNotFoundError{Path: loc.MediaPath, Reason: "media does not exist"}
		}
		return nil, &fserrors.OpenError{Path: loc.MediaPath, Err: err}
	}
	defer f.Close()

	s, err := walkChain(loc, media(loc, f))
	if err != nil {
		return nil, err
	}
	format, err := Identify(s)
	if err != nil {
		return nil, &fserrors.OpenError{Path: loc.String(), Err: err}
	}
	var kind vpath.TableKind
	switch format {
	case Mbr:
		kind = vpath.Mbr
	case Gpt:
		kind = vpath.Gpt
	case Rdb:
		kind = vpath.Rdb
	default:
		return nil, &fserrors.PathNotFoundError{Path: loc.String(), Reason: fmt.Sprintf("%s media has no partition table", format)}
	}
	clog.FromContext(ctx).Debugf("reading %s partition table of %s", kind, loc.String())
	parts, _, err := ReadTable(s, kind)
	if err != nil {
		return nil, &fserrors.OpenError{Path: loc.String(), Err: err}
	}
	return parts, nil
}
