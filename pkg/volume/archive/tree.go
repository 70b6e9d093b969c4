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

// Package archive opens ZIP, TAR (plain or gzip compressed) and cpio
// archives as read-only volumes. Each archive is indexed once into a tree of
// nodes; file contents are read from the archive on demand.
package archive

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/amigatools/imager/pkg/volume"
)

var _ volume.Volume = (*Volume)(nil)

// Volume is an indexed archive.
type Volume struct {
	name   string
	root   *node
	closer io.Closer
}

type node struct {
	name     string
	dir      bool
	children []*node
	size     uint64
	modTime  time.Time
	open     func() (io.ReadCloser, error)
}

func newVolume(name string, closer io.Closer) *Volume {
	return &Volume{
		name:   name,
		root:   &node{dir: true},
		closer: closer,
	}
}

func (n *node) child(name string) *node {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	// archives made on Amiga and Windows hosts don't agree on case
	for _, c := range n.children {
		if strings.EqualFold(c.name, name) {
			return c
		}
	}
	return nil
}

func splitName(name string) []string {
	var parts []string
	for _, p := range strings.Split(name, "/") {
		if p == "" || p == "." {
			continue
		}
		parts = append(parts, p)
	}
	return parts
}

// add records an archive member, creating missing parent directories. A
// later member with the same name replaces an earlier one.
func (v *Volume) add(name string, dir bool, size uint64, modTime time.Time, open func() (io.ReadCloser, error)) error {
	parts := splitName(name)
	if len(parts) == 0 {
		return nil
	}
	n := v.root
	for _, p := range parts[:len(parts)-1] {
		if p == ".." {
			return fmt.Errorf("archive member %q escapes the archive root", name)
		}
		next := n.child(p)
		if next == nil {
			next = &node{name: p, dir: true, modTime: modTime}
			n.children = append(n.children, next)
		}
		if !next.dir {
			return fmt.Errorf("archive member %q is below a file", name)
		}
		n = next
	}

	base := parts[len(parts)-1]
	if base == ".." {
		return fmt.Errorf("archive member %q escapes the archive root", name)
	}
	existing := n.child(base)
	switch {
	case existing != nil && existing.dir && dir:
		existing.modTime = modTime
		return nil
	case existing != nil:
		existing.dir, existing.size, existing.modTime, existing.open = dir, size, modTime, open
		return nil
	}
	n.children = append(n.children, &node{name: base, dir: dir, size: size, modTime: modTime, open: open})
	return nil
}

func (v *Volume) getNode(path []string) (*node, error) {
	n := v.root
	for _, p := range path {
		if !n.dir {
			return nil, volume.NotFound(path)
		}
		n = n.child(p)
		if n == nil {
			return nil, volume.NotFound(path)
		}
	}
	return n, nil
}

func (n *node) entry(path []string) volume.Entry {
	e := volume.Entry{Name: n.name, Type: volume.File, Path: path, Size: n.size, ModTime: n.modTime}
	if n.dir {
		e.Type, e.Size = volume.Dir, 0
	}
	return e
}

func (v *Volume) Name() string { return v.name }

func (v *Volume) Capabilities() volume.Capabilities {
	return volume.Capabilities{}
}

func (v *Volume) ReadDir(_ context.Context, dir []string) ([]volume.Entry, error) {
	n, err := v.getNode(dir)
	if err != nil {
		return nil, err
	}
	if !n.dir {
		return nil, fmt.Errorf("%s is not a directory", volume.String(dir))
	}
	entries := make([]volume.Entry, 0, len(n.children))
	for _, c := range n.children {
		entries = append(entries, c.entry(volume.Join(dir, c.name)))
	}
	return entries, nil
}

func (v *Volume) Stat(_ context.Context, path []string) (volume.Entry, error) {
	n, err := v.getNode(path)
	if err != nil {
		return volume.Entry{}, err
	}
	return n.entry(path), nil
}

func (v *Volume) OpenRead(_ context.Context, path []string) (io.ReadCloser, error) {
	n, err := v.getNode(path)
	if err != nil {
		return nil, err
	}
	if n.dir || n.open == nil {
		return nil, fmt.Errorf("%s is a directory", volume.String(path))
	}
	return n.open()
}

func (v *Volume) OpenWrite(context.Context, []string, bool) (io.WriteCloser, error) {
	return nil, volume.ErrReadOnly
}

func (v *Volume) CreateDirectory(context.Context, []string) error { return volume.ErrReadOnly }

func (v *Volume) CreateFile(context.Context, []string) error { return volume.ErrReadOnly }

func (v *Volume) Close() error {
	if v.closer == nil {
		return nil
	}
	return v.closer.Close()
}
