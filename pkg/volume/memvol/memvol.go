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

// Package memvol is an in-memory volume with Amiga semantics: names are
// case-insensitive, entries keep their creation order, and protection bits
// and comments are stored natively.
package memvol

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/amigatools/imager/pkg/amiga"
	"github.com/amigatools/imager/pkg/fserrors"
	"github.com/amigatools/imager/pkg/volume"
)

// MaxCommentLength is the longest comment an Amiga filesystem accepts.
const MaxCommentLength = 79

var (
	_ volume.Volume        = (*Volume)(nil)
	_ volume.Attributer    = (*Volume)(nil)
	_ volume.ModTimeSetter = (*Volume)(nil)
)

// Volume is an in-memory tree of nodes.
type Volume struct {
	name string

	mu   sync.Mutex
	tree *node
}

type node struct {
	name     string
	dir      bool
	children []*node
	data     []byte

	protection amiga.Protection
	comment    string
	modTime    time.Time
}

// New returns an empty volume.
func New(name string) *Volume {
	return &Volume{
		name: name,
		tree: &node{dir: true, modTime: time.Now()},
	}
}

func (n *node) child(name string) *node {
	for _, c := range n.children {
		if strings.EqualFold(c.name, name) {
			return c
		}
	}
	return nil
}

func (n *node) entry(path []string) volume.Entry {
	e := volume.Entry{
		Name:       n.name,
		Type:       volume.File,
		Path:       path,
		Size:       uint64(len(n.data)),
		Attributes: &volume.Attributes{Protection: n.protection, Comment: n.comment},
		ModTime:    n.modTime,
	}
	if n.dir {
		e.Type = volume.Dir
		e.Size = 0
	}
	return e
}

// getNode returns the node at path. Callers hold v.mu.
func (v *Volume) getNode(path []string) (*node, error) {
	n := v.tree
	for i, part := range path {
		if !n.dir {
			return nil, &fserrors.NotDirectoryError{Path: volume.String(path[:i])}
		}
		next := n.child(part)
		if next == nil {
			return nil, volume.NotFound(path)
		}
		n = next
	}
	return n, nil
}

// getParent returns the directory that holds path. Callers hold v.mu.
func (v *Volume) getParent(path []string) (*node, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("the root has no parent")
	}
	parent, err := v.getNode(path[:len(path)-1])
	if err != nil {
		return nil, err
	}
	if !parent.dir {
		return nil, &fserrors.NotDirectoryError{Path: volume.String(path[:len(path)-1])}
	}
	return parent, nil
}

func (v *Volume) Name() string { return v.name }

func (v *Volume) Capabilities() volume.Capabilities {
	return volume.Capabilities{
		Attributes:      true,
		Comments:        true,
		Writable:        true,
		CaseInsensitive: true,
	}
}

func (v *Volume) ReadDir(_ context.Context, dir []string) ([]volume.Entry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	n, err := v.getNode(dir)
	if err != nil {
		return nil, err
	}
	if !n.dir {
		return nil, &fserrors.NotDirectoryError{Path: volume.String(dir)}
	}
	entries := make([]volume.Entry, 0, len(n.children))
	for _, c := range n.children {
		entries = append(entries, c.entry(volume.Join(dir, c.name)))
	}
	return entries, nil
}

func (v *Volume) Stat(_ context.Context, path []string) (volume.Entry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	n, err := v.getNode(path)
	if err != nil {
		return volume.Entry{}, err
	}
	if len(path) > 0 {
		// report the stored spelling of the name
		path = volume.Join(volume.Parent(path), n.name)
	}
	return n.entry(path), nil
}

func (v *Volume) OpenRead(_ context.Context, path []string) (io.ReadCloser, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	n, err := v.getNode(path)
	if err != nil {
		return nil, err
	}
	if n.dir {
		return nil, fmt.Errorf("%s is a directory", volume.String(path))
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(n.data))), nil
}

func (v *Volume) OpenWrite(_ context.Context, path []string, truncate bool) (io.WriteCloser, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	n, err := v.createFile(path)
	if err != nil {
		return nil, err
	}
	f := &memFile{vol: v, node: n}
	if !truncate {
		f.buf.Write(n.data)
	}
	return f, nil
}

func (v *Volume) CreateFile(_ context.Context, path []string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	n, err := v.createFile(path)
	if err != nil {
		return err
	}
	n.data = nil
	return nil
}

// createFile returns the file node at path, creating it if needed. Callers
// hold v.mu.
func (v *Volume) createFile(path []string) (*node, error) {
	parent, err := v.getParent(path)
	if err != nil {
		return nil, err
	}
	name := path[len(path)-1]
	if n := parent.child(name); n != nil {
		if n.dir {
			return nil, fmt.Errorf("%s is a directory", volume.String(path))
		}
		return n, nil
	}
	n := &node{name: name, modTime: time.Now()}
	parent.children = append(parent.children, n)
	return n, nil
}

func (v *Volume) CreateDirectory(_ context.Context, path []string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(path) == 0 {
		return nil
	}
	parent, err := v.getParent(path)
	if err != nil {
		return err
	}
	name := path[len(path)-1]
	if n := parent.child(name); n != nil {
		if !n.dir {
			return &fserrors.NotDirectoryError{Path: volume.String(path)}
		}
		return nil
	}
	parent.children = append(parent.children, &node{name: name, dir: true, modTime: time.Now()})
	return nil
}

// MkdirAll creates path and any missing parents.
func (v *Volume) MkdirAll(ctx context.Context, path []string) error {
	for i := 1; i <= len(path); i++ {
		if err := v.CreateDirectory(ctx, path[:i]); err != nil {
			return err
		}
	}
	return nil
}

// WriteFile stores data at path, creating parent directories as needed.
func (v *Volume) WriteFile(ctx context.Context, path []string, data []byte) error {
	if err := v.MkdirAll(ctx, volume.Parent(path)); err != nil {
		return err
	}
	w, err := v.OpenWrite(ctx, path, true)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	return w.Close()
}

func (v *Volume) GetProtectionBits(_ context.Context, path []string) (amiga.Protection, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	n, err := v.getNode(path)
	if err != nil {
		return 0, err
	}
	return n.protection, nil
}

func (v *Volume) SetProtectionBits(_ context.Context, path []string, p amiga.Protection) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	n, err := v.getNode(path)
	if err != nil {
		return err
	}
	n.protection = p
	return nil
}

func (v *Volume) GetComment(_ context.Context, path []string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	n, err := v.getNode(path)
	if err != nil {
		return "", err
	}
	return n.comment, nil
}

func (v *Volume) SetComment(_ context.Context, path []string, comment string) error {
	if len(comment) > MaxCommentLength {
		return fmt.Errorf("comment for %s is longer than %d characters", volume.String(path), MaxCommentLength)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	n, err := v.getNode(path)
	if err != nil {
		return err
	}
	n.comment = comment
	return nil
}

func (v *Volume) SetModTime(_ context.Context, path []string, t time.Time) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	n, err := v.getNode(path)
	if err != nil {
		return err
	}
	n.modTime = t
	return nil
}

// Close is a no-op; the tree lives as long as the Volume value.
func (v *Volume) Close() error { return nil }

type memFile struct {
	vol    *Volume
	node   *node
	buf    bytes.Buffer
	closed bool
}

func (f *memFile) Write(p []byte) (int, error) {
	if f.closed {
		return 0, fmt.Errorf("write to closed file %s", f.node.name)
	}
	return f.buf.Write(p)
}

func (f *memFile) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true

	f.vol.mu.Lock()
	defer f.vol.mu.Unlock()
	f.node.data = bytes.Clone(f.buf.Bytes())
	f.node.modTime = time.Now()
	return nil
}
