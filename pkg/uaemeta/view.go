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

package uaemeta

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/amigatools/imager/pkg/amiga"
	"github.com/amigatools/imager/pkg/fserrors"
	"github.com/amigatools/imager/pkg/volume"
)

var (
	_ volume.Volume        = (*View)(nil)
	_ volume.Attributer    = (*View)(nil)
	_ volume.ModTimeSetter = (*View)(nil)
	_ volume.Flusher       = (*View)(nil)
)

// Option configures a View.
type Option func(*View)

// WithHostReservedNames overrides whether device names such as AUX are
// treated as reserved, which by default depends on the host.
func WithHostReservedNames(reserved bool) Option {
	return func(v *View) {
		v.reserved = reserved
	}
}

// View presents a volume that cannot store Amiga attributes as one that can,
// by keeping names and attributes in sidecar files. Paths passed to a View
// are Amiga paths; the sidecars themselves are hidden from listings.
//
// Sidecar changes are kept in memory per directory and written by Flush or
// Close. A View is not safe for concurrent use.
type View struct {
	inner    volume.Volume
	mode     Mode
	reserved bool
	dirs     map[string]*dirState
}

// dirState is what a View knows about one host directory.
type dirState struct {
	host []string
	// nodes of the directory's _UAEFSDB.___, in file order
	nodes []*Node
	// version 2 nodes read from file streams; never written back
	streams []*Node
	metas   map[string]*metaState
	dirty   bool
}

type metaState struct {
	normal  string
	present bool
	meta    Metafile
	dirty   bool
}

// NewView wraps inner. The view owns inner and closes it on Close.
func NewView(inner volume.Volume, mode Mode, opts ...Option) *View {
	v := &View{
		inner:    inner,
		mode:     mode,
		reserved: hostReservesNames,
		dirs:     map[string]*dirState{},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Inner returns the wrapped volume.
func (v *View) Inner() volume.Volume { return v.inner }

func (v *View) Name() string { return v.inner.Name() }

func (v *View) Capabilities() volume.Capabilities {
	c := v.inner.Capabilities()
	c.Attributes = v.mode != None
	c.Comments = v.mode != None
	return c
}

func dirKey(host []string) string {
	return strings.Join(host, "/")
}

func (v *View) loadDir(ctx context.Context, host []string) (*dirState, error) {
	if st, ok := v.dirs[dirKey(host)]; ok {
		return st, nil
	}
	st := &dirState{host: volume.Join(host), metas: map[string]*metaState{}}

	if v.mode == UaeFsDb {
		b, err := v.readFile(ctx, volume.Join(host, FsDbFileName))
		if err != nil {
			return nil, err
		}
		if b != nil {
			nodes, err := ParseFsDb(b)
			if err != nil {
				clog.FromContext(ctx).Warnf("%s in %s: %v", FsDbFileName, volume.String(host), err)
			}
			st.nodes = nodes
		}
		if err := v.loadStreams(ctx, st); err != nil {
			return nil, err
		}
	}

	v.dirs[dirKey(host)] = st
	return st, nil
}

// loadStreams reads the version 2 nodes attached to the files of a
// directory. Hosts without streams simply have none.
func (v *View) loadStreams(ctx context.Context, st *dirState) error {
	sr, ok := v.inner.(volume.StreamReader)
	if !ok {
		return nil
	}
	entries, err := v.inner.ReadDir(ctx, st.host)
	if err != nil {
		return err
	}
	for _, e := range entries {
		b, err := sr.ReadStream(ctx, e.Path, StreamName)
		if err != nil {
			if !errors.Is(err, volume.ErrNoStream) {
				clog.FromContext(ctx).Debugf("reading %s of %s: %v", StreamName, volume.String(e.Path), err)
			}
			continue
		}
		n := &Node{}
		if err := n.UnmarshalBinary(b); err != nil || n.Version != V2 {
			continue
		}
		n.NormalName = e.Name
		st.streams = append(st.streams, n)
	}
	return nil
}

// readFile returns the content of path, or nil when it does not exist.
func (v *View) readFile(ctx context.Context, path []string) ([]byte, error) {
	r, err := v.inner.OpenRead(ctx, path)
	if err != nil {
		var notFound *fserrors.PathNotFoundError
		if errors.As(err, &notFound) {
			return nil, nil
		}
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (v *View) writeFile(ctx context.Context, path []string, b []byte) error {
	w, err := v.inner.OpenWrite(ctx, path, true)
	if err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (st *dirState) sidecarNode(amigaName string) *Node {
	for _, n := range st.nodes {
		if strings.EqualFold(n.AmigaName, amigaName) {
			return n
		}
	}
	return nil
}

func (st *dirState) nodeByAmiga(amigaName string) *Node {
	if n := st.sidecarNode(amigaName); n != nil {
		return n
	}
	for _, n := range st.streams {
		if strings.EqualFold(n.AmigaName, amigaName) {
			return n
		}
	}
	return nil
}

func (st *dirState) nodeByNormal(normal string) *Node {
	for _, list := range [][]*Node{st.nodes, st.streams} {
		for _, n := range list {
			if strings.EqualFold(n.NormalName, normal) {
				return n
			}
		}
	}
	return nil
}

func (v *View) meta(ctx context.Context, st *dirState, normal string) (*metaState, error) {
	key := strings.ToLower(normal)
	if m, ok := st.metas[key]; ok {
		return m, nil
	}
	m := &metaState{normal: normal}
	b, err := v.readFile(ctx, volume.Join(st.host, normal+MetafileExtension))
	if err != nil {
		return nil, err
	}
	if b != nil {
		if err := m.meta.UnmarshalText(b); err != nil {
			clog.FromContext(ctx).Warnf("ignoring %s: %v", volume.String(volume.Join(st.host, normal+MetafileExtension)), err)
		} else {
			m.present = true
		}
	}
	st.metas[key] = m
	return m, nil
}

// hidden reports whether a host entry is a sidecar of the current mode.
func (v *View) hidden(hostName string) bool {
	switch v.mode {
	case UaeFsDb:
		return strings.EqualFold(hostName, FsDbFileName)
	case UaeMetafile:
		return strings.HasSuffix(strings.ToLower(hostName), MetafileExtension)
	}
	return false
}

func (v *View) amigaName(st *dirState, hostName string) string {
	switch v.mode {
	case UaeFsDb:
		if n := st.nodeByNormal(hostName); n != nil {
			return n.AmigaName
		}
	case UaeMetafile:
		return DecodeName(hostName)
	}
	return hostName
}

// normalName picks the host name a new entry called name gets in st.
func (v *View) normalName(ctx context.Context, st *dirState, name string) string {
	switch v.mode {
	case UaeFsDb:
		if !NeedsSafeName(name, v.reserved) {
			return name
		}
		return UniqueName(MakeSafeName(name), func(candidate string) bool {
			if st.nodeByNormal(candidate) != nil {
				return true
			}
			t, err := volume.Exists(ctx, v.inner, volume.Join(st.host, candidate))
			return err == nil && t != volume.None
		})
	case UaeMetafile:
		return EncodeName(name, v.reserved)
	}
	return HostName(name, v.reserved)
}

func usableHostName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, "/\x00")
}

// lookup finds the host entry for the Amiga name in st. The literal name is
// tried last, for host entries nobody recorded a mapping for; since the host
// may reject it outright, errors for it count as not found.
func (v *View) lookup(ctx context.Context, st *dirState, name string) (string, volume.Entry, bool, error) {
	var candidates []string
	switch v.mode {
	case UaeFsDb:
		if n := st.nodeByAmiga(name); n != nil {
			candidates = append(candidates, n.NormalName)
		}
		if !NeedsSafeName(name, v.reserved) {
			candidates = append(candidates, name)
		}
	case UaeMetafile:
		candidates = append(candidates, EncodeName(name, v.reserved))
	case None:
		candidates = append(candidates, HostName(name, v.reserved))
	}
	primary := len(candidates)
	candidates = append(candidates, name)

	for i, c := range candidates {
		if !usableHostName(c) || v.hidden(c) {
			continue
		}
		e, err := v.inner.Stat(ctx, volume.Join(st.host, c))
		if err == nil {
			return c, e, true, nil
		}
		var notFound *fserrors.PathNotFoundError
		if i < primary && !errors.As(err, &notFound) {
			return "", volume.Entry{}, false, err
		}
	}
	return "", volume.Entry{}, false, nil
}

// resolve maps an Amiga path to the host path.
func (v *View) resolve(ctx context.Context, path []string) ([]string, error) {
	host := make([]string, 0, len(path))
	for i, seg := range path {
		st, err := v.loadDir(ctx, host)
		if err != nil {
			return nil, err
		}
		hn, _, found, err := v.lookup(ctx, st, seg)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, volume.NotFound(path[:i+1])
		}
		host = append(host, hn)
	}
	return host, nil
}

func (v *View) entry(ctx context.Context, st *dirState, path []string, he volume.Entry) (volume.Entry, error) {
	e := he
	e.Name = volume.Base(path)
	e.Path = path
	switch v.mode {
	case UaeFsDb:
		e.Attributes = &volume.Attributes{}
		if n := st.nodeByNormal(he.Name); n != nil {
			e.Attributes = &volume.Attributes{Protection: amiga.Protection(n.Mode), Comment: n.Comment}
		}
	case UaeMetafile:
		e.Attributes = &volume.Attributes{}
		m, err := v.meta(ctx, st, he.Name)
		if err != nil {
			return e, err
		}
		if m.present || m.dirty {
			e.Attributes = &volume.Attributes{Protection: m.meta.Protection, Comment: m.meta.Comment}
			if !m.meta.Date.IsZero() {
				e.ModTime = m.meta.Date
			}
		}
	}
	return e, nil
}

func (v *View) ReadDir(ctx context.Context, dir []string) ([]volume.Entry, error) {
	host, err := v.resolve(ctx, dir)
	if err != nil {
		return nil, err
	}
	st, err := v.loadDir(ctx, host)
	if err != nil {
		return nil, err
	}
	hostEntries, err := v.inner.ReadDir(ctx, host)
	if err != nil {
		return nil, err
	}
	entries := make([]volume.Entry, 0, len(hostEntries))
	for _, he := range hostEntries {
		if v.hidden(he.Name) {
			continue
		}
		e, err := v.entry(ctx, st, volume.Join(dir, v.amigaName(st, he.Name)), he)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (v *View) Stat(ctx context.Context, path []string) (volume.Entry, error) {
	if len(path) == 0 {
		return v.inner.Stat(ctx, nil)
	}
	t, err := v.target(ctx, path)
	if err != nil {
		return volume.Entry{}, err
	}
	if !t.found {
		return volume.Entry{}, volume.NotFound(path)
	}
	return v.entry(ctx, t.st, path, t.entry)
}

// target is an Amiga path mapped onto its host directory.
type target struct {
	st     *dirState
	name   string
	normal string
	found  bool
	entry  volume.Entry
}

func (t *target) host() []string { return volume.Join(t.st.host, t.normal) }

func (v *View) target(ctx context.Context, path []string) (*target, error) {
	parent, err := v.resolve(ctx, volume.Parent(path))
	if err != nil {
		return nil, err
	}
	st, err := v.loadDir(ctx, parent)
	if err != nil {
		return nil, err
	}
	t := &target{st: st, name: volume.Base(path)}
	t.normal, t.entry, t.found, err = v.lookup(ctx, st, t.name)
	if err != nil {
		return nil, err
	}
	if !t.found {
		t.normal = v.normalName(ctx, st, t.name)
	}
	return t, nil
}

// created records the name mapping of a newly created entry.
func (v *View) created(t *target) {
	if t.found || t.normal == t.name {
		return
	}
	switch v.mode {
	case UaeFsDb:
		v.setNode(t).NormalName = t.normal
	case UaeMetafile:
		m := &metaState{normal: t.normal, dirty: true}
		t.st.metas[strings.ToLower(t.normal)] = m
		t.st.dirty = true
	}
}

// setNode returns the sidecar node for t, adding it when missing.
func (v *View) setNode(t *target) *Node {
	t.st.dirty = true
	if n := t.st.sidecarNode(t.name); n != nil {
		return n
	}
	n := &Node{Version: V1, Valid: 1, AmigaName: t.name, NormalName: t.normal}
	// attributes that so far lived in a stream move into the sidecar
	if s := t.st.nodeByAmiga(t.name); s != nil {
		n.Mode, n.Comment = s.Mode, s.Comment
	}
	t.st.nodes = append(t.st.nodes, n)
	return n
}

func (v *View) OpenRead(ctx context.Context, path []string) (io.ReadCloser, error) {
	host, err := v.resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	return v.inner.OpenRead(ctx, host)
}

func (v *View) OpenWrite(ctx context.Context, path []string, truncate bool) (io.WriteCloser, error) {
	t, err := v.target(ctx, path)
	if err != nil {
		return nil, err
	}
	if t.found && t.entry.Type == volume.Dir {
		return nil, fmt.Errorf("%s is a directory", volume.String(path))
	}
	w, err := v.inner.OpenWrite(ctx, t.host(), truncate)
	if err != nil {
		return nil, err
	}
	v.created(t)
	return w, nil
}

func (v *View) CreateFile(ctx context.Context, path []string) error {
	w, err := v.OpenWrite(ctx, path, true)
	if err != nil {
		return err
	}
	return w.Close()
}

func (v *View) CreateDirectory(ctx context.Context, path []string) error {
	if len(path) == 0 {
		return nil
	}
	t, err := v.target(ctx, path)
	if err != nil {
		return err
	}
	if t.found {
		if t.entry.Type != volume.Dir {
			return &fserrors.NotDirectoryError{Path: volume.String(path)}
		}
		return nil
	}
	if err := v.inner.CreateDirectory(ctx, t.host()); err != nil {
		return err
	}
	v.created(t)
	return nil
}

func (v *View) existing(ctx context.Context, path []string) (*target, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("the root has no attributes")
	}
	t, err := v.target(ctx, path)
	if err != nil {
		return nil, err
	}
	if !t.found {
		return nil, volume.NotFound(path)
	}
	return t, nil
}

func (v *View) GetProtectionBits(ctx context.Context, path []string) (amiga.Protection, error) {
	e, err := v.Stat(ctx, path)
	if err != nil {
		return 0, err
	}
	if e.Attributes == nil {
		return 0, nil
	}
	return e.Attributes.Protection, nil
}

func (v *View) GetComment(ctx context.Context, path []string) (string, error) {
	e, err := v.Stat(ctx, path)
	if err != nil {
		return "", err
	}
	if e.Attributes == nil {
		return "", nil
	}
	return e.Attributes.Comment, nil
}

func (v *View) SetProtectionBits(ctx context.Context, path []string, p amiga.Protection) error {
	return v.update(ctx, path, p == 0, func(n *Node) { n.Mode = uint32(p) }, func(m *Metafile) { m.Protection = p })
}

func (v *View) SetComment(ctx context.Context, path []string, comment string) error {
	if len(comment) >= commentSize {
		return fmt.Errorf("comment for %s is longer than %d characters", volume.String(path), commentSize-1)
	}
	return v.update(ctx, path, comment == "", func(n *Node) { n.Comment = comment }, func(m *Metafile) { m.Comment = comment })
}

// update applies an attribute change to the sidecar of path. Setting a
// default value on an entry without a sidecar record is a no-op.
func (v *View) update(ctx context.Context, path []string, isDefault bool, node func(*Node), meta func(*Metafile)) error {
	if v.mode == None {
		return nil
	}
	t, err := v.existing(ctx, path)
	if err != nil {
		return err
	}
	switch v.mode {
	case UaeFsDb:
		if t.st.nodeByAmiga(t.name) == nil && isDefault {
			return nil
		}
		node(v.setNode(t))
	case UaeMetafile:
		m, err := v.meta(ctx, t.st, t.normal)
		if err != nil {
			return err
		}
		if !m.present && !m.dirty && isDefault {
			return nil
		}
		if !m.present && !m.dirty {
			m.meta.Date = t.entry.ModTime
		}
		meta(&m.meta)
		m.dirty = true
		t.st.dirty = true
	}
	return nil
}

func (v *View) SetModTime(ctx context.Context, path []string, when time.Time) error {
	t, err := v.existing(ctx, path)
	if err != nil {
		return err
	}
	if ms, ok := v.inner.(volume.ModTimeSetter); ok {
		if err := ms.SetModTime(ctx, t.host(), when); err != nil {
			return err
		}
	}
	if v.mode == UaeMetafile {
		m, err := v.meta(ctx, t.st, t.normal)
		if err != nil {
			return err
		}
		if m.present || m.dirty {
			m.meta.Date = when
			m.dirty = true
			t.st.dirty = true
		}
	}
	return nil
}

// Flush writes the sidecars of every directory changed since the last
// flush, in path order.
func (v *View) Flush(ctx context.Context) error {
	keys := make([]string, 0, len(v.dirs))
	for k, st := range v.dirs {
		if st.dirty {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	log := clog.FromContext(ctx)
	for _, k := range keys {
		st := v.dirs[k]
		switch v.mode {
		case UaeFsDb:
			b, err := BuildFsDb(st.nodes)
			if err != nil {
				return fmt.Errorf("building %s for %s: %w", FsDbFileName, volume.String(st.host), err)
			}
			log.Debugf("writing %d nodes to %s in %s", len(st.nodes), FsDbFileName, volume.String(st.host))
			if err := v.writeFile(ctx, volume.Join(st.host, FsDbFileName), b); err != nil {
				return err
			}
		case UaeMetafile:
			if err := v.flushMetafiles(ctx, st); err != nil {
				return err
			}
		}
		st.dirty = false
	}
	return nil
}

func (v *View) flushMetafiles(ctx context.Context, st *dirState) error {
	names := make([]string, 0, len(st.metas))
	for k, m := range st.metas {
		if m.dirty {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	for _, k := range names {
		m := st.metas[k]
		if m.meta.Date.IsZero() {
			if e, err := v.inner.Stat(ctx, volume.Join(st.host, m.normal)); err == nil {
				m.meta.Date = e.ModTime
			}
		}
		b, err := m.meta.MarshalText()
		if err != nil {
			return fmt.Errorf("metafile for %s: %w", volume.String(volume.Join(st.host, m.normal)), err)
		}
		if err := v.writeFile(ctx, volume.Join(st.host, m.normal+MetafileExtension), b); err != nil {
			return err
		}
		m.dirty, m.present = false, true
	}
	return nil
}

// Close flushes pending sidecars and closes the wrapped volume.
func (v *View) Close() error {
	return errors.Join(v.Flush(context.Background()), v.inner.Close())
}
