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

	"golang.org/x/exp/slices"

	"github.com/amigatools/imager/pkg/fserrors"
	"github.com/amigatools/imager/pkg/volume"
	"github.com/amigatools/imager/pkg/vpath"
	"github.com/amigatools/imager/pkg/walk"
)

// Item is one source entry and the destination path it is copied to.
type Item struct {
	Source volume.Entry
	Dest   []string
}

// Plan is everything a copy does, worked out before the destination is
// touched.
type Plan struct {
	Items []Item
	// Dirs are created before any item, parents first.
	Dirs [][]string
}

// source is the enumerated source of a copy.
type source struct {
	loc     *vpath.Location
	dir     []string
	pattern string
	// single is set when the source names one file.
	single  bool
	entries []volume.Entry
}

func enumerate(ctx context.Context, v volume.Volume, loc *vpath.Location, recursive bool) (*source, error) {
	s := &source{loc: loc}
	s.dir, s.pattern = loc.Pattern()

	it, err := walk.Enumerate(ctx, v, s.dir, s.pattern, recursive)
	if err != nil {
		return nil, fmt.Errorf("enumerating %s: %w", loc, err)
	}
	if s.entries, err = walk.Collect(ctx, it); err != nil {
		return nil, fmt.Errorf("enumerating %s: %w", loc, err)
	}
	s.single = s.pattern == "" && len(s.entries) == 1 &&
		s.entries[0].Type == volume.File && slices.Equal(s.entries[0].Path, s.dir)
	return s, nil
}

// relative returns the path of e below the traversal root.
func (s *source) relative(e volume.Entry) []string {
	if len(e.Path) < len(s.dir) {
		return []string{e.Name}
	}
	return e.Path[len(s.dir):]
}

// planCopy validates a copy of src into dest on dv and lists what it does.
// Nothing is modified.
func planCopy(ctx context.Context, src *source, dest *vpath.Location, dv volume.Volume, recursive, makeDir bool) (*Plan, error) {
	ci := dv.Capabilities().CaseInsensitive
	same := src.loc.Key() == dest.Key()
	destPath := dest.VolumePath

	if same && !src.single && volume.HasPrefix(destPath, src.dir, ci) {
		return nil, &fserrors.CyclicPathError{Source: src.loc.String(), Destination: dest.String()}
	}

	p := &Plan{}
	if err := p.addParents(ctx, dv, destPath, makeDir); err != nil {
		return nil, err
	}
	destType := volume.None
	if len(p.Dirs) == 0 {
		var err error
		if destType, err = volume.Exists(ctx, dv, destPath); err != nil {
			return nil, fmt.Errorf("checking destination %s: %w", dest, err)
		}
	}

	if src.single {
		e := src.entries[0]
		target := destPath
		if destType == volume.Dir {
			target = volume.Join(destPath, e.Name)
		}
		if same && volume.Equal(target, e.Path, ci) {
			return nil, &fserrors.SelfCopyError{Path: dest.String()}
		}
		p.Items = append(p.Items, Item{Source: e, Dest: target})
		return p, nil
	}

	switch destType {
	case volume.File:
		return nil, &fserrors.NotDirectoryError{Path: dest.String()}
	case volume.None:
		p.Dirs = append(p.Dirs, slices.Clone(destPath))
	}
	for _, e := range src.entries {
		if e.Type == volume.Dir && !recursive {
			continue
		}
		p.Items = append(p.Items, Item{Source: e, Dest: volume.Join(destPath, src.relative(e)...)})
	}
	return p, nil
}

// addParents checks the directories above path. Missing ones are queued
// for creation when makeDir is set.
func (p *Plan) addParents(ctx context.Context, v volume.Volume, path []string, makeDir bool) error {
	for i := 1; i < len(path); i++ {
		dir := path[:i]
		t, err := volume.Exists(ctx, v, dir)
		switch {
		case err != nil:
			return fmt.Errorf("checking %s: %w", volume.String(dir), err)
		case t == volume.File:
			return &fserrors.NotDirectoryError{Path: volume.String(dir)}
		case t == volume.Dir:
			continue
		case !makeDir:
			return &fserrors.PathNotFoundError{Path: volume.String(dir), Reason: "destination directory does not exist"}
		}
		// everything below a missing directory is missing too
		for ; i < len(path); i++ {
			p.Dirs = append(p.Dirs, slices.Clone(path[:i]))
		}
	}
	return nil
}
