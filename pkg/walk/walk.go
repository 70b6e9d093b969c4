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

// Package walk enumerates the entries of a volume lazily, in pre-order.
package walk

import (
	"context"
	"fmt"

	"github.com/amigatools/imager/pkg/fserrors"
	"github.com/amigatools/imager/pkg/volume"
)

// Iterator is a forward-only sequence of entries. It cannot be restarted.
type Iterator struct {
	v         volume.Volume
	recursive bool

	// pending entries, next one last
	stack []volume.Entry
	// directory whose children are read when the iterator advances
	expand *volume.Entry
	cur    volume.Entry
	err    error
}

// Enumerate starts a traversal of v at start. A non-empty pattern selects
// which direct children of start are yielded; matched directories are
// descended without filtering when recursive is set. When start is a file
// and there is no pattern, the traversal yields that file alone.
func Enumerate(ctx context.Context, v volume.Volume, start []string, pattern string, recursive bool) (*Iterator, error) {
	it := &Iterator{v: v, recursive: recursive}

	if len(start) > 0 {
		e, err := v.Stat(ctx, start)
		if err != nil {
			return nil, err
		}
		if e.Type == volume.File {
			if pattern != "" {
				return nil, &fserrors.NotDirectoryError{Path: volume.String(start)}
			}
			e.RelativePath = e.Name
			it.stack = []volume.Entry{e}
			return it, nil
		}
	}

	children, err := v.ReadDir(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", volume.String(start), err)
	}
	if pattern != "" {
		m := NewMatcher(pattern)
		matched := children[:0:0]
		for _, c := range children {
			if m.Match(c.Name) {
				matched = append(matched, c)
			}
		}
		children = matched
	}
	it.push("", children)
	return it, nil
}

func (it *Iterator) push(parent string, children []volume.Entry) {
	for i := len(children) - 1; i >= 0; i-- {
		c := children[i]
		c.RelativePath = c.Name
		if parent != "" {
			c.RelativePath = parent + "/" + c.Name
		}
		it.stack = append(it.stack, c)
	}
}

// Next advances to the next entry. It returns false when the traversal is
// exhausted or failed; Err tells which.
func (it *Iterator) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		it.err = err
		return false
	}
	if d := it.expand; d != nil {
		it.expand = nil
		children, err := it.v.ReadDir(ctx, d.Path)
		if err != nil {
			it.err = fmt.Errorf("reading %s: %w", volume.String(d.Path), err)
			return false
		}
		it.push(d.RelativePath, children)
	}
	if len(it.stack) == 0 {
		return false
	}
	it.cur = it.stack[len(it.stack)-1]
	it.stack = it.stack[:len(it.stack)-1]
	if it.recursive && it.cur.Type == volume.Dir {
		d := it.cur
		it.expand = &d
	}
	return true
}

// Entry returns the current entry.
func (it *Iterator) Entry() volume.Entry { return it.cur }

// Err returns the error that ended the traversal, if any.
func (it *Iterator) Err() error { return it.err }

// Collect drains it.
func Collect(ctx context.Context, it *Iterator) ([]volume.Entry, error) {
	var entries []volume.Entry
	for it.Next(ctx) {
		entries = append(entries, it.Entry())
	}
	return entries, it.Err()
}
