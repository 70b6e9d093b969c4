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

// Package vpath parses virtual paths such as
//
//	+bs/images/4gb.hdf/rdb/dh0/devs/*.device
//
// into a Location: the media to open, modifiers applied to its raw stream,
// the chain of partition selections leading to a volume and the path inside
// that volume. Parsing never touches storage.
package vpath

import (
	"fmt"
	"strconv"
	"strings"
)

// MediaKind tells the registry how to open Location.MediaPath.
type MediaKind int

const (
	// MediaHost is a directory tree on the host filesystem.
	MediaHost MediaKind = iota
	// MediaFile is an image or archive file on the host filesystem.
	MediaFile
	// MediaDevice is a physical drive.
	MediaDevice
	// MediaMemory is media previously mounted in the registry by name.
	MediaMemory
)

func (k MediaKind) String() string {
	switch k {
	case MediaHost:
		return "host"
	case MediaFile:
		return "file"
	case MediaDevice:
		return "device"
	case MediaMemory:
		return "mem"
	}
	return fmt.Sprintf("MediaKind(%d)", int(k))
}

// Modifier alters how the raw media stream is read and written.
type Modifier uint

const (
	// ByteSwap reverses the byte order of every 16-bit word.
	ByteSwap Modifier = 1 << iota
)

// Has reports whether m contains all of o.
func (m Modifier) Has(o Modifier) bool {
	return m&o == o
}

// TableKind is a partition table format.
type TableKind int

const (
	Mbr TableKind = iota
	Gpt
	Rdb
)

func (t TableKind) String() string {
	switch t {
	case Mbr:
		return "mbr"
	case Gpt:
		return "gpt"
	case Rdb:
		return "rdb"
	}
	return fmt.Sprintf("TableKind(%d)", int(t))
}

// SelectorKind tags a Selector.
type SelectorKind int

const (
	// RootMedia selects the whole media.
	RootMedia SelectorKind = iota
	// PartitionTable selects a partition table of Selector.Table kind.
	PartitionTable
	// Partition selects one partition of the preceding table, by
	// Selector.Index (1-based) or Selector.DriveName.
	Partition
)

// Selector is one step of a container chain.
type Selector struct {
	Kind      SelectorKind
	Table     TableKind
	Index     int
	DriveName string
}

func (s Selector) String() string {
	switch s.Kind {
	case RootMedia:
		return "root"
	case PartitionTable:
		return s.Table.String()
	case Partition:
		if s.DriveName != "" {
			return s.DriveName
		}
		return strconv.Itoa(s.Index)
	}
	return "?"
}

// Location is a resolved virtual path. It is never modified after Resolve
// returns it.
type Location struct {
	// Raw is the string the location was resolved from.
	Raw        string
	Kind       MediaKind
	MediaPath  string
	Modifiers  Modifier
	Chain      []Selector
	VolumePath []string
}

// Key identifies the volume a location resolves to. Two locations with the
// same key address the same volume even when they are opened as separate
// instances.
func (l *Location) Key() string {
	var b strings.Builder
	b.WriteString(l.Kind.String())
	b.WriteByte(':')
	b.WriteString(l.MediaPath)
	if l.Modifiers.Has(ByteSwap) {
		b.WriteString("+bs")
	}
	for _, s := range l.Chain {
		b.WriteByte('|')
		b.WriteString(strings.ToLower(s.String()))
	}
	return b.String()
}

// Pattern splits VolumePath into the directory and a trailing glob pattern.
// The pattern is empty when the last segment has no glob metacharacters.
func (l *Location) Pattern() ([]string, string) {
	return SplitPattern(l.VolumePath)
}

// Display renders the volume path for messages.
func (l *Location) Display() string {
	return "/" + strings.Join(l.VolumePath, "/")
}

func (l *Location) String() string {
	if l.Raw != "" {
		return l.Raw
	}
	parts := []string{l.MediaPath}
	for _, s := range l.Chain {
		if s.Kind != RootMedia {
			parts = append(parts, s.String())
		}
	}
	parts = append(parts, l.VolumePath...)
	return strings.Join(parts, "/")
}

// HasGlob reports whether segment contains glob metacharacters.
func HasGlob(segment string) bool {
	return strings.ContainsAny(segment, "*?")
}

// SplitPattern returns segments without a trailing pattern segment, and the
// pattern itself.
func SplitPattern(segments []string) ([]string, string) {
	if len(segments) == 0 || !HasGlob(segments[len(segments)-1]) {
		return segments, ""
	}
	return segments[:len(segments)-1], segments[len(segments)-1]
}
