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

package vpath

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/amigatools/imager/pkg/fserrors"
)

// MemoryPrefix starts the media identity of in-memory media.
const MemoryPrefix = "mem:"

var devicePathRegex = regexp.MustCompile(`(?i)^(\\\\\.\\PHYSICALDRIVE\d+|/dev/[^/\\]+)`)

var containerExtensions = map[string]bool{
	".adf":  true,
	".hdf":  true,
	".hdx":  true,
	".img":  true,
	".ima":  true,
	".raw":  true,
	".bin":  true,
	".dsk":  true,
	".vhd":  true,
	".iso":  true,
	".lha":  true,
	".lzh":  true,
	".lzx":  true,
	".zip":  true,
	".z":    true,
	".tar":  true,
	".tgz":  true,
	".gz":   true,
	".cpio": true,
}

// IsContainerExtension reports whether name ends in an extension that makes
// it an image or archive rather than a plain file.
func IsContainerExtension(name string) bool {
	return containerExtensions[strings.ToLower(filepath.Ext(name))]
}

type resolver struct {
	// sep is the host path separator. '\' is only a separator on hosts
	// where it is the native one, elsewhere it is a legal name character.
	sep       byte
	forceHost bool
	abs       func(string) (string, error)
}

// Resolve parses path into a Location.
func Resolve(path string) (*Location, error) {
	r := resolver{sep: filepath.Separator, abs: filepath.Abs}
	return r.resolve(path)
}

// ResolveHost parses path as a location on the host filesystem, even when it
// names something that looks like an image or archive.
func ResolveHost(path string) (*Location, error) {
	r := resolver{sep: filepath.Separator, forceHost: true, abs: filepath.Abs}
	return r.resolve(path)
}

func (r resolver) isSep(c byte) bool {
	return c == '/' || (r.sep == '\\' && c == '\\')
}

func (r resolver) split(s string) []string {
	return strings.FieldsFunc(s, func(c rune) bool { return c < 0x80 && r.isSep(byte(c)) })
}

func (r resolver) resolve(path string) (*Location, error) {
	if strings.TrimSpace(path) == "" {
		return nil, &fserrors.ParseError{Path: path, Reason: "empty path"}
	}
	loc := &Location{Raw: path}

	rest := path
	if rest[0] == '+' {
		end := strings.IndexFunc(rest, func(c rune) bool { return c < 0x80 && r.isSep(byte(c)) })
		if end < 0 || end == len(rest)-1 {
			return nil, &fserrors.ParseError{Path: path, Reason: "modifier without media"}
		}
		switch token := strings.ToLower(rest[1:end]); token {
		case "bs":
			loc.Modifiers |= ByteSwap
		default:
			return nil, &fserrors.ParseError{Path: path, Reason: "unknown modifier +" + token}
		}
		rest = rest[end+1:]
	}

	var remainder string
	switch {
	case r.forceHost:
		return r.resolveHost(loc, rest)
	case devicePathRegex.MatchString(rest):
		m := devicePathRegex.FindString(rest)
		loc.Kind = MediaDevice
		loc.MediaPath = m
		remainder = rest[len(m):]
	case strings.HasPrefix(strings.ToLower(rest), MemoryPrefix):
		name := rest[len(MemoryPrefix):]
		if i := strings.IndexFunc(name, func(c rune) bool { return c < 0x80 && r.isSep(byte(c)) }); i >= 0 {
			name, remainder = name[:i], name[i:]
		}
		if name == "" {
			return nil, &fserrors.ParseError{Path: path, Reason: "missing media name"}
		}
		loc.Kind = MediaMemory
		loc.MediaPath = name
	default:
		end := r.mediaEnd(rest)
		if end < 0 {
			return r.resolveHost(loc, rest)
		}
		loc.Kind = MediaFile
		loc.MediaPath = rest[:end]
		remainder = rest[end:]
	}

	segments := r.split(remainder)
	chain, segments, err := parseChain(path, segments)
	if err != nil {
		return nil, err
	}
	loc.Chain = chain

	loc.VolumePath, err = cleanSegments(path, segments)
	if err != nil {
		return nil, err
	}
	return loc, nil
}

// mediaEnd returns the index just past the first path segment carrying a
// container extension, or -1.
func (r resolver) mediaEnd(s string) int {
	start := 0
	for i := 0; i <= len(s); i++ {
		if i < len(s) && !r.isSep(s[i]) {
			continue
		}
		if i > start && IsContainerExtension(s[start:i]) {
			return i
		}
		start = i + 1
	}
	return -1
}

func (r resolver) resolveHost(loc *Location, rest string) (*Location, error) {
	abs, err := r.abs(rest)
	if err != nil {
		return nil, &fserrors.ParseError{Path: loc.Raw, Reason: err.Error()}
	}
	vol := filepath.VolumeName(abs)
	loc.Kind = MediaHost
	loc.MediaPath = vol + string(r.sep)
	segments, err := cleanSegments(loc.Raw, r.split(abs[len(vol):]))
	if err != nil {
		return nil, err
	}
	loc.VolumePath = segments
	return loc, nil
}

func parseChain(path string, segments []string) ([]Selector, []string, error) {
	var chain []Selector
	for len(segments) > 0 {
		var table TableKind
		switch strings.ToLower(segments[0]) {
		case "mbr":
			table = Mbr
		case "gpt":
			table = Gpt
		case "rdb":
			table = Rdb
		default:
			return chain, segments, nil
		}
		if len(segments) < 2 {
			return nil, nil, &fserrors.ParseError{Path: path, Reason: table.String() + " requires a partition number or name"}
		}

		part := Selector{Kind: Partition}
		n, err := strconv.Atoi(segments[1])
		switch {
		case err == nil && n < 1:
			return nil, nil, &fserrors.ParseError{Path: path, Reason: "partition numbers start at 1"}
		case err == nil:
			part.Index = n
		case table == Rdb:
			part.DriveName = segments[1]
		default:
			return nil, nil, &fserrors.ParseError{Path: path, Reason: table.String() + " partition must be a number, got " + segments[1]}
		}
		chain = append(chain, Selector{Kind: PartitionTable, Table: table}, part)
		segments = segments[2:]
	}
	return chain, segments, nil
}

func cleanSegments(path string, segments []string) ([]string, error) {
	out := make([]string, 0, len(segments))
	for _, s := range segments {
		switch s {
		case "", ".":
		case "..":
			if len(out) == 0 {
				return nil, &fserrors.ParseError{Path: path, Reason: "path escapes the volume root"}
			}
			out = out[:len(out)-1]
		default:
			out = append(out, s)
		}
	}
	return out, nil
}
