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

package volume

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/amigatools/imager/pkg/amiga"
)

var (
	// ErrReadOnly is returned by mutating calls on a volume that cannot be written.
	ErrReadOnly = errors.New("volume is read-only")
	// ErrNoStream is returned by StreamReader when an entry has no such
	// stream, or the host cannot attach streams to files at all.
	ErrNoStream = errors.New("no such stream")
)

// EntryType is the kind of an entry, or None when a path does not exist.
type EntryType int

const (
	None EntryType = iota
	File
	Dir
)

func (t EntryType) String() string {
	switch t {
	case File:
		return "file"
	case Dir:
		return "dir"
	}
	return "none"
}

// Attributes are the Amiga attributes of an entry.
type Attributes struct {
	Protection amiga.Protection
	Comment    string
}

// IsDefault reports whether a carries nothing a fresh entry would not have.
func (a *Attributes) IsDefault() bool {
	return a == nil || (a.Protection.IsDefault() && a.Comment == "")
}

// Entry is a file or directory inside a volume.
type Entry struct {
	Name string
	Type EntryType
	// Path is the full path of the entry inside its volume.
	Path []string
	// RelativePath is the slash separated path relative to the traversal root.
	RelativePath string
	Size         uint64
	// Attributes is nil when the volume has no notion of them.
	Attributes *Attributes
	// ModTime is zero when unknown.
	ModTime time.Time
}

// Capabilities describe what a volume can store natively.
type Capabilities struct {
	// Attributes is set when protection bits are stored natively.
	Attributes bool
	// Comments is set when comments are stored natively.
	Comments bool
	// Writable is set when the mutating calls are supported.
	Writable bool
	// CaseInsensitive is set when names differing only in case are the same
	// entry.
	CaseInsensitive bool
}

// Volume is an opened filesystem or archive. All paths are segments relative
// to the volume root; the empty path is the root, which always exists.
type Volume interface {
	// Name describes the volume for log output.
	Name() string
	Capabilities() Capabilities
	// ReadDir returns the direct children of dir in the order the volume
	// stores them.
	ReadDir(ctx context.Context, dir []string) ([]Entry, error)
	// Stat returns the entry at path, or a PathNotFoundError.
	Stat(ctx context.Context, path []string) (Entry, error)
	OpenRead(ctx context.Context, path []string) (io.ReadCloser, error)
	// OpenWrite opens path for writing, creating it if needed. The parent
	// directory must exist.
	OpenWrite(ctx context.Context, path []string, truncate bool) (io.WriteCloser, error)
	// CreateDirectory creates a directory below an existing parent. It is
	// not an error if the directory already exists.
	CreateDirectory(ctx context.Context, path []string) error
	// CreateFile creates an empty file, truncating an existing one.
	CreateFile(ctx context.Context, path []string) error
	// Close releases the volume and everything it holds open.
	Close() error
}

// Attributer is implemented by volumes whose Capabilities report attribute
// or comment support.
type Attributer interface {
	GetProtectionBits(ctx context.Context, path []string) (amiga.Protection, error)
	SetProtectionBits(ctx context.Context, path []string, p amiga.Protection) error
	GetComment(ctx context.Context, path []string) (string, error)
	SetComment(ctx context.Context, path []string, comment string) error
}

// ModTimeSetter is implemented by volumes that can record modification times.
type ModTimeSetter interface {
	SetModTime(ctx context.Context, path []string, t time.Time) error
}

// Flusher is implemented by volumes that buffer state until Close.
type Flusher interface {
	Flush(ctx context.Context) error
}

// StreamReader is implemented by host-backed volumes that can read named
// streams attached to a file: alternate data streams on Windows, extended
// attributes elsewhere.
type StreamReader interface {
	ReadStream(ctx context.Context, path []string, stream string) ([]byte, error)
}

// StreamWriter is the writing side of StreamReader.
type StreamWriter interface {
	WriteStream(ctx context.Context, path []string, stream string, data []byte) error
}
