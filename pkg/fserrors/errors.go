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

// Package fserrors holds the typed errors returned by path resolution,
// volume drivers and the copy engine. Callers inspect them with errors.As.
package fserrors

import (
	"errors"
	"fmt"
)

// PathNotFoundError is returned when a container selector, a volume path or
// a destination parent does not exist.
type PathNotFoundError struct {
	Path   string
	Reason string
}

func (e *PathNotFoundError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("path %q not found: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("path %q not found", e.Path)
}

// CyclicPathError is returned when the destination lies inside the source
// subtree being traversed on the same volume.
type CyclicPathError struct {
	Source      string
	Destination string
}

func (e *CyclicPathError) Error() string {
	return fmt.Sprintf("destination %q is inside source %q", e.Destination, e.Source)
}

// SelfCopyError is returned when source and destination denote the same entry.
type SelfCopyError struct {
	Path string
}

func (e *SelfCopyError) Error() string {
	return fmt.Sprintf("cannot copy %q onto itself", e.Path)
}

// FileExistsError is returned when a destination file exists and overwrite
// was not requested.
type FileExistsError struct {
	Path string
}

func (e *FileExistsError) Error() string {
	return fmt.Sprintf("file %q already exists", e.Path)
}

// NotDirectoryError is returned when a path that must be a directory names
// a file.
type NotDirectoryError struct {
	Path string
}

func (e *NotDirectoryError) Error() string {
	return fmt.Sprintf("path %q is not a directory", e.Path)
}

// VersionNotFoundError is returned when a filesystem payload has no version
// string and no override was supplied.
type VersionNotFoundError struct {
	Name string
}

func (e *VersionNotFoundError) Error() string {
	return fmt.Sprintf("version string not found in %q", e.Name)
}

// ParseError is returned when a path string does not match the path grammar.
type ParseError struct {
	Path   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid path %q: %s", e.Path, e.Reason)
}

// OpenError is returned when a container or volume fails to mount.
type OpenError struct {
	Path string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open %q: %v", e.Path, e.Err)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}

// Kind names the typed error found in err's chain, or "Error" if there is none.
func Kind(err error) string {
	var (
		notFound   *PathNotFoundError
		cyclic     *CyclicPathError
		self       *SelfCopyError
		exists     *FileExistsError
		notDir     *NotDirectoryError
		noVersion  *VersionNotFoundError
		parse      *ParseError
		openFailed *OpenError
	)
	switch {
	case errors.As(err, &self):
		return "SelfCopyError"
	case errors.As(err, &cyclic):
		return "CyclicPathError"
	case errors.As(err, &exists):
		return "FileExistsError"
	case errors.As(err, &notDir):
		return "NotDirectoryError"
	case errors.As(err, &noVersion):
		return "VersionNotFoundError"
	case errors.As(err, &parse):
		return "ParseError"
	case errors.As(err, &notFound):
		return "PathNotFoundError"
	case errors.As(err, &openFailed):
		return "OpenError"
	}
	return "Error"
}
