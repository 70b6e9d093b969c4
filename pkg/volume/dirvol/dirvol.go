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

// Package dirvol exposes a directory on the host filesystem as a volume.
// The host cannot store Amiga attributes, so the volume reports no attribute
// capability and the metadata codec takes over when attributes matter.
package dirvol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/amigatools/imager/pkg/fserrors"
	"github.com/amigatools/imager/pkg/volume"
)

var (
	_ volume.Volume        = (*Volume)(nil)
	_ volume.ModTimeSetter = (*Volume)(nil)
	_ volume.StreamReader  = (*Volume)(nil)
	_ volume.StreamWriter  = (*Volume)(nil)
)

type options struct {
	caseSensitive    bool
	caseSensitiveSet bool
	mkdir            bool
}

// Option configures New.
type Option func(*options) error

// WithCaseSensitive tells the volume whether the underlying filesystem should
// be treated as case-sensitive. If you do not specify this, it is determined
// by probing the directory.
func WithCaseSensitive(caseSensitive bool) Option {
	return func(opts *options) error {
		opts.caseSensitive = caseSensitive
		opts.caseSensitiveSet = true
		return nil
	}
}

// WithCreateDir creates the root directory if it does not exist.
func WithCreateDir(createDir bool) Option {
	return func(opts *options) error {
		opts.mkdir = createDir
		return nil
	}
}

// Volume is a host directory.
type Volume struct {
	base          string
	caseSensitive bool
	readOnly      bool
}

// New opens dir as a volume.
func New(dir string, opts ...Option) (*Volume, error) {
	var o options
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}

	fi, err := os.Stat(dir)
	switch {
	case err != nil && !os.IsNotExist(err):
		return nil, &fserrors.OpenError{Path: dir, Err: err}
	case err != nil:
		if !o.mkdir {
			return nil, &fserrors.PathNotFoundError{Path: dir}
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &fserrors.OpenError{Path: dir, Err: err}
		}
	case !fi.IsDir():
		return nil, &fserrors.NotDirectoryError{Path: dir}
	}

	v := &Volume{base: dir, caseSensitive: o.caseSensitive}
	if !o.caseSensitiveSet {
		v.caseSensitive, v.readOnly = probeCaseSensitive(dir)
	}
	return v, nil
}

// probeCaseSensitive checks whether the filesystem holding dir is
// case-sensitive. We cannot just use TempDir() because these might be
// different filesystems. A directory we cannot write into is reported as
// case-sensitive and read-only.
func probeCaseSensitive(dir string) (caseSensitive, readOnly bool) {
	for i := 0; ; i++ {
		filename := fmt.Sprintf("test-dirvol-%d", i)
		if _, err := os.Stat(filepath.Join(dir, filename)); err == nil {
			continue
		}
		if err := os.WriteFile(filepath.Join(dir, filename), []byte("test"), 0o600); err != nil {
			return true, true
		}
		if _, err := os.Stat(filepath.Join(dir, strings.ToUpper(filename))); err != nil {
			caseSensitive = true
		}
		// clean up our own messes
		_ = os.Remove(filepath.Join(dir, filename))
		return caseSensitive, false
	}
}

func (v *Volume) Name() string { return v.base }

func (v *Volume) Capabilities() volume.Capabilities {
	return volume.Capabilities{
		Writable:        !v.readOnly,
		CaseInsensitive: !v.caseSensitive,
	}
}

// hostPath validates the segments of path and joins them below the base.
func (v *Volume) hostPath(path []string) (string, error) {
	for _, seg := range path {
		if seg == "" || seg == "." || seg == ".." || strings.ContainsRune(seg, '/') ||
			(filepath.Separator != '/' && strings.ContainsRune(seg, filepath.Separator)) {
			return "", fmt.Errorf("invalid name %q for host path below %s", seg, v.base)
		}
	}
	return filepath.Join(append([]string{v.base}, path...)...), nil
}

func (v *Volume) ReadDir(_ context.Context, dir []string) ([]volume.Entry, error) {
	p, err := v.hostPath(dir)
	if err != nil {
		return nil, err
	}
	des, err := os.ReadDir(p)
	if err != nil {
		return nil, v.pathError(dir, err)
	}
	entries := make([]volume.Entry, 0, len(des))
	for _, de := range des {
		fi, err := de.Info()
		if err != nil {
			// vanished between listing and stat
			continue
		}
		if e, ok := toEntry(volume.Join(dir, de.Name()), fi); ok {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (v *Volume) Stat(_ context.Context, path []string) (volume.Entry, error) {
	p, err := v.hostPath(path)
	if err != nil {
		return volume.Entry{}, err
	}
	fi, err := os.Stat(p)
	if err != nil {
		return volume.Entry{}, v.pathError(path, err)
	}
	e, _ := toEntry(path, fi)
	return e, nil
}

// toEntry converts host file info. Anything that is neither a regular file
// nor a directory, such as a socket or device node, is skipped.
func toEntry(path []string, fi fs.FileInfo) (volume.Entry, bool) {
	e := volume.Entry{
		Name:    volume.Base(path),
		Path:    path,
		ModTime: fi.ModTime(),
	}
	switch {
	case fi.IsDir():
		e.Type = volume.Dir
	case fi.Mode().IsRegular():
		e.Type = volume.File
		e.Size = uint64(fi.Size())
	default:
		return e, false
	}
	return e, true
}

func (v *Volume) pathError(path []string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return volume.NotFound(path)
	}
	return fmt.Errorf("%s: %w", volume.String(path), err)
}

func (v *Volume) OpenRead(_ context.Context, path []string) (io.ReadCloser, error) {
	p, err := v.hostPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, v.pathError(path, err)
	}
	return f, nil
}

func (v *Volume) OpenWrite(_ context.Context, path []string, truncate bool) (io.WriteCloser, error) {
	if v.readOnly {
		return nil, volume.ErrReadOnly
	}
	p, err := v.hostPath(path)
	if err != nil {
		return nil, err
	}
	flag := os.O_CREATE | os.O_WRONLY
	if truncate {
		flag |= os.O_TRUNC
	} else {
		flag |= os.O_APPEND
	}
	f, err := os.OpenFile(p, flag, 0o644)
	if err != nil {
		return nil, v.pathError(path, err)
	}
	return f, nil
}

func (v *Volume) CreateDirectory(_ context.Context, path []string) error {
	if len(path) == 0 {
		return nil
	}
	if v.readOnly {
		return volume.ErrReadOnly
	}
	p, err := v.hostPath(path)
	if err != nil {
		return err
	}
	err = os.Mkdir(p, 0o755)
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrExist) {
		fi, serr := os.Stat(p)
		if serr == nil && fi.IsDir() {
			return nil
		}
		return &fserrors.NotDirectoryError{Path: volume.String(path)}
	}
	return v.pathError(path, err)
}

func (v *Volume) CreateFile(ctx context.Context, path []string) error {
	w, err := v.OpenWrite(ctx, path, true)
	if err != nil {
		return err
	}
	return w.Close()
}

func (v *Volume) SetModTime(_ context.Context, path []string, t time.Time) error {
	p, err := v.hostPath(path)
	if err != nil {
		return err
	}
	return os.Chtimes(p, t, t)
}

func (v *Volume) ReadStream(_ context.Context, path []string, stream string) ([]byte, error) {
	p, err := v.hostPath(path)
	if err != nil {
		return nil, err
	}
	return readStream(p, stream)
}

func (v *Volume) WriteStream(_ context.Context, path []string, stream string, data []byte) error {
	if v.readOnly {
		return volume.ErrReadOnly
	}
	p, err := v.hostPath(path)
	if err != nil {
		return err
	}
	return writeStream(p, stream, data)
}

func (v *Volume) Close() error { return nil }
