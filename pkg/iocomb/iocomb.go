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

// Package iocomb opens the log destinations named by a log policy.
package iocomb

import (
	"errors"
	"io"
	"os"
	"path/filepath"
)

// Builtin targets. Any other target is a file path, appended to.
const (
	Stderr  = "builtin:stderr"
	Stdout  = "builtin:stdout"
	Discard = "builtin:discard"
)

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// Open returns a writer for a single target.
func Open(target string) (io.WriteCloser, error) {
	switch target {
	case Stderr, "":
		return nopCloser{os.Stderr}, nil
	case Stdout:
		return nopCloser{os.Stdout}, nil
	case Discard:
		return nopCloser{io.Discard}, nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
}

type multi struct {
	io.Writer
	closers []io.Closer
}

func (m *multi) Close() error {
	var errs []error
	for _, c := range m.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Combine returns a writer which writes to every target. No targets means
// stderr.
func Combine(targets []string) (io.WriteCloser, error) {
	if len(targets) <= 1 {
		var t string
		if len(targets) == 1 {
			t = targets[0]
		}
		return Open(t)
	}

	m := &multi{}
	writers := make([]io.Writer, 0, len(targets))
	for _, target := range targets {
		w, err := Open(target)
		if err != nil {
			_ = m.Close()
			return nil, err
		}
		writers = append(writers, w)
		m.closers = append(m.closers, w)
	}
	m.Writer = io.MultiWriter(writers...)
	return m, nil
}
