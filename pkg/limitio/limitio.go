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

// Package limitio bounds reads from archive members and handler files whose
// size is not trusted.
package limitio

import (
	"fmt"
	"io"
)

// SizeLimitExceededError is returned when a reader yields more than its limit.
type SizeLimitExceededError struct {
	Name  string
	Limit int64
}

func (e *SizeLimitExceededError) Error() string {
	return fmt.Sprintf("%s is larger than %d bytes", e.Name, e.Limit)
}

// Reader returns at most Limit bytes of R. Unlike io.LimitedReader, hitting
// the limit while R still has data is an error rather than EOF.
type Reader struct {
	r        io.Reader
	name     string
	limit    int64
	n        int64
	exceeded bool
}

// NewReader limits r to limit bytes. A negative limit returns r unwrapped.
// name identifies the data in errors.
func NewReader(r io.Reader, name string, limit int64) io.Reader {
	if limit < 0 {
		return r
	}
	return &Reader{r: r, name: name, limit: limit, n: limit}
}

func (l *Reader) Read(p []byte) (int, error) {
	if l.exceeded {
		return 0, &SizeLimitExceededError{Name: l.name, Limit: l.limit}
	}
	if l.n <= 0 {
		// the limit is reached; one more byte means the data is too large
		var one [1]byte
		if nn, _ := l.r.Read(one[:]); nn > 0 {
			l.exceeded = true
			return 0, &SizeLimitExceededError{Name: l.name, Limit: l.limit}
		}
		return 0, io.EOF
	}
	if int64(len(p)) > l.n {
		p = p[:l.n]
	}
	n, err := l.r.Read(p)
	l.n -= int64(n)
	return n, err
}

// ReadCloser keeps the Close of the wrapped reader.
type ReadCloser struct {
	io.Reader
	io.Closer
}

// NewReadCloser is NewReader for an io.ReadCloser.
func NewReadCloser(rc io.ReadCloser, name string, limit int64) io.ReadCloser {
	return ReadCloser{Reader: NewReader(rc, name, limit), Closer: rc}
}
