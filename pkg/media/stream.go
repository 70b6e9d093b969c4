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

package media

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/amigatools/imager/pkg/volume"
)

// Stream is a window of raw media: a whole image or device, or one
// partition of it.
type Stream interface {
	io.ReaderAt
	io.WriterAt
	Size() int64
}

type fileStream struct {
	f        *os.File
	size     int64
	writable bool
}

func openFile(path string, access Access) (*fileStream, error) {
	flag := os.O_RDONLY
	if access == ReadWrite {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, err
	}
	// block devices report a zero size through Stat
	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("determining size of %s: %w", path, err)
	}
	return &fileStream{f: f, size: size, writable: access == ReadWrite}, nil
}

func (s *fileStream) ReadAt(p []byte, off int64) (int, error) { return s.f.ReadAt(p, off) }

func (s *fileStream) WriteAt(p []byte, off int64) (int, error) {
	if !s.writable {
		return 0, volume.ErrReadOnly
	}
	return s.f.WriteAt(p, off)
}

func (s *fileStream) Size() int64 { return s.size }

func (s *fileStream) Close() error { return s.f.Close() }

type section struct {
	base      Stream
	off, size int64
}

// Section returns the size bytes of s starting at off.
func Section(s Stream, off, size int64) Stream {
	return &section{base: s, off: off, size: size}
}

func (s *section) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	if off >= s.size {
		return 0, io.EOF
	}
	if limit := s.size - off; int64(len(p)) > limit {
		n, err := s.base.ReadAt(p[:limit], s.off+off)
		if err == nil {
			err = io.EOF
		}
		return n, err
	}
	return s.base.ReadAt(p, s.off+off)
}

func (s *section) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > s.size {
		return 0, fmt.Errorf("write of %d bytes at %d is outside the partition", len(p), off)
	}
	return s.base.WriteAt(p, s.off+off)
}

func (s *section) Size() int64 { return s.size }

type swapped struct {
	base Stream
}

// ByteSwapped reverses the byte order of every 16-bit word of s, for images
// dumped from drives attached with swapped data lines.
func ByteSwapped(s Stream) Stream {
	return &swapped{base: s}
}

func swapWords(b []byte) {
	for i := 0; i+1 < len(b); i += 2 {
		b[i], b[i+1] = b[i+1], b[i]
	}
}

func (s *swapped) ReadAt(p []byte, off int64) (int, error) {
	start := off &^ 1
	end := (off + int64(len(p)) + 1) &^ 1
	buf := make([]byte, end-start)
	n, err := s.base.ReadAt(buf, start)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, err
	}
	swapWords(buf[:n&^1])

	skip := int(off - start)
	if n <= skip {
		return 0, io.EOF
	}
	c := copy(p, buf[skip:n])
	if c < len(p) {
		return c, io.EOF
	}
	return c, nil
}

func (s *swapped) WriteAt(p []byte, off int64) (int, error) {
	start := off &^ 1
	end := (off + int64(len(p)) + 1) &^ 1
	buf := make([]byte, end-start)
	if start != off || end != off+int64(len(p)) {
		// partial words at either edge keep their other byte
		if _, err := s.ReadAt(buf, start); err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
	}
	copy(buf[off-start:], p)
	swapWords(buf)
	if _, err := s.base.WriteAt(buf, start); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *swapped) Size() int64 { return s.base.Size() }
