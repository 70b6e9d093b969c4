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

package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/pgzip"

	"github.com/amigatools/imager/pkg/limitio"
)

// maxTarSize bounds the decompressed size of a gzip compressed TAR archive.
const maxTarSize = 4 << 30

// countingReader tracks how far into the archive the tar reader has read,
// which after Next is the offset of the member's data.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// OpenTar indexes the TAR archive held in r. Member data is served straight
// from r, so r must stay valid until the volume is closed.
func OpenTar(name string, r io.ReaderAt, size int64, closer io.Closer) (*Volume, error) {
	cr := &countingReader{r: io.NewSectionReader(r, 0, size)}
	tr := tar.NewReader(cr)

	v := newVolume(name, closer)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading tar header: %w", err)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := v.add(hdr.Name, true, 0, hdr.ModTime, nil); err != nil {
				return nil, err
			}
		case tar.TypeReg, tar.TypeRegA: //nolint:staticcheck
			offset, length := cr.n, hdr.Size
			open := func() (io.ReadCloser, error) {
				return io.NopCloser(io.NewSectionReader(r, offset, length)), nil
			}
			if err := v.add(hdr.Name, false, uint64(hdr.Size), hdr.ModTime, open); err != nil {
				return nil, err
			}
		default:
			// links and device nodes have no counterpart on an Amiga volume
			continue
		}
	}
	return v, nil
}

// OpenTarGzip decompresses a gzip compressed TAR archive into a temporary
// file and indexes that. The temporary file is removed when the volume is
// closed, together with closer.
func OpenTarGzip(name string, r io.ReaderAt, size int64, closer io.Closer) (*Volume, error) {
	zr, err := pgzip.NewReader(io.NewSectionReader(r, 0, size))
	if err != nil {
		return nil, fmt.Errorf("opening gzip stream: %w", err)
	}
	defer zr.Close()

	tmp, err := os.CreateTemp("", "imager-tar-*")
	if err != nil {
		return nil, fmt.Errorf("creating temporary file: %w", err)
	}
	cleanup := &tempFile{f: tmp, next: closer}

	n, err := io.Copy(tmp, limitio.NewReader(zr, name, maxTarSize))
	if err != nil {
		_ = cleanup.Close()
		return nil, fmt.Errorf("decompressing %s: %w", name, err)
	}

	v, err := OpenTar(name, tmp, n, cleanup)
	if err != nil {
		_ = cleanup.Close()
		return nil, err
	}
	return v, nil
}

type tempFile struct {
	f    *os.File
	next io.Closer
}

func (t *tempFile) Close() error {
	errs := []error{t.f.Close(), os.Remove(t.f.Name())}
	if t.next != nil {
		errs = append(errs, t.next.Close())
	}
	return errors.Join(errs...)
}
