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
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/u-root/u-root/pkg/cpio"
)

const (
	modeType    = 0o170000
	modeDir     = 0o040000
	modeRegular = 0o100000
)

// OpenCpio indexes a newc cpio archive held in r.
func OpenCpio(name string, r io.ReaderAt, closer io.Closer) (*Volume, error) {
	rr := cpio.Newc.Reader(r)

	v := newVolume(name, closer)
	for {
		rec, err := rr.ReadRecord()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading cpio record: %w", err)
		}
		if rec.Name == cpio.Trailer {
			break
		}
		mod := time.Unix(int64(rec.MTime), 0).UTC()
		switch rec.Mode & modeType {
		case modeDir:
			if err := v.add(rec.Name, true, 0, mod, nil); err != nil {
				return nil, err
			}
		case modeRegular:
			data, size := rec.ReaderAt, int64(rec.FileSize)
			open := func() (io.ReadCloser, error) {
				return io.NopCloser(io.NewSectionReader(data, 0, size)), nil
			}
			if err := v.add(rec.Name, false, rec.FileSize, mod, open); err != nil {
				return nil, err
			}
		}
	}
	return v, nil
}
