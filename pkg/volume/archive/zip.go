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
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zip"
)

// OpenZip indexes the ZIP archive held in r. The returned volume closes
// closer, which may be nil, when it is closed.
func OpenZip(name string, r io.ReaderAt, size int64, closer io.Closer) (*Volume, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("reading zip directory: %w", err)
	}

	v := newVolume(name, closer)
	for _, f := range zr.File {
		dir := strings.HasSuffix(f.Name, "/") || f.FileInfo().IsDir()
		if !dir && !f.FileInfo().Mode().IsRegular() {
			continue
		}
		var open func() (io.ReadCloser, error)
		if !dir {
			open = f.Open
		}
		if err := v.add(f.Name, dir, f.UncompressedSize64, f.Modified, open); err != nil {
			return nil, err
		}
	}
	return v, nil
}
