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

//go:build windows

package dirvol

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/amigatools/imager/pkg/volume"
)

// NTFS alternate data streams are addressed as "file:stream".
func readStream(path, stream string) ([]byte, error) {
	b, err := os.ReadFile(path + ":" + stream)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrInvalid) {
			return nil, volume.ErrNoStream
		}
		return nil, fmt.Errorf("read stream %s of %s: %w", stream, path, err)
	}
	return b, nil
}

func writeStream(path, stream string, data []byte) error {
	if err := os.WriteFile(path+":"+stream, data, 0o644); err != nil {
		return fmt.Errorf("write stream %s of %s: %w", stream, path, err)
	}
	return nil
}
