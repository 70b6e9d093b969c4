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

//go:build linux || darwin || freebsd || netbsd

package dirvol

import (
	"errors"
	"fmt"

	"github.com/amigatools/imager/pkg/volume"
	"golang.org/x/sys/unix"
)

// Named streams live in the user namespace of the extended attributes.
const xattrPrefix = "user."

func readStream(path, stream string) ([]byte, error) {
	attr := xattrPrefix + stream
	size, err := unix.Getxattr(path, attr, nil)
	if err != nil {
		if noStream(err) {
			return nil, volume.ErrNoStream
		}
		return nil, fmt.Errorf("read stream %s of %s: %w", stream, path, err)
	}
	buf := make([]byte, size)
	n, err := unix.Getxattr(path, attr, buf)
	if err != nil {
		if noStream(err) {
			return nil, volume.ErrNoStream
		}
		return nil, fmt.Errorf("read stream %s of %s: %w", stream, path, err)
	}
	return buf[:n], nil
}

func writeStream(path, stream string, data []byte) error {
	if err := unix.Setxattr(path, xattrPrefix+stream, data, 0); err != nil {
		if errors.Is(err, unix.ENOTSUP) || errors.Is(err, unix.EPERM) {
			return volume.ErrNoStream
		}
		return fmt.Errorf("write stream %s of %s: %w", stream, path, err)
	}
	return nil
}

func noStream(err error) bool {
	return errors.Is(err, errNoAttr) || errors.Is(err, unix.ENOTSUP) || errors.Is(err, unix.EPERM)
}
