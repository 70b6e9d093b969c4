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
	"bytes"
	"errors"
	"fmt"
	"io"
)

// Format is what Identify found at the start of a stream.
type Format int

const (
	Unknown Format = iota
	Zip
	Gzip
	Tar
	Cpio
	Rdb
	Mbr
	Gpt
	Ffs
	Pfs
	Fat
	Iso9660
	Vhd
	Lha
)

var formatNames = map[Format]string{
	Unknown: "unknown",
	Zip:     "zip",
	Gzip:    "gzip",
	Tar:     "tar",
	Cpio:    "cpio",
	Rdb:     "rdb",
	Mbr:     "mbr",
	Gpt:     "gpt",
	Ffs:     "ffs",
	Pfs:     "pfs3",
	Fat:     "fat",
	Iso9660: "iso9660",
	Vhd:     "vhd",
	Lha:     "lha",
}

func (f Format) String() string {
	if s, ok := formatNames[f]; ok {
		return s
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

const (
	blockSize = 512
	// the last ISO9660 volume descriptor probe ends here
	probeSize = 0x9001 + 5
)

// Identify reads the start of s and reports what it holds.
func Identify(s Stream) (Format, error) {
	n := int64(probeSize)
	if s.Size() < n {
		n = s.Size()
	}
	head := make([]byte, n)
	if _, err := s.ReadAt(head, 0); err != nil && !errors.Is(err, io.EOF) {
		return Unknown, fmt.Errorf("reading media header: %w", err)
	}
	return identify(head, s), nil
}

func at(b []byte, off int, magic string) bool {
	return len(b) >= off+len(magic) && string(b[off:off+len(magic)]) == magic
}

func identify(head []byte, s Stream) Format {
	switch {
	case at(head, 0, "PK\x03\x04"), at(head, 0, "PK\x05\x06"):
		return Zip
	case at(head, 0, "\x1f\x8b"):
		return Gzip
	case at(head, 0, "070701"), at(head, 0, "070702"):
		return Cpio
	case at(head, 257, "ustar"):
		return Tar
	case at(head, 0, "conectix"):
		return Vhd
	case len(head) > 6 && at(head, 2, "-lh") && head[6] == '-':
		return Lha
	}

	if len(head) >= 4 {
		switch {
		case at(head, 0, "DOS") && head[3] <= 7:
			return Ffs
		case at(head, 0, "PFS") && head[3] >= 1 && head[3] <= 3, at(head, 0, "PDS\x03"):
			return Pfs
		}
	}

	for i := 0; i < rdbScanBlocks; i++ {
		if at(head, i*blockSize, "RDSK") {
			return Rdb
		}
	}

	for _, off := range []int{0x8001, 0x8801, 0x9001} {
		if at(head, off, "CD001") {
			return Iso9660
		}
	}

	if at(head, blockSize, "EFI PART") {
		return Gpt
	}
	if len(head) >= blockSize && head[510] == 0x55 && head[511] == 0xaa {
		if at(head, 0x36, "FAT") || at(head, 0x52, "FAT32") {
			return Fat
		}
		return Mbr
	}

	// fixed VHD images carry their footer at the end instead
	if size := s.Size(); size >= blockSize {
		footer := make([]byte, 8)
		if _, err := s.ReadAt(footer, size-blockSize); err == nil && bytes.Equal(footer, []byte("conectix")) {
			return Vhd
		}
	}
	return Unknown
}
