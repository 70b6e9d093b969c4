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
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"strings"

	"github.com/amigatools/imager/pkg/vpath"
	"golang.org/x/text/encoding/unicode"
)

// Partition is one entry of a partition table.
type Partition struct {
	Table vpath.TableKind
	// Index is the 1-based position among the non-empty entries.
	Index int
	// Name is the RDB drive name or the GPT partition name.
	Name string
	// Type is the MBR type byte, GPT type GUID or RDB DosType.
	Type   string
	Offset int64
	Size   int64
}

func readBlock(s Stream, off int64, size int) ([]byte, error) {
	b := make([]byte, size)
	if _, err := s.ReadAt(b, off); err != nil && !(errors.Is(err, io.EOF) && off+int64(size) <= s.Size()) {
		return nil, err
	}
	return b, nil
}

// multiply returns a*b for non-negative operands, or false on overflow.
func multiply(a, b int64) (int64, bool) {
	if a < 0 || b < 0 {
		return 0, false
	}
	if a != 0 && b > math.MaxInt64/a {
		return 0, false
	}
	return a * b, true
}

// extent converts the inclusive unit range [first, last] to a byte offset
// and size.
func extent(first, last, unit int64) (offset, size int64, err error) {
	if unit <= 0 {
		return 0, 0, fmt.Errorf("unit size %d is invalid", unit)
	}
	if first < 0 || last < first {
		return 0, 0, fmt.Errorf("range %d-%d is invalid", first, last)
	}
	offset, ok := multiply(first, unit)
	if !ok {
		return 0, 0, fmt.Errorf("range %d-%d overflows", first, last)
	}
	if last-first == math.MaxInt64 {
		return 0, 0, fmt.Errorf("range %d-%d overflows", first, last)
	}
	size, ok = multiply(last-first+1, unit)
	if !ok || offset > math.MaxInt64-size {
		return 0, 0, fmt.Errorf("range %d-%d overflows", first, last)
	}
	return offset, size, nil
}

// ReadTable returns the partitions of the table of the given kind at the
// start of s. A missing table is reported as found=false.
func ReadTable(s Stream, kind vpath.TableKind) (parts []Partition, found bool, err error) {
	switch kind {
	case vpath.Mbr:
		return readMbr(s)
	case vpath.Gpt:
		return readGpt(s)
	case vpath.Rdb:
		return readRdb(s)
	}
	return nil, false, fmt.Errorf("unsupported partition table %s", kind)
}

const (
	mbrEntries    = 0x1be
	mbrEntrySize  = 16
	mbrEntryCount = 4
)

func readMbr(s Stream) ([]Partition, bool, error) {
	if s.Size() < blockSize {
		return nil, false, nil
	}
	b, err := readBlock(s, 0, blockSize)
	if err != nil {
		return nil, false, fmt.Errorf("reading MBR: %w", err)
	}
	if b[510] != 0x55 || b[511] != 0xaa {
		return nil, false, nil
	}
	var parts []Partition
	for i := 0; i < mbrEntryCount; i++ {
		e := b[mbrEntries+i*mbrEntrySize:]
		typ := e[4]
		if typ == 0 {
			continue
		}
		parts = append(parts, Partition{
			Table:  vpath.Mbr,
			Index:  len(parts) + 1,
			Type:   fmt.Sprintf("0x%02x", typ),
			Offset: int64(binary.LittleEndian.Uint32(e[8:])) * blockSize,
			Size:   int64(binary.LittleEndian.Uint32(e[12:])) * blockSize,
		})
	}
	return parts, true, nil
}

const (
	gptSignature   = "EFI PART"
	gptMaxEntries  = 1024
	gptMinEntryLen = 128
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

func readGpt(s Stream) ([]Partition, bool, error) {
	if s.Size() < 2*blockSize {
		return nil, false, nil
	}
	h, err := readBlock(s, blockSize, blockSize)
	if err != nil {
		return nil, false, fmt.Errorf("reading GPT header: %w", err)
	}
	if string(h[:8]) != gptSignature {
		return nil, false, nil
	}
	headerSize := binary.LittleEndian.Uint32(h[12:])
	if headerSize < 92 || headerSize > blockSize {
		return nil, true, fmt.Errorf("GPT header size %d is invalid", headerSize)
	}
	want := binary.LittleEndian.Uint32(h[16:])
	check := bytes.Clone(h[:headerSize])
	binary.LittleEndian.PutUint32(check[16:], 0)
	if got := crc32.ChecksumIEEE(check); got != want {
		return nil, true, fmt.Errorf("GPT header checksum mismatch: %08x != %08x", got, want)
	}

	entriesLBA := int64(binary.LittleEndian.Uint64(h[72:]))
	count := binary.LittleEndian.Uint32(h[80:])
	entrySize := binary.LittleEndian.Uint32(h[84:])
	if count > gptMaxEntries || entrySize < gptMinEntryLen || entrySize > blockSize {
		return nil, true, fmt.Errorf("GPT entry array of %d entries of %d bytes is invalid", count, entrySize)
	}
	table, err := readBlock(s, entriesLBA*blockSize, int(count*entrySize))
	if err != nil {
		return nil, true, fmt.Errorf("reading GPT entries: %w", err)
	}

	var parts []Partition
	zero := make([]byte, 16)
	for i := uint32(0); i < count; i++ {
		e := table[i*entrySize : (i+1)*entrySize]
		if bytes.Equal(e[:16], zero) {
			continue
		}
		first := int64(binary.LittleEndian.Uint64(e[32:]))
		last := int64(binary.LittleEndian.Uint64(e[40:]))
		offset, size, err := extent(first, last, blockSize)
		if err != nil {
			return nil, true, fmt.Errorf("GPT entry %d: %w", i+1, err)
		}
		name, _ := utf16le.NewDecoder().Bytes(e[56:128])
		parts = append(parts, Partition{
			Table:  vpath.Gpt,
			Index:  len(parts) + 1,
			Name:   strings.TrimRight(string(name), "\x00"),
			Type:   guidString(e[:16]),
			Offset: offset,
			Size:   size,
		})
	}
	return parts, true, nil
}

// guidString renders a mixed-endian GUID as stored in GPT entries.
func guidString(b []byte) string {
	return fmt.Sprintf("%08X-%04X-%04X-%X-%X",
		binary.LittleEndian.Uint32(b[0:]),
		binary.LittleEndian.Uint16(b[4:]),
		binary.LittleEndian.Uint16(b[6:]),
		b[8:10], b[10:16])
}

const (
	rdbScanBlocks = 16
	rdbEnd        = 0xffffffff
	// guards against PART lists that loop back on themselves
	rdbMaxParts = 128
	// real drives use 512 to 32768 byte blocks
	rdbMaxBlockSize = 32768
)

// checksumOK validates an Amiga block: the first SummedLongs longs, the
// checksum long included, sum to zero.
func checksumOK(b []byte) bool {
	n := binary.BigEndian.Uint32(b[4:])
	if n < 3 || int(n)*4 > len(b) {
		return false
	}
	var sum uint32
	for i := uint32(0); i < n; i++ {
		sum += binary.BigEndian.Uint32(b[i*4:])
	}
	return sum == 0
}

func readRdb(s Stream) ([]Partition, bool, error) {
	var rdsk []byte
	for i := int64(0); i < rdbScanBlocks && (i+1)*blockSize <= s.Size(); i++ {
		b, err := readBlock(s, i*blockSize, blockSize)
		if err != nil {
			return nil, false, fmt.Errorf("reading block %d: %w", i, err)
		}
		if string(b[:4]) == "RDSK" {
			if !checksumOK(b) {
				return nil, true, fmt.Errorf("RDSK block %d has a bad checksum", i)
			}
			rdsk = b
			break
		}
	}
	if rdsk == nil {
		return nil, false, nil
	}

	bsize := int64(binary.BigEndian.Uint32(rdsk[16:]))
	if bsize < blockSize || bsize > rdbMaxBlockSize || bsize > s.Size() || bsize%4 != 0 {
		return nil, true, fmt.Errorf("RDSK block size %d is invalid", bsize)
	}

	var parts []Partition
	for next := binary.BigEndian.Uint32(rdsk[28:]); next != rdbEnd; {
		if len(parts) == rdbMaxParts {
			return nil, true, errors.New("RDB partition list does not terminate")
		}
		b, err := readBlock(s, int64(next)*bsize, int(bsize))
		if err != nil {
			return nil, true, fmt.Errorf("reading PART block %d: %w", next, err)
		}
		if string(b[:4]) != "PART" {
			return nil, true, fmt.Errorf("block %d is not a PART block", next)
		}
		if !checksumOK(b) {
			return nil, true, fmt.Errorf("PART block %d has a bad checksum", next)
		}

		nameLen := int(b[36])
		if nameLen > 31 {
			nameLen = 31
		}
		env := b[128:]
		long := func(i int) int64 { return int64(binary.BigEndian.Uint32(env[i*4:])) }
		sizeBlock, surfaces, blocksPerTrack := long(1), long(3), long(5)
		lowCyl, highCyl := long(9), long(10)
		name := string(b[37 : 37+nameLen])
		cylBytes, ok := multiply(surfaces, blocksPerTrack)
		if ok {
			cylBytes, ok = multiply(cylBytes, sizeBlock*4)
		}
		if !ok {
			return nil, true, fmt.Errorf("RDB partition %s: cylinder size overflows", name)
		}
		offset, size, err := extent(lowCyl, highCyl, cylBytes)
		if err != nil {
			return nil, true, fmt.Errorf("RDB partition %s: cylinders: %w", name, err)
		}

		parts = append(parts, Partition{
			Table:  vpath.Rdb,
			Index:  len(parts) + 1,
			Name:   name,
			Type:   dosType(env[64:68]),
			Offset: offset,
			Size:   size,
		})
		next = binary.BigEndian.Uint32(b[16:])
	}
	return parts, true, nil
}

// dosType renders a DosType such as "DOS\3" or "PFS\3".
func dosType(b []byte) string {
	var sb strings.Builder
	for _, c := range b {
		if c >= 0x20 && c < 0x7f {
			sb.WriteByte(c)
		} else {
			fmt.Fprintf(&sb, "\\%d", c)
		}
	}
	return sb.String()
}

// selectPartition finds the partition a selector names: drive names match
// case-insensitively, indexes are 1-based.
func selectPartition(parts []Partition, sel vpath.Selector) (Partition, bool) {
	for _, p := range parts {
		if sel.DriveName != "" {
			if strings.EqualFold(p.Name, sel.DriveName) {
				return p, true
			}
			continue
		}
		if p.Index == sel.Index {
			return p, true
		}
	}
	return Partition{}, false
}
