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

// Package mediatest builds small partitioned disk images for tests.
package mediatest

import (
	"encoding/binary"
	"hash/crc32"

	"golang.org/x/text/encoding/unicode"
)

const (
	// BlockSize is the sector size of every image built here.
	BlockSize = 512
	// RdbBlocksPerTrack and a single surface give RDB images one track per
	// cylinder.
	RdbBlocksPerTrack = 16
	// RdbCylinderSize is the size in bytes of one RDB cylinder.
	RdbCylinderSize = RdbBlocksPerTrack * BlockSize
)

// RdbPartition describes one partition of an RDB image.
type RdbPartition struct {
	Name string
	// DosType such as "PFS\x03" or "DOS\x01".
	DosType   string
	Cylinders int
	// Data is written at the start of the partition.
	Data []byte
}

func putChecksum(b []byte) {
	n := binary.BigEndian.Uint32(b[4:])
	binary.BigEndian.PutUint32(b[8:], 0)
	var sum uint32
	for i := uint32(0); i < n; i++ {
		sum += binary.BigEndian.Uint32(b[i*4:])
	}
	binary.BigEndian.PutUint32(b[8:], -sum)
}

// Rdb builds an image with a Rigid Disk Block in block 0, one PART block per
// partition in the following blocks and the partitions from cylinder 1 on.
func Rdb(parts ...RdbPartition) []byte {
	cyls := 1
	for _, p := range parts {
		cyls += p.Cylinders
	}
	img := make([]byte, cyls*RdbCylinderSize)

	rdsk := img[:BlockSize]
	copy(rdsk, "RDSK")
	binary.BigEndian.PutUint32(rdsk[4:], 64)
	binary.BigEndian.PutUint32(rdsk[12:], 7)
	binary.BigEndian.PutUint32(rdsk[16:], BlockSize)
	binary.BigEndian.PutUint32(rdsk[24:], 0xffffffff)
	if len(parts) > 0 {
		binary.BigEndian.PutUint32(rdsk[28:], 1)
	} else {
		binary.BigEndian.PutUint32(rdsk[28:], 0xffffffff)
	}
	binary.BigEndian.PutUint32(rdsk[32:], 0xffffffff)
	binary.BigEndian.PutUint32(rdsk[64:], uint32(cyls))
	binary.BigEndian.PutUint32(rdsk[68:], RdbBlocksPerTrack)
	binary.BigEndian.PutUint32(rdsk[72:], 1)
	putChecksum(rdsk)

	low := 1
	for i, p := range parts {
		b := img[(i+1)*BlockSize : (i+2)*BlockSize]
		copy(b, "PART")
		binary.BigEndian.PutUint32(b[4:], 64)
		binary.BigEndian.PutUint32(b[12:], 7)
		next := uint32(0xffffffff)
		if i+1 < len(parts) {
			next = uint32(i + 2)
		}
		binary.BigEndian.PutUint32(b[16:], next)
		b[36] = byte(len(p.Name))
		copy(b[37:], p.Name)

		env := b[128:]
		high := low + p.Cylinders - 1
		for j, v := range []uint32{16, 128, 0, 1, 1, RdbBlocksPerTrack, 2, 0, 0, uint32(low), uint32(high)} {
			binary.BigEndian.PutUint32(env[j*4:], v)
		}
		copy(env[64:68], p.DosType)
		putChecksum(b)

		copy(img[low*RdbCylinderSize:], p.Data)
		low = high + 1
	}
	return img
}

// Partition is a partition of an MBR or GPT image.
type Partition struct {
	// Type is the MBR partition type; GPT images use a fixed type GUID.
	Type byte
	Name string
	Data []byte
}

func sectors(n int) int {
	return (n + BlockSize - 1) / BlockSize
}

// Mbr builds an image with an MBR and up to four primary partitions laid
// out back to back from sector 1. Partitions with Type 0 are recorded as
// empty slots.
func Mbr(parts ...Partition) []byte {
	total := 1
	for _, p := range parts {
		total += sectors(len(p.Data))
	}
	img := make([]byte, total*BlockSize)
	img[510], img[511] = 0x55, 0xaa

	lba := 1
	for i, p := range parts {
		e := img[0x1be+i*16:]
		e[4] = p.Type
		n := sectors(len(p.Data))
		if p.Type != 0 {
			binary.LittleEndian.PutUint32(e[8:], uint32(lba))
			binary.LittleEndian.PutUint32(e[12:], uint32(n))
		}
		copy(img[lba*BlockSize:], p.Data)
		lba += n
	}
	return img
}

// Gpt builds an image with a protective MBR, a GPT header in LBA 1, a 128
// entry array from LBA 2 and the partitions from LBA 34 on.
func Gpt(parts ...Partition) []byte {
	const (
		entries   = 128
		entrySize = 128
		firstLBA  = 2 + entries*entrySize/BlockSize
	)
	total := firstLBA
	for _, p := range parts {
		total += sectors(len(p.Data))
	}
	total++ // backup header slot
	img := make([]byte, total*BlockSize)

	img[0x1be+4] = 0xee
	binary.LittleEndian.PutUint32(img[0x1be+8:], 1)
	binary.LittleEndian.PutUint32(img[0x1be+12:], uint32(total-1))
	img[510], img[511] = 0x55, 0xaa

	enc := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	array := img[2*BlockSize : firstLBA*BlockSize]
	lba := firstLBA
	for i, p := range parts {
		e := array[i*entrySize:]
		// EBD0A0A2-B9E5-4433-87C0-68B6B72699C7, basic data
		copy(e, []byte{0xa2, 0xa0, 0xd0, 0xeb, 0xe5, 0xb9, 0x33, 0x44, 0x87, 0xc0, 0x68, 0xb6, 0xb7, 0x26, 0x99, 0xc7})
		e[16] = byte(i + 1)
		n := sectors(len(p.Data))
		binary.LittleEndian.PutUint64(e[32:], uint64(lba))
		binary.LittleEndian.PutUint64(e[40:], uint64(lba+n-1))
		name, _ := enc.Bytes([]byte(p.Name))
		copy(e[56:128], name)
		copy(img[lba*BlockSize:], p.Data)
		lba += n
	}

	h := img[BlockSize : 2*BlockSize]
	copy(h, "EFI PART")
	binary.LittleEndian.PutUint32(h[8:], 0x00010000)
	binary.LittleEndian.PutUint32(h[12:], 92)
	binary.LittleEndian.PutUint64(h[24:], 1)
	binary.LittleEndian.PutUint64(h[32:], uint64(total-1))
	binary.LittleEndian.PutUint64(h[40:], firstLBA)
	binary.LittleEndian.PutUint64(h[48:], uint64(total-2))
	binary.LittleEndian.PutUint64(h[72:], 2)
	binary.LittleEndian.PutUint32(h[80:], entries)
	binary.LittleEndian.PutUint32(h[84:], entrySize)
	binary.LittleEndian.PutUint32(h[88:], crc32.ChecksumIEEE(array))
	binary.LittleEndian.PutUint32(h[16:], crc32.ChecksumIEEE(h[:92]))
	return img
}

// Swap returns a copy of b with the bytes of every 16-bit word exchanged.
func Swap(b []byte) []byte {
	out := append([]byte(nil), b...)
	for i := 0; i+1 < len(out); i += 2 {
		out[i], out[i+1] = out[i+1], out[i]
	}
	return out
}
