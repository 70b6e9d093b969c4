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
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"

	"github.com/amigatools/imager/pkg/fserrors"
	"github.com/amigatools/imager/pkg/media/mediatest"
	"github.com/amigatools/imager/pkg/volume"
	"github.com/amigatools/imager/pkg/volume/memvol"
	"github.com/amigatools/imager/pkg/vpath"
)

type bytesStream struct {
	*bytes.Reader
	buf []byte
}

func newBytesStream(b []byte) *bytesStream {
	return &bytesStream{Reader: bytes.NewReader(b), buf: b}
}

func (s *bytesStream) WriteAt(p []byte, off int64) (int, error) {
	if off+int64(len(p)) > int64(len(s.buf)) {
		return 0, io.ErrShortWrite
	}
	return copy(s.buf[off:], p), nil
}

func zipImage(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestIdentify(t *testing.T) {
	block := func(off int, magic string) []byte {
		b := make([]byte, 4096)
		copy(b[off:], magic)
		return b
	}
	mbr := make([]byte, 1024)
	mbr[510], mbr[511] = 0x55, 0xaa
	fat := append([]byte(nil), mbr...)
	copy(fat[0x36:], "FAT16   ")
	iso := make([]byte, 0x9000)
	copy(iso[0x8001:], "CD001")

	for _, tt := range []struct {
		name string
		b    []byte
		want Format
	}{
		{"zip", zipImage(t, map[string]string{"a": "b"}), Zip},
		{"gzip", block(0, "\x1f\x8b\x08"), Gzip},
		{"cpio", block(0, "070701"), Cpio},
		{"tar", block(257, "ustar\x00"), Tar},
		{"ffs", block(0, "DOS\x03"), Ffs},
		{"pfs3", block(0, "PFS\x03"), Pfs},
		{"pds3", block(0, "PDS\x03"), Pfs},
		{"rdb in block 2", block(2*blockSize, "RDSK"), Rdb},
		{"mbr", mbr, Mbr},
		{"gpt", mediatest.Gpt(mediatest.Partition{Name: "x", Data: []byte("x")}), Gpt},
		{"fat", fat, Fat},
		{"iso", iso, Iso9660},
		{"vhd", block(0, "conectix"), Vhd},
		{"lha", block(2, "-lh5-"), Lha},
		{"unknown", block(0, "nothing here"), Unknown},
		{"tiny", []byte("x"), Unknown},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Identify(newBytesStream(tt.b))
			require.NoError(t, err)
			require.Equal(t, tt.want, got, "got %s", got)
		})
	}
}

func TestByteSwapped(t *testing.T) {
	raw := newBytesStream([]byte("BADCFE"))
	s := ByteSwapped(raw)

	b := make([]byte, 6)
	n, err := s.ReadAt(b, 0)
	require.NoError(t, err)
	require.Equal(t, "ABCDEF", string(b[:n]))

	b = make([]byte, 3)
	_, err = s.ReadAt(b, 1)
	require.NoError(t, err)
	require.Equal(t, "BCD", string(b))

	_, err = s.WriteAt([]byte("xyz"), 1)
	require.NoError(t, err)
	require.Equal(t, "xAzyFE", string(raw.buf))

	b = make([]byte, 10)
	n, err = s.ReadAt(b, 0)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, "Axyz", string(b[:4]))
	require.Equal(t, 6, n)
}

func TestSection(t *testing.T) {
	raw := newBytesStream([]byte("0123456789"))
	s := Section(raw, 2, 4)
	require.Equal(t, int64(4), s.Size())

	b := make([]byte, 8)
	n, err := s.ReadAt(b, 1)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, "345", string(b[:n]))

	_, err = s.WriteAt([]byte("abc"), 2)
	require.Error(t, err, "writes past the end of a partition are refused")
	_, err = s.WriteAt([]byte("ab"), 2)
	require.NoError(t, err)
	require.Equal(t, "0123ab6789", string(raw.buf))
}

func TestReadTable(t *testing.T) {
	for _, tt := range []struct {
		name  string
		img   []byte
		kind  vpath.TableKind
		want  []Partition
		found bool
	}{{
		name: "mbr",
		img: mediatest.Mbr(
			mediatest.Partition{Type: 0x0c, Data: make([]byte, 1024)},
			mediatest.Partition{},
			mediatest.Partition{Type: 0x76, Data: make([]byte, 512)},
		),
		kind:  vpath.Mbr,
		found: true,
		want: []Partition{
			{Table: vpath.Mbr, Index: 1, Type: "0x0c", Offset: 512, Size: 1024},
			{Table: vpath.Mbr, Index: 2, Type: "0x76", Offset: 1536, Size: 512},
		},
	}, {
		name: "gpt",
		img: mediatest.Gpt(
			mediatest.Partition{Name: "boot", Data: make([]byte, 512)},
			mediatest.Partition{Name: "work", Data: make([]byte, 1024)},
		),
		kind:  vpath.Gpt,
		found: true,
		want: []Partition{
			{Table: vpath.Gpt, Index: 1, Name: "boot", Type: "EBD0A0A2-B9E5-4433-87C0-68B6B72699C7", Offset: 34 * 512, Size: 512},
			{Table: vpath.Gpt, Index: 2, Name: "work", Type: "EBD0A0A2-B9E5-4433-87C0-68B6B72699C7", Offset: 35 * 512, Size: 1024},
		},
	}, {
		name: "rdb",
		img: mediatest.Rdb(
			mediatest.RdbPartition{Name: "DH0", DosType: "PFS\x03", Cylinders: 2},
			mediatest.RdbPartition{Name: "DH1", DosType: "DOS\x03", Cylinders: 1},
		),
		kind:  vpath.Rdb,
		found: true,
		want: []Partition{
			{Table: vpath.Rdb, Index: 1, Name: "DH0", Type: `PFS\3`, Offset: mediatest.RdbCylinderSize, Size: 2 * mediatest.RdbCylinderSize},
			{Table: vpath.Rdb, Index: 2, Name: "DH1", Type: `DOS\3`, Offset: 3 * mediatest.RdbCylinderSize, Size: mediatest.RdbCylinderSize},
		},
	}, {
		name: "no rdb",
		img:  make([]byte, 16*512),
		kind: vpath.Rdb,
	}, {
		name: "no mbr",
		img:  make([]byte, 512),
		kind: vpath.Mbr,
	}} {
		t.Run(tt.name, func(t *testing.T) {
			got, found, err := ReadTable(newBytesStream(tt.img), tt.kind)
			require.NoError(t, err)
			require.Equal(t, tt.found, found)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ReadTable() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReadTableChecksums(t *testing.T) {
	img := mediatest.Rdb(mediatest.RdbPartition{Name: "DH0", DosType: "DOS\x01", Cylinders: 1})
	img[512+40]++ // PART block drive name
	_, found, err := ReadTable(newBytesStream(img), vpath.Rdb)
	require.True(t, found)
	require.ErrorContains(t, err, "checksum")

	img = mediatest.Gpt(mediatest.Partition{Name: "x", Data: []byte("x")})
	img[512+72]++
	_, found, err = ReadTable(newBytesStream(img), vpath.Gpt)
	require.True(t, found)
	require.ErrorContains(t, err, "checksum")
}

// resumAmiga recomputes the checksum of the Amiga block starting at b.
func resumAmiga(b []byte) {
	n := binary.BigEndian.Uint32(b[4:])
	binary.BigEndian.PutUint32(b[8:], 0)
	var sum uint32
	for i := uint32(0); i < n; i++ {
		sum += binary.BigEndian.Uint32(b[i*4:])
	}
	binary.BigEndian.PutUint32(b[8:], -sum)
}

// resumGpt recomputes the entry array and header checksums of a GPT image.
func resumGpt(img []byte) {
	h := img[512:1024]
	count := binary.LittleEndian.Uint32(h[80:])
	size := binary.LittleEndian.Uint32(h[84:])
	binary.LittleEndian.PutUint32(h[88:], crc32.ChecksumIEEE(img[1024:1024+count*size]))
	binary.LittleEndian.PutUint32(h[16:], 0)
	binary.LittleEndian.PutUint32(h[16:], crc32.ChecksumIEEE(h[:92]))
}

func TestReadTableMalformed(t *testing.T) {
	ctx := context.Background()
	const partEnv = 512 + 128

	for _, c := range []struct {
		name  string
		table vpath.TableKind
		img   func() []byte
		want  string
	}{{
		name:  "rdb high cylinder below low cylinder",
		table: vpath.Rdb,
		img: func() []byte {
			img := mediatest.Rdb(mediatest.RdbPartition{Name: "DH0", DosType: "PFS\x03", Cylinders: 4})
			binary.BigEndian.PutUint32(img[partEnv+36:], 3)
			binary.BigEndian.PutUint32(img[partEnv+40:], 1)
			resumAmiga(img[512:1024])
			return img
		},
		want: "invalid",
	}, {
		name:  "rdb cylinder size overflows",
		table: vpath.Rdb,
		img: func() []byte {
			img := mediatest.Rdb(mediatest.RdbPartition{Name: "DH0", DosType: "PFS\x03", Cylinders: 1})
			for _, off := range []int{4, 12, 20} {
				binary.BigEndian.PutUint32(img[partEnv+off:], 0xffffffff)
			}
			resumAmiga(img[512:1024])
			return img
		},
		want: "overflows",
	}, {
		name:  "rdb block size out of range",
		table: vpath.Rdb,
		img: func() []byte {
			img := mediatest.Rdb(mediatest.RdbPartition{Name: "DH0", DosType: "PFS\x03", Cylinders: 1})
			binary.BigEndian.PutUint32(img[16:], 0xfffffffc)
			resumAmiga(img[:512])
			return img
		},
		want: "block size",
	}, {
		name:  "gpt last block below first block",
		table: vpath.Gpt,
		img: func() []byte {
			img := mediatest.Gpt(mediatest.Partition{Name: "x", Data: make([]byte, 1024)})
			first := binary.LittleEndian.Uint64(img[1024+32:])
			binary.LittleEndian.PutUint64(img[1024+40:], first-1)
			resumGpt(img)
			return img
		},
		want: "invalid",
	}, {
		name:  "gpt range overflows",
		table: vpath.Gpt,
		img: func() []byte {
			img := mediatest.Gpt(mediatest.Partition{Name: "x", Data: make([]byte, 1024)})
			binary.LittleEndian.PutUint64(img[1024+40:], 1<<62)
			resumGpt(img)
			return img
		},
		want: "overflows",
	}} {
		t.Run(c.name, func(t *testing.T) {
			img := c.img()
			_, found, err := ReadTable(newBytesStream(img), c.table)
			require.True(t, found)
			require.ErrorContains(t, err, c.want)

			sel := "/rdb/dh0"
			if c.table == vpath.Gpt {
				sel = "/gpt/1"
			}
			p := writeImage(t, "disk.img", img)
			_, err = New().Open(ctx, resolve(t, p+sel), ReadOnly)
			var openErr *fserrors.OpenError
			require.True(t, errors.As(err, &openErr), "got %v", err)
		})
	}
}

func TestRegistryOpenPartitionOutsideMedia(t *testing.T) {
	img := mediatest.Rdb(mediatest.RdbPartition{Name: "DH0", DosType: "PFS\x03", Cylinders: 1})
	binary.BigEndian.PutUint32(img[512+128+36:], 0xfffffff0)
	binary.BigEndian.PutUint32(img[512+128+40:], 0xffffffff)
	resumAmiga(img[512:1024])

	parts, found, err := ReadTable(newBytesStream(img), vpath.Rdb)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, parts, 1)

	p := writeImage(t, "disk.hdf", img)
	_, err = New().Open(context.Background(), resolve(t, p+"/rdb/dh0"), ReadOnly)
	var openErr *fserrors.OpenError
	require.True(t, errors.As(err, &openErr), "got %v", err)
	require.ErrorContains(t, err, "past the end")
}

func writeImage(t *testing.T, name string, b []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, b, 0o644))
	return p
}

func resolve(t *testing.T, p string) *vpath.Location {
	t.Helper()
	loc, err := vpath.Resolve(p)
	require.NoError(t, err)
	return loc
}

func readFile(t *testing.T, v volume.Volume, path ...string) string {
	t.Helper()
	r, err := v.OpenRead(context.Background(), path)
	require.NoError(t, err)
	defer r.Close()
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(b)
}

func TestRegistryOpen(t *testing.T) {
	ctx := context.Background()
	zipData := zipImage(t, map[string]string{"s/startup-sequence": "LoadWB"})

	t.Run("archive", func(t *testing.T) {
		p := writeImage(t, "files.zip", zipData)
		v, err := New().Open(ctx, resolve(t, p+"/s"), ReadOnly)
		require.NoError(t, err)
		defer v.Close()
		require.Equal(t, "LoadWB", readFile(t, v, "s", "startup-sequence"))
	})

	t.Run("archive in mbr partition", func(t *testing.T) {
		img := mediatest.Mbr(mediatest.Partition{Type: 0x0c, Data: make([]byte, 512)}, mediatest.Partition{Type: 0x0c, Data: zipData})
		p := writeImage(t, "disk.img", img)
		v, err := New().Open(ctx, resolve(t, p+"/mbr/2"), ReadOnly)
		require.NoError(t, err)
		defer v.Close()
		require.Equal(t, "LoadWB", readFile(t, v, "s", "startup-sequence"))
	})

	t.Run("archive in gpt partition", func(t *testing.T) {
		img := mediatest.Gpt(mediatest.Partition{Name: "amiga", Data: zipData})
		p := writeImage(t, "disk.img", img)
		v, err := New().Open(ctx, resolve(t, p+"/gpt/1"), ReadOnly)
		require.NoError(t, err)
		defer v.Close()
		require.Equal(t, "LoadWB", readFile(t, v, "s", "startup-sequence"))
	})

	t.Run("byte swapped", func(t *testing.T) {
		p := writeImage(t, "files.zip", mediatest.Swap(zipData))
		_, err := New().Open(ctx, resolve(t, p), ReadOnly)
		require.Error(t, err)

		v, err := New().Open(ctx, resolve(t, "+bs/"+p), ReadOnly)
		require.NoError(t, err)
		defer v.Close()
		require.Equal(t, "LoadWB", readFile(t, v, "s", "startup-sequence"))
	})

	t.Run("rdb partition by name", func(t *testing.T) {
		img := mediatest.Rdb(
			mediatest.RdbPartition{Name: "DH0", DosType: "PFS\x03", Cylinders: 1, Data: []byte("PFS\x03")},
			mediatest.RdbPartition{Name: "DH1", DosType: "DOS\x03", Cylinders: 1, Data: []byte("DOS\x03")},
		)
		p := writeImage(t, "4gb.hdf", img)

		fs := memvol.New("DH0")
		require.NoError(t, fs.WriteFile(ctx, []string{"file"}, []byte("pfs data")))
		var opened Stream
		r := New()
		r.Register(Driver{
			Name:  "pfs3",
			Match: func(f Format) bool { return f == Pfs },
			Open: func(_ context.Context, s Stream, _ Access) (volume.Volume, error) {
				opened = s
				return fs, nil
			},
		})

		v, err := r.Open(ctx, resolve(t, p+"/rdb/dh0"), ReadWrite)
		require.NoError(t, err)
		require.Equal(t, "pfs data", readFile(t, v, "file"))
		require.Equal(t, int64(mediatest.RdbCylinderSize), opened.Size())
		require.NoError(t, v.Close())

		_, err = r.Open(ctx, resolve(t, p+"/rdb/2"), ReadOnly)
		var openErr *fserrors.OpenError
		require.True(t, errors.As(err, &openErr))
		require.ErrorContains(t, err, "ffs", "the identified format is named")

		_, err = r.Open(ctx, resolve(t, p+"/rdb/dh7"), ReadOnly)
		var notFound *fserrors.PathNotFoundError
		require.True(t, errors.As(err, &notFound))

		_, err = r.Open(ctx, resolve(t, p+"/mbr/1"), ReadOnly)
		require.True(t, errors.As(err, &notFound), "an RDB image has no MBR")
	})

	t.Run("memory", func(t *testing.T) {
		r := New()
		fs := memvol.New("ram")
		require.NoError(t, fs.WriteFile(ctx, []string{"a"}, []byte("x")))
		r.Mount("ram", fs)

		v, err := r.Open(ctx, resolve(t, "mem:RAM/a"), ReadWrite)
		require.NoError(t, err)
		require.Equal(t, "x", readFile(t, v, "a"))
		require.True(t, v.Capabilities().Attributes)
		_, ok := v.(volume.Attributer)
		require.True(t, ok)
		require.NoError(t, v.Close())

		_, err = r.Open(ctx, resolve(t, "mem:other"), ReadOnly)
		var openErr *fserrors.OpenError
		require.True(t, errors.As(err, &openErr))
	})

	t.Run("missing media", func(t *testing.T) {
		_, err := New().Open(ctx, resolve(t, filepath.Join(t.TempDir(), "nope.hdf")), ReadOnly)
		var notFound *fserrors.PathNotFoundError
		require.True(t, errors.As(err, &notFound))
	})

	t.Run("host", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "f"), []byte("host"), 0o644))
		loc := resolve(t, filepath.Join(dir, "f"))
		v, err := New().Open(ctx, loc, ReadOnly)
		require.NoError(t, err)
		defer v.Close()
		require.Equal(t, "host", readFile(t, v, loc.VolumePath...))
	})
}

func TestPartitions(t *testing.T) {
	img := mediatest.Rdb(
		mediatest.RdbPartition{Name: "DH0", DosType: "PFS\x03", Cylinders: 1},
		mediatest.RdbPartition{Name: "Work", DosType: "DOS\x07", Cylinders: 1},
	)
	p := writeImage(t, "disk.hdf", img)

	parts, err := New().Partitions(context.Background(), resolve(t, p))
	require.NoError(t, err)
	require.Len(t, parts, 2)
	require.Equal(t, "Work", parts[1].Name)
	require.Equal(t, `DOS\7`, parts[1].Type)

	p = writeImage(t, "plain.zip", zipImage(t, map[string]string{"a": "b"}))
	_, err = New().Partitions(context.Background(), resolve(t, p))
	var notFound *fserrors.PathNotFoundError
	require.True(t, errors.As(err, &notFound))
}
