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

package vpath

import (
	"errors"
	"path"
	"strings"
	"testing"

	"github.com/amigatools/imager/pkg/fserrors"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func posixResolver() resolver {
	return resolver{
		sep: '/',
		abs: func(p string) (string, error) {
			if strings.HasPrefix(p, "/") {
				return path.Clean(p), nil
			}
			return path.Join("/work", p), nil
		},
	}
}

func windowsResolver() resolver {
	return resolver{
		sep: '\\',
		abs: func(p string) (string, error) { return p, nil },
	}
}

func TestResolve(t *testing.T) {
	for _, tt := range []struct {
		name string
		r    resolver
		path string
		want *Location
	}{{
		name: "image with rdb partition by name",
		r:    posixResolver(),
		path: "images/4gb.hdf/rdb/dh0/devs/*.device",
		want: &Location{
			Kind:      MediaFile,
			MediaPath: "images/4gb.hdf",
			Chain: []Selector{
				{Kind: PartitionTable, Table: Rdb},
				{Kind: Partition, DriveName: "dh0"},
			},
			VolumePath: []string{"devs", "*.device"},
		},
	}, {
		name: "rdb partition by index",
		r:    posixResolver(),
		path: "disk.img/RDB/2",
		want: &Location{
			Kind:       MediaFile,
			MediaPath:  "disk.img",
			Chain:      []Selector{{Kind: PartitionTable, Table: Rdb}, {Kind: Partition, Index: 2}},
			VolumePath: []string{},
		},
	}, {
		name: "byte swap modifier",
		r:    posixResolver(),
		path: "+bs/disk.img/mbr/1/dir",
		want: &Location{
			Kind:       MediaFile,
			MediaPath:  "disk.img",
			Modifiers:  ByteSwap,
			Chain:      []Selector{{Kind: PartitionTable, Table: Mbr}, {Kind: Partition, Index: 1}},
			VolumePath: []string{"dir"},
		},
	}, {
		name: "nested rdb inside mbr",
		r:    posixResolver(),
		path: "pistorm.img/mbr/2/rdb/dh1/c",
		want: &Location{
			Kind:      MediaFile,
			MediaPath: "pistorm.img",
			Chain: []Selector{
				{Kind: PartitionTable, Table: Mbr}, {Kind: Partition, Index: 2},
				{Kind: PartitionTable, Table: Rdb}, {Kind: Partition, DriveName: "dh1"},
			},
			VolumePath: []string{"c"},
		},
	}, {
		name: "archive opened directly",
		r:    posixResolver(),
		path: "/tmp/wb.lha/Devs/Monitors",
		want: &Location{
			Kind:       MediaFile,
			MediaPath:  "/tmp/wb.lha",
			VolumePath: []string{"Devs", "Monitors"},
		},
	}, {
		name: "physical drive",
		r:    windowsResolver(),
		path: `\\.\PhysicalDrive2\gpt\1\windows`,
		want: &Location{
			Kind:       MediaDevice,
			MediaPath:  `\\.\PhysicalDrive2`,
			Chain:      []Selector{{Kind: PartitionTable, Table: Gpt}, {Kind: Partition, Index: 1}},
			VolumePath: []string{"windows"},
		},
	}, {
		name: "device path",
		r:    posixResolver(),
		path: "/dev/sdb/rdb/dh0",
		want: &Location{
			Kind:       MediaDevice,
			MediaPath:  "/dev/sdb",
			Chain:      []Selector{{Kind: PartitionTable, Table: Rdb}, {Kind: Partition, DriveName: "dh0"}},
			VolumePath: []string{},
		},
	}, {
		name: "memory media",
		r:    posixResolver(),
		path: "mem:pfs3/rdb/dh0/dir1",
		want: &Location{
			Kind:       MediaMemory,
			MediaPath:  "pfs3",
			Chain:      []Selector{{Kind: PartitionTable, Table: Rdb}, {Kind: Partition, DriveName: "dh0"}},
			VolumePath: []string{"dir1"},
		},
	}, {
		name: "host directory",
		r:    posixResolver(),
		path: "out/./dir1/../dir2",
		want: &Location{
			Kind:       MediaHost,
			MediaPath:  "/",
			VolumePath: []string{"work", "out", "dir2"},
		},
	}, {
		name: "backslash is a name character on posix",
		r:    posixResolver(),
		path: `disk.hdf/rdb/dh0/dir1/file1\`,
		want: &Location{
			Kind:       MediaFile,
			MediaPath:  "disk.hdf",
			Chain:      []Selector{{Kind: PartitionTable, Table: Rdb}, {Kind: Partition, DriveName: "dh0"}},
			VolumePath: []string{"dir1", `file1\`},
		},
	}, {
		name: "windows image path",
		r:    windowsResolver(),
		path: `C:\images\a.adf\s\startup-sequence`,
		want: &Location{
			Kind:       MediaFile,
			MediaPath:  `C:\images\a.adf`,
			VolumePath: []string{"s", "startup-sequence"},
		},
	}} {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.r.resolve(tt.path)
			require.NoError(t, err)
			tt.want.Raw = tt.path
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("resolve(%q) mismatch (-want +got):\n%s", tt.path, diff)
			}
		})
	}
}

func TestResolveErrors(t *testing.T) {
	for _, p := range []string{
		"",
		"+xx/disk.img",
		"+bs",
		"disk.img/mbr",
		"disk.img/mbr/0",
		"disk.img/gpt/first",
		"disk.img/rdb/0",
		"mem:/dir",
		"disk.img/../..",
	} {
		t.Run(p, func(t *testing.T) {
			_, err := posixResolver().resolve(p)
			var perr *fserrors.ParseError
			require.True(t, errors.As(err, &perr), "want ParseError, got %v", err)
		})
	}
}

func TestResolveHost(t *testing.T) {
	r := posixResolver()
	r.forceHost = true

	loc, err := r.resolve("out/archive.zip/sub")
	require.NoError(t, err)
	require.Equal(t, MediaHost, loc.Kind)
	require.Equal(t, []string{"work", "out", "archive.zip", "sub"}, loc.VolumePath)
	require.Empty(t, loc.Chain)
}

func TestKey(t *testing.T) {
	a, err := posixResolver().resolve("disk.hdf/rdb/DH0/dir1")
	require.NoError(t, err)
	b, err := posixResolver().resolve("disk.hdf/rdb/dh0/dir1/copied")
	require.NoError(t, err)
	c, err := posixResolver().resolve("+bs/disk.hdf/rdb/dh0")
	require.NoError(t, err)

	require.Equal(t, a.Key(), b.Key())
	require.NotEqual(t, a.Key(), c.Key())
}

func TestSplitPattern(t *testing.T) {
	dir, pattern := SplitPattern([]string{"dir1", "*.txt"})
	require.Equal(t, []string{"dir1"}, dir)
	require.Equal(t, "*.txt", pattern)

	dir, pattern = SplitPattern([]string{"dir*", "file"})
	require.Equal(t, []string{"dir*", "file"}, dir)
	require.Empty(t, pattern)

	dir, pattern = SplitPattern(nil)
	require.Empty(t, dir)
	require.Empty(t, pattern)
}
