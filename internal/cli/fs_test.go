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

package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/amigatools/imager/pkg/fserrors"
	"github.com/amigatools/imager/pkg/fsops"
	"github.com/amigatools/imager/pkg/media"
	"github.com/amigatools/imager/pkg/media/mediatest"
	"github.com/amigatools/imager/pkg/volume/memvol"
)

func writeHostFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func memRegistry(t *testing.T) *media.Registry {
	t.Helper()
	ctx := context.Background()
	v := memvol.New("src")
	require.NoError(t, v.WriteFile(ctx, []string{"a", "one.txt"}, []byte("one")))
	require.NoError(t, v.WriteFile(ctx, []string{"a", "b", "two.txt"}, []byte("two!")))
	require.NoError(t, v.WriteFile(ctx, []string{"L", "pfs3aio"}, []byte("\x00\x00$VER: pfs3aio 19.2 (10.01.2022)\x00")))
	r := media.New()
	r.Mount("src", v)
	r.Mount("dst", memvol.New("dst"))
	return r
}

func TestCopyImpl(t *testing.T) {
	ctx := context.Background()
	r := memRegistry(t)

	require.NoError(t, CopyImpl(ctx, "mem:src/a", "mem:dst", fsops.WithRegistry(r), fsops.WithRecursive(true)))

	var buf bytes.Buffer
	require.NoError(t, DirImpl(ctx, &buf, "mem:dst", false, fsops.WithRegistry(r), fsops.WithRecursive(true)))
	out := buf.String()
	require.Contains(t, out, "one.txt")
	require.Contains(t, out, "b/two.txt")
	require.Contains(t, out, "1 directories, 2 files, 7 B")

	err := CopyImpl(ctx, "mem:src/a/one.txt", "mem:dst", fsops.WithRegistry(r))
	require.Error(t, err, "existing files are not overwritten without force")
	require.NoError(t, CopyImpl(ctx, "mem:src/a/one.txt", "mem:dst", fsops.WithRegistry(r), fsops.WithForce(true)))
}

func TestDirImpl(t *testing.T) {
	ctx := context.Background()
	r := memRegistry(t)

	var buf bytes.Buffer
	require.NoError(t, DirImpl(ctx, &buf, "mem:src/a", false, fsops.WithRegistry(r)))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	require.True(t, strings.HasPrefix(lines[0], "Name"))
	require.Contains(t, buf.String(), "b/")
	require.Contains(t, buf.String(), "<DIR>")
	require.Contains(t, buf.String(), "----rwed")
	require.Equal(t, "1 directories, 1 files, 3 B", lines[3])

	require.Error(t, DirImpl(ctx, &buf, "mem:src/missing", false, fsops.WithRegistry(r)))
}

func TestDirImplPartitions(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	img := mediatest.Rdb(
		mediatest.RdbPartition{Name: "DH0", DosType: "PFS\x03", Cylinders: 1},
		mediatest.RdbPartition{Name: "Work", DosType: "DOS\x07", Cylinders: 2},
	)
	p := filepath.Join(dir, "disk.hdf")
	require.NoError(t, os.WriteFile(p, img, 0o644))

	var buf bytes.Buffer
	require.NoError(t, DirImpl(ctx, &buf, p, true))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines[1], "DH0")
	require.Contains(t, lines[2], "Work")
	require.Contains(t, lines[2], "16 KiB")
}

func TestMkdirAndExtractImpl(t *testing.T) {
	ctx := context.Background()
	r := memRegistry(t)

	require.Error(t, MkdirImpl(ctx, "mem:dst/x/y", fsops.WithRegistry(r)))
	require.NoError(t, MkdirImpl(ctx, "mem:dst/x/y", fsops.WithRegistry(r), fsops.WithMakeDirectory(true)))

	out := t.TempDir()
	require.NoError(t, ExtractImpl(ctx, "mem:src/a", out, fsops.WithRegistry(r), fsops.WithRecursive(true)))
	b, err := os.ReadFile(filepath.Join(out, "b", "two.txt"))
	require.NoError(t, err)
	require.Equal(t, "two!", string(b))
}

func TestFsVersionImpl(t *testing.T) {
	ctx := context.Background()
	r := memRegistry(t)

	var buf bytes.Buffer
	require.NoError(t, FsVersionImpl(ctx, &buf, "mem:src/l/pfs3aio", "", fsops.WithRegistry(r)))
	require.Equal(t, "pfs3aio 19.2\n", buf.String())

	buf.Reset()
	require.NoError(t, FsVersionImpl(ctx, &buf, "mem:src/a/one.txt", "3.4", fsops.WithRegistry(r)))
	require.Equal(t, "3.4\n", buf.String())

	require.Error(t, FsVersionImpl(ctx, &buf, "mem:src/a/one.txt", "", fsops.WithRegistry(r)))
	for _, bad := range []string{"3", "x.1", "1.y"} {
		_, err := parseVersionOverride(bad)
		require.Error(t, err, bad)
	}
}

func TestCommandConfig(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	writeHostFiles(t, src, map[string]string{
		"one.txt":   "one",
		"b/two.txt": "two!",
	})
	metrics := filepath.Join(dir, "copy.prom")
	cfgPath := filepath.Join(dir, "imager.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("recursive: true\nmake-dir: true\nlog-level: warn\nmetrics-textfile: "+metrics+"\n"), 0o644))

	t.Run("config file", func(t *testing.T) {
		dst := filepath.Join(dir, "dst")
		require.NoError(t, os.Mkdir(dst, 0o755))
		cmd := New()
		cmd.SetArgs([]string{"fs", "copy", "--config", cfgPath, src, dst})
		require.NoError(t, cmd.ExecuteContext(context.Background()))

		_, err := os.Stat(filepath.Join(dst, "b", "two.txt"))
		require.NoError(t, err)
		b, err := os.ReadFile(metrics)
		require.NoError(t, err)
		require.Contains(t, string(b), "imager_copy_files_total 2")
	})

	t.Run("flags override config", func(t *testing.T) {
		dst := filepath.Join(dir, "flat")
		require.NoError(t, os.Mkdir(dst, 0o755))
		cmd := New()
		logFile := filepath.Join(dir, "logs", "imager.log")
		cmd.SetArgs([]string{"fs", "cp", "--config", cfgPath, "--recursive=false", "--log-level", "info", "--log-policy", logFile, src, dst})
		require.NoError(t, cmd.ExecuteContext(context.Background()))

		logged, err := os.ReadFile(logFile)
		require.NoError(t, err)
		require.Contains(t, string(logged), "0 directories, 1 files")

		_, err = os.Stat(filepath.Join(dst, "one.txt"))
		require.NoError(t, err)
		_, err = os.Stat(filepath.Join(dst, "b"))
		require.True(t, os.IsNotExist(err))
	})

	t.Run("bad config", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(bad, []byte("uae-metadata: adf\n"), 0o644))
		cmd := New()
		cmd.SetArgs([]string{"fs", "mkdir", "--config", bad, filepath.Join(dir, "new")})
		require.Error(t, cmd.ExecuteContext(context.Background()))
	})
}

func TestWithMetricsAfterFailedCopy(t *testing.T) {
	ctx := context.Background()
	r := memRegistry(t)
	dst := memvol.New("dst")
	require.NoError(t, dst.WriteFile(ctx, []string{"b", "two.txt"}, []byte("kept")))
	r.Mount("dst", dst)

	path := filepath.Join(t.TempDir(), "copy.prom")
	f := fsFlags{metricsTextfile: path}
	err := f.withMetrics([]fsops.Option{fsops.WithRegistry(r), fsops.WithRecursive(true)}, func(opts []fsops.Option) error {
		return CopyImpl(ctx, "mem:src/a", "mem:dst", opts...)
	})
	var exists *fserrors.FileExistsError
	require.True(t, errors.As(err, &exists), "got %v", err)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), "imager_copy_files_total 1")
}
