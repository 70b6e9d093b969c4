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

package volume

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

type statOnly struct {
	Volume
	entries map[string]EntryType
}

func (s statOnly) Stat(_ context.Context, path []string) (Entry, error) {
	t, ok := s.entries[String(path)]
	if !ok {
		return Entry{}, NotFound(path)
	}
	return Entry{Name: Base(path), Type: t, Path: path}, nil
}

func (s statOnly) OpenRead(context.Context, []string) (io.ReadCloser, error) {
	return nil, io.EOF
}

func TestExists(t *testing.T) {
	ctx := context.Background()
	v := statOnly{entries: map[string]EntryType{
		"/dir1":       Dir,
		"/dir1/file1": File,
	}}

	for _, tt := range []struct {
		path []string
		want EntryType
	}{
		{nil, Dir},
		{[]string{"dir1"}, Dir},
		{[]string{"dir1", "file1"}, File},
		{[]string{"dir1", "file2"}, None},
	} {
		got, err := Exists(ctx, v, tt.path)
		require.NoError(t, err)
		require.Equal(t, tt.want, got, String(tt.path))
	}
}

func TestPathHelpers(t *testing.T) {
	require.True(t, HasPrefix([]string{"dir1", "copied"}, []string{"dir1"}, false))
	require.True(t, HasPrefix([]string{"DIR1", "copied"}, []string{"dir1"}, true))
	require.False(t, HasPrefix([]string{"DIR1", "copied"}, []string{"dir1"}, false))
	require.True(t, HasPrefix([]string{"dir1"}, nil, false))
	require.False(t, HasPrefix([]string{"dir1"}, []string{"dir1", "x"}, false))

	require.Equal(t, []string{"a", "b", "c"}, Join([]string{"a"}, "b", "c"))
	require.Equal(t, []string{"a"}, Parent([]string{"a", "b"}))
	require.Equal(t, "b", Base([]string{"a", "b"}))
	require.Equal(t, "/a/b", String([]string{"a", "b"}))

	var attrs *Attributes
	require.True(t, attrs.IsDefault())
	require.False(t, (&Attributes{Comment: "x"}).IsDefault())
}
