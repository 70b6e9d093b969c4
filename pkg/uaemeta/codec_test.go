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

package uaemeta

import (
	"encoding/binary"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/amigatools/imager/pkg/amiga"
)

func TestParseMode(t *testing.T) {
	for _, s := range []string{"none", "UaeFsDb", "UAEMETAFILE"} {
		var m Mode
		require.NoError(t, m.Set(s))
		require.True(t, strings.EqualFold(s, m.String()))
	}
	_, err := ParseMode("xattr")
	require.Error(t, err)
}

func TestNodeLayout(t *testing.T) {
	n := &Node{
		Version:    V1,
		Valid:      1,
		Mode:       uint32(amiga.FromFlags(amiga.Read | amiga.Script)),
		AmigaName:  "file1ß",
		NormalName: "__uae___file1_",
		Comment:    "file1ß comment",
	}
	b, err := n.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, NodeV1Size)
	require.Equal(t, byte(1), b[0])
	require.Equal(t, n.Mode, binary.BigEndian.Uint32(b[1:]))
	require.Equal(t, []byte("file1\xdf\x00"), b[5:12], "names are stored as ISO-8859-1")
	require.Equal(t, "__uae___file1_\x00", string(b[262:277]))
	require.Equal(t, byte('f'), b[519])

	var got Node
	require.NoError(t, got.UnmarshalBinary(b))
	if diff := cmp.Diff(*n, got); diff != "" {
		t.Errorf("UnmarshalBinary() mismatch (-want +got):\n%s", diff)
	}
}

func TestNodeV2(t *testing.T) {
	n := &Node{
		Version:    V2,
		Valid:      1,
		Mode:       0x40,
		AmigaName:  "dir2*",
		NormalName: "__uae___dir2_",
		WinMode:    0x20,
	}
	b, err := n.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, NodeV2Size)
	require.Equal(t, uint32(0x20), binary.BigEndian.Uint32(b[600:]))
	require.Equal(t, []byte{'d', 0, 'i', 0, 'r', 0, '2', 0, '*', 0, 0, 0}, b[604:616])

	var got Node
	require.NoError(t, got.UnmarshalBinary(b))
	require.Equal(t, *n, got)
}

func TestNodeErrors(t *testing.T) {
	_, err := (&Node{AmigaName: strings.Repeat("a", 257)}).MarshalBinary()
	require.Error(t, err)
	_, err = (&Node{AmigaName: "snow☃"}).MarshalBinary()
	require.Error(t, err, "names outside ISO-8859-1 cannot be stored")
	require.Error(t, (&Node{}).UnmarshalBinary(make([]byte, 10)))
}

func TestFsDb(t *testing.T) {
	nodes := []*Node{
		{Valid: 1, AmigaName: "a*", NormalName: "__uae___a_"},
		{Valid: 1, AmigaName: "b", NormalName: "b", Mode: 0x10, Comment: "archived"},
	}
	b, err := BuildFsDb(nodes)
	require.NoError(t, err)
	require.Len(t, b, 2*NodeV1Size)

	got, err := ParseFsDb(b)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "a*", got[0].AmigaName)
	require.Equal(t, V1, got[1].Version)
	require.Equal(t, "archived", got[1].Comment)

	got, err = ParseFsDb(append(b, 1, 2, 3))
	require.Error(t, err)
	require.Len(t, got, 2)
}

func TestSafeNames(t *testing.T) {
	for _, tt := range []struct {
		name     string
		reserved bool
		needs    bool
		safe     string
	}{
		{name: "dir2*", needs: true, safe: "__uae___dir2_"},
		{name: `file1\`, needs: true, safe: "__uae___file1_"},
		{name: "file8+", needs: false},
		{name: "file1ß", needs: true, safe: "__uae___file1_"},
		{name: `a:b"c<d>e|f?`, needs: true, safe: "__uae___a_b_c_d_e_f_"},
		{name: "trailing.", needs: true, safe: "__uae___trailing_"},
		{name: "trailing ", needs: true, safe: "__uae___trailing_"},
		{name: "..", needs: true, safe: "__uae___._"},
		{name: "AUX", needs: false},
		{name: "AUX", reserved: true, needs: true, safe: "__uae___AUX"},
		{name: "com1.txt", reserved: true, needs: true, safe: "__uae___com1.txt"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.needs, NeedsSafeName(tt.name, tt.reserved))
			if tt.needs {
				require.Equal(t, tt.safe, MakeSafeName(tt.name))
			}
		})
	}
}

func TestUniqueName(t *testing.T) {
	taken := map[string]bool{"__uae___dir2_": true}
	exists := func(s string) bool { return taken[s] }
	require.Equal(t, "__uae___other", uniqueName("__uae___other", exists, func(int) int { return 0 }))

	got := uniqueName("__uae___dir2_", exists, func(int) int { return 1 })
	require.Equal(t, "__uae___00000000", got, "short names are extended to hold the random part")

	long := "__uae___abcdefghij"
	got = uniqueName(long, func(s string) bool { return s == long }, func(n int) int { return n - 1 })
	require.Equal(t, "__uae___zzzzzzzzij", got)

	require.NotEqual(t, "__uae___dir2_", UniqueName("__uae___dir2_", exists))
}

func TestHostName(t *testing.T) {
	require.Equal(t, "a_b", HostName("a/b", false))
	require.Equal(t, "_", HostName(".", false))
	require.Equal(t, "__", HostName("..", false))
	require.Equal(t, "_AUX", HostName("AUX", true))
	require.Equal(t, "AUX", HostName("AUX", false))
}

func TestEncodeName(t *testing.T) {
	for _, tt := range []struct {
		name     string
		reserved bool
		want     string
	}{
		{name: "plain.txt", want: "plain.txt"},
		{name: "a*b%c", want: "a%2ab%25c"},
		{name: `x\y:z`, want: "x%5cy%3az"},
		{name: "trail.", want: "trail%2e"},
		{name: "tab\there", want: "tab%09here"},
		{name: "AUX", want: "AUX"},
		{name: "AUX", reserved: true, want: "%41%55%58"},
	} {
		t.Run(tt.want, func(t *testing.T) {
			got := EncodeName(tt.name, tt.reserved)
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.name, DecodeName(got))
			require.Equal(t, tt.want != tt.name, NeedsEncodedName(tt.name, tt.reserved))
		})
	}
	require.Equal(t, "50%zz", DecodeName("50%zz"))
	require.Equal(t, "end%", DecodeName("end%"))
}

func TestMetafile(t *testing.T) {
	date := time.Date(2020, 1, 2, 3, 4, 5, 670000000, time.Local)
	m := &Metafile{
		Protection: amiga.FromFlags(amiga.Script | amiga.Read | amiga.Write | amiga.Execute | amiga.Delete),
		Date:       date,
		Comment:    "a comment with spaces",
	}
	b, err := m.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "-s--rwed 2020-01-02 03:04:05.67 a comment with spaces\n", string(b))

	var got Metafile
	require.NoError(t, got.UnmarshalText(b))
	require.Equal(t, m.Protection, got.Protection)
	require.Equal(t, m.Comment, got.Comment)
	require.True(t, date.Equal(got.Date))

	require.NoError(t, got.UnmarshalText([]byte("----rwed 2020-01-02 03:04:05.00 \n")))
	require.Empty(t, got.Comment)
	require.Equal(t, amiga.Protection(0), got.Protection)

	require.Error(t, got.UnmarshalText([]byte("garbage")))
	_, err = (&Metafile{Comment: "two\nlines"}).MarshalText()
	require.Error(t, err)
}
