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

package amiga

import (
	"errors"
	"testing"

	"github.com/amigatools/imager/pkg/fserrors"
	"github.com/stretchr/testify/require"
)

func TestProtectionString(t *testing.T) {
	for _, tt := range []struct {
		p    Protection
		want string
	}{
		{0, "----rwed"},
		{FromFlags(Write), "-----w--"},
		{FromFlags(Read), "----r---"},
		{FromFlags(Script), "-s------"},
		{FromFlags(Hold | Script | Pure | Archive | Read | Write | Execute | Delete), "hsparwed"},
		{rwedMask, "--------"},
	} {
		t.Run(tt.want, func(t *testing.T) {
			require.Equal(t, tt.want, tt.p.String())

			back, err := ParseProtection(tt.want)
			require.NoError(t, err)
			require.Equal(t, tt.p, back)
		})
	}
}

func TestProtectionFlags(t *testing.T) {
	p := FromFlags(Write)
	require.Equal(t, Protection(0xb), p)
	require.Equal(t, Write, p.Flags())
	require.True(t, Protection(0).IsDefault())
	require.False(t, p.IsDefault())
}

func TestParseProtectionErrors(t *testing.T) {
	_, err := ParseProtection("rwed")
	require.Error(t, err)

	_, err = ParseProtection("----rwex")
	require.Error(t, err)

	p, err := ParseProtection("----RWED")
	require.NoError(t, err)
	require.Equal(t, Protection(0), p)
}

func TestParseVersion(t *testing.T) {
	payload := append([]byte{0x00, 0x00, 0x03, 0xf3}, []byte("\x00$VER: pfs3aio 19.2 (11.12.2023)\x00trailing")...)

	v, err := ParseVersion("pfs3aio", payload, nil)
	require.NoError(t, err)
	require.Equal(t, Version{Name: "pfs3aio", Version: 19, Revision: 2}, v)
	require.Equal(t, "pfs3aio 19.2", v.String())

	v, err = ParseVersion("pfs3aio", payload, &Version{Version: 20, Revision: 1})
	require.NoError(t, err)
	require.Equal(t, Version{Name: "pfs3aio", Version: 20, Revision: 1}, v)

	_, err = ParseVersion("FastFileSystem", []byte("no version here"), nil)
	var notFound *fserrors.VersionNotFoundError
	require.True(t, errors.As(err, &notFound))
	require.Equal(t, "FastFileSystem", notFound.Name)

	v, err = ParseVersion("FastFileSystem", []byte("no version here"), &Version{Version: 45, Revision: 13})
	require.NoError(t, err)
	require.Equal(t, "45.13", v.String())
}
