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

package iocomb

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCombine(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "logs", "a.log")
	b := filepath.Join(dir, "b.log")

	w, err := Combine([]string{a, b, Discard})
	require.NoError(t, err)
	_, err = fmt.Fprint(w, "copied")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	for _, p := range []string{a, b} {
		got, err := os.ReadFile(p)
		require.NoError(t, err)
		require.Equal(t, "copied", string(got))
	}

	// files are appended to
	w, err = Combine([]string{a})
	require.NoError(t, err)
	_, err = fmt.Fprint(w, " again")
	require.NoError(t, err)
	require.NoError(t, w.Close())
	got, err := os.ReadFile(a)
	require.NoError(t, err)
	require.Equal(t, "copied again", string(got))

	w, err = Combine(nil)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}
