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
	"bytes"
	"fmt"
	"regexp"
	"strconv"

	"github.com/amigatools/imager/pkg/fserrors"
)

// Version is the version and revision a filesystem handler advertises in its
// "$VER:" string.
type Version struct {
	Name     string
	Version  int
	Revision int
}

func (v Version) String() string {
	if v.Name == "" {
		return fmt.Sprintf("%d.%d", v.Version, v.Revision)
	}
	return fmt.Sprintf("%s %d.%d", v.Name, v.Version, v.Revision)
}

var versionRegex = regexp.MustCompile(`\$VER:\s*([^\x00\r\n]*?)\s*(\d+)\.(\d+)`)

// ParseVersion finds the version string in a filesystem handler payload.
// When none is present the override is returned if given, otherwise a
// VersionNotFoundError naming the payload.
func ParseVersion(name string, payload []byte, override *Version) (Version, error) {
	idx := bytes.Index(payload, []byte("$VER:"))
	if idx >= 0 {
		// version strings are short, don't scan the rest of the binary
		end := min(len(payload), idx+256)
		if m := versionRegex.FindSubmatch(payload[idx:end]); m != nil {
			ver, _ := strconv.Atoi(string(m[2]))
			rev, _ := strconv.Atoi(string(m[3]))
			v := Version{Name: string(m[1]), Version: ver, Revision: rev}
			if override != nil {
				v.Version, v.Revision = override.Version, override.Revision
			}
			return v, nil
		}
	}
	if override != nil {
		return *override, nil
	}
	return Version{}, &fserrors.VersionNotFoundError{Name: name}
}
