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

// Package uaemeta stores Amiga names and attributes next to files on hosts
// that cannot represent them, in the sidecar formats UAE and FS-UAE use:
// a per-directory _UAEFSDB.___ database or a per-entry .uaem metafile.
package uaemeta

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

// Mode selects how Amiga metadata crosses onto a host filesystem.
type Mode int

const (
	// None maps names to something the host accepts and drops attributes.
	None Mode = iota
	// UaeFsDb keeps a _UAEFSDB.___ database per directory.
	UaeFsDb
	// UaeMetafile keeps a .uaem file per entry.
	UaeMetafile
)

var _ pflag.Value = (*Mode)(nil)

var modeNames = []string{"none", "uaefsdb", "uaemetafile"}

func (m Mode) String() string {
	if int(m) < len(modeNames) && m >= 0 {
		return modeNames[m]
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode parses a mode name, ignoring case.
func ParseMode(s string) (Mode, error) {
	for i, n := range modeNames {
		if strings.EqualFold(s, n) {
			return Mode(i), nil
		}
	}
	return None, fmt.Errorf("unknown uae metadata mode %q, want one of %s", s, strings.Join(modeNames, ", "))
}

// Set implements pflag.Value.
func (m *Mode) Set(s string) error {
	parsed, err := ParseMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Type implements pflag.Value.
func (m *Mode) Type() string { return "mode" }

// UnmarshalText lets config files name the mode.
func (m *Mode) UnmarshalText(b []byte) error {
	return m.Set(string(b))
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}
