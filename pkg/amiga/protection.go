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

// Package amiga models Amiga filesystem attributes.
package amiga

import (
	"fmt"
	"strings"
)

// Protection is an Amiga protection bit set as stored on disk. The low four
// bits (read, write, execute, delete) are inverted: a set bit denies the
// permission. The remaining bits are set when the attribute is present.
type Protection uint32

const (
	Delete Protection = 1 << iota
	Execute
	Write
	Read
	Archive
	Pure
	Script
	Hold
)

const rwedMask Protection = Read | Write | Execute | Delete

const letters = "hsparwed"

// Flags returns the bits with the RWED group flipped, so that every set bit
// means the attribute is present.
func (p Protection) Flags() Protection {
	return p ^ rwedMask
}

// FromFlags converts a set of present attributes to the on-disk form.
func FromFlags(flags Protection) Protection {
	return flags ^ rwedMask
}

// IsDefault reports whether p is the value a freshly created entry carries.
func (p Protection) IsDefault() bool {
	return p == 0
}

// String formats p as the eight letter "hsparwed" string used by FS-UAE,
// with '-' for every attribute that is not present.
func (p Protection) String() string {
	flags := p.Flags()
	var b strings.Builder
	for i := 0; i < len(letters); i++ {
		bit := Protection(1) << (len(letters) - 1 - i)
		if flags&bit != 0 {
			b.WriteByte(letters[i])
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

// ParseProtection is the inverse of Protection.String. Letters are matched
// case-insensitively.
func ParseProtection(s string) (Protection, error) {
	if len(s) != len(letters) {
		return 0, fmt.Errorf("protection %q: want %d characters", s, len(letters))
	}
	var flags Protection
	for i := 0; i < len(letters); i++ {
		if s[i] == '-' {
			continue
		}
		switch s[i] | 0x20 {
		case letters[i]:
			flags |= Protection(1) << (len(letters) - 1 - i)
		default:
			return 0, fmt.Errorf("protection %q: unexpected %q at %d", s, s[i], i)
		}
	}
	return FromFlags(flags), nil
}
