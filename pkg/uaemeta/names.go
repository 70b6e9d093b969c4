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
	"math/rand/v2"
	"regexp"
	"strings"
)

const (
	// SafePrefix starts every name UaeFsDb had to replace.
	SafePrefix = "__uae___"

	uniqueStart = len(SafePrefix)
	uniqueLen   = 8
	uniqueChars = "_0123456789abcdefghijklmnopqrstuvwxyz"
)

var reservedNameRegex = regexp.MustCompile(`(?i)^(CON|PRN|AUX|NUL|COM[1-9]|LPT[1-9])(\..*)?$`)

// IsReservedName reports whether name is a Windows device name. Whether
// that matters depends on the host.
func IsReservedName(name string) bool {
	return reservedNameRegex.MatchString(name)
}

// isSpecial reports whether c cannot appear in a UAE normal name.
func isSpecial(c rune) bool {
	switch c {
	case '\\', '/', ':', '*', '?', '"', '<', '>', '|':
		return true
	}
	return c < 0x20 || c > 0x7e
}

func hasTrailingDotOrSpace(name string) bool {
	return strings.HasSuffix(name, ".") || strings.HasSuffix(name, " ")
}

// NeedsSafeName reports whether name has to be replaced by a safe name when
// stored with UaeFsDb. Reserved device names only count when reserved is set.
func NeedsSafeName(name string, reserved bool) bool {
	if name == "." || name == ".." || hasTrailingDotOrSpace(name) {
		return true
	}
	if reserved && IsReservedName(name) {
		return true
	}
	return strings.IndexFunc(name, isSpecial) >= 0
}

// MakeSafeName returns SafePrefix followed by name with every character
// that cannot be stored replaced by '_'.
func MakeSafeName(name string) string {
	var b strings.Builder
	b.WriteString(SafePrefix)
	runes := []rune(name)
	for i, c := range runes {
		last := i == len(runes)-1
		if isSpecial(c) || (last && (c == '.' || c == ' ')) {
			c = '_'
		}
		b.WriteRune(c)
	}
	return b.String()
}

// UniqueName returns candidate, or a variant of it whose characters 8 to 15
// are replaced by random ones, that exists reports as unused.
func UniqueName(candidate string, exists func(string) bool) string {
	return uniqueName(candidate, exists, rand.IntN)
}

func uniqueName(candidate string, exists func(string) bool, intn func(int) int) string {
	name := []byte(candidate)
	for exists(string(name)) {
		for len(name) < uniqueStart+uniqueLen {
			name = append(name, '_')
		}
		for i := uniqueStart; i < uniqueStart+uniqueLen; i++ {
			name[i] = uniqueChars[intn(len(uniqueChars))]
		}
	}
	return string(name)
}

// HostName returns name with the characters the host rejects replaced by
// '_' and a '_' prefix for reserved device names. Used when no metadata is
// kept.
func HostName(name string, reserved bool) string {
	switch name {
	case ".":
		return "_"
	case "..":
		return "__"
	}
	if reserved && IsReservedName(name) {
		return "_" + name
	}
	return strings.Map(func(c rune) rune {
		if isHostInvalid(c) {
			return '_'
		}
		return c
	}, name)
}
