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

package walk

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Matcher matches entry names against a glob pattern in which only '*' and
// '?' are special. Matching ignores case.
type Matcher struct {
	pattern string
}

// NewMatcher compiles pattern.
func NewMatcher(pattern string) *Matcher {
	return &Matcher{pattern: escape(strings.ToLower(pattern))}
}

// escape quotes everything doublestar would otherwise treat as syntax.
func escape(pattern string) string {
	var b strings.Builder
	for _, c := range pattern {
		switch c {
		case '*', '?':
		case '[', ']', '{', '}', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}

// Match reports whether name matches.
func (m *Matcher) Match(name string) bool {
	ok, err := doublestar.Match(m.pattern, strings.ToLower(name))
	// the pattern is escaped, so it cannot be malformed
	return err == nil && ok
}
