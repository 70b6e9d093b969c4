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
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/amigatools/imager/pkg/amiga"
)

const (
	// MetafileExtension is appended to the encoded name of an entry to name
	// its metafile.
	MetafileExtension = ".uaem"

	metafileDate = "2006-01-02 15:04:05.00"
)

// Metafile is the content of a .uaem file.
type Metafile struct {
	Protection amiga.Protection
	Date       time.Time
	Comment    string
}

// MarshalText renders m as "<hsparwed> <date> <comment>\n".
func (m *Metafile) MarshalText() ([]byte, error) {
	if strings.ContainsAny(m.Comment, "\r\n") {
		return nil, fmt.Errorf("comment %q spans lines", m.Comment)
	}
	return []byte(fmt.Sprintf("%s %s %s\n", m.Protection, m.Date.Format(metafileDate), m.Comment)), nil
}

// UnmarshalText parses the content of a .uaem file.
func (m *Metafile) UnmarshalText(b []byte) error {
	line := strings.TrimRight(string(b), "\r\n")
	fields := strings.SplitN(line, " ", 4)
	if len(fields) < 3 {
		return fmt.Errorf("metafile %q: want protection, date and comment", line)
	}
	p, err := amiga.ParseProtection(fields[0])
	if err != nil {
		return fmt.Errorf("metafile: %w", err)
	}
	date, err := time.ParseInLocation(metafileDate, fields[1]+" "+fields[2], time.Local)
	if err != nil {
		return fmt.Errorf("metafile date: %w", err)
	}
	m.Protection, m.Date, m.Comment = p, date, ""
	if len(fields) == 4 {
		m.Comment = fields[3]
	}
	return nil
}

func needsEncoding(c byte) bool {
	switch c {
	case '\\', '/', ':', '*', '?', '"', '<', '>', '|', '%':
		return true
	}
	return c < 0x20 || c == 0x7f
}

// NeedsEncodedName reports whether EncodeName changes name.
func NeedsEncodedName(name string, reserved bool) bool {
	return EncodeName(name, reserved) != name
}

// EncodeName percent-encodes the characters of name a host cannot store,
// with lowercase hex digits. A trailing dot or space is encoded too. Reserved
// device names are encoded in full when reserved is set.
func EncodeName(name string, reserved bool) string {
	var b strings.Builder
	if reserved && IsReservedName(name) {
		for i := 0; i < len(name); i++ {
			fmt.Fprintf(&b, "%%%02x", name[i])
		}
		return b.String()
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		last := i == len(name)-1
		if needsEncoding(c) || (last && (c == '.' || c == ' ')) {
			fmt.Fprintf(&b, "%%%02x", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// DecodeName reverses EncodeName. Sequences that are not valid escapes are
// kept as they are.
func DecodeName(name string) string {
	if !strings.Contains(name, "%") {
		return name
	}
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		if name[i] == '%' && i+2 < len(name) {
			if v, err := strconv.ParseUint(name[i+1:i+3], 16, 8); err == nil {
				b.WriteByte(byte(v))
				i += 2
				continue
			}
		}
		b.WriteByte(name[i])
	}
	return b.String()
}
