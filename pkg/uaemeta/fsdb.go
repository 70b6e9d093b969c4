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
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

const (
	// FsDbFileName is the per-directory database of version 1 nodes.
	FsDbFileName = "_UAEFSDB.___"
	// StreamName is the alternate data stream, or extended attribute on
	// Unix hosts, that holds a version 2 node for a single file.
	StreamName = "AFS_DBUAE"

	NodeV1Size = 600
	NodeV2Size = 1632

	nameSize     = 257
	commentSize  = 81
	wideNameSize = 514
)

// NodeVersion is the on-disk layout of a Node.
type NodeVersion int

const (
	V1 NodeVersion = 1
	V2 NodeVersion = 2
)

// Node maps the Amiga name of an entry to the name it has on the host, and
// carries its protection bits and comment.
type Node struct {
	Version    NodeVersion
	Valid      byte
	Mode       uint32
	AmigaName  string
	NormalName string
	Comment    string
	// WinMode holds the Windows file attributes of version 2 nodes.
	WinMode uint32
}

var (
	latin1  encoding.Encoding = charmap.ISO8859_1
	utf16le encoding.Encoding = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
)

// putString stores s NUL terminated in field, failing when it does not fit.
// Wide fields hold UTF-16 with a two byte terminator.
func putString(field []byte, wide bool, s, what string) error {
	enc, term := latin1, 1
	if wide {
		enc, term = utf16le, 2
	}
	b, err := enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return fmt.Errorf("%s %q cannot be encoded: %w", what, s, err)
	}
	if len(b)+term > len(field) {
		return fmt.Errorf("%s %q is too long", what, s)
	}
	copy(field, b)
	return nil
}

func getString(field []byte, wide bool) (string, error) {
	enc, end := latin1, len(field)
	if wide {
		enc = utf16le
		for i := 0; i+1 < len(field); i += 2 {
			if field[i] == 0 && field[i+1] == 0 {
				end = i
				break
			}
		}
	} else if i := bytes.IndexByte(field, 0); i >= 0 {
		end = i
	}
	b, err := enc.NewDecoder().Bytes(field[:end])
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// MarshalBinary encodes n in the layout of its version.
func (n *Node) MarshalBinary() ([]byte, error) {
	size := NodeV1Size
	if n.Version == V2 {
		size = NodeV2Size
	}
	b := make([]byte, size)
	b[0] = n.Valid
	binary.BigEndian.PutUint32(b[1:], n.Mode)
	if err := putString(b[5:5+nameSize], false, n.AmigaName, "amiga name"); err != nil {
		return nil, err
	}
	if err := putString(b[262:262+nameSize], false, n.NormalName, "normal name"); err != nil {
		return nil, err
	}
	if err := putString(b[519:519+commentSize], false, n.Comment, "comment"); err != nil {
		return nil, err
	}
	if n.Version != V2 {
		return b, nil
	}
	binary.BigEndian.PutUint32(b[600:], n.WinMode)
	if err := putString(b[604:604+wideNameSize], true, n.AmigaName, "amiga name"); err != nil {
		return nil, err
	}
	if err := putString(b[1118:1118+wideNameSize], true, n.NormalName, "normal name"); err != nil {
		return nil, err
	}
	return b, nil
}

type field struct {
	dst  *string
	raw  []byte
	wide bool
}

// UnmarshalBinary decodes a version 1 or version 2 node, telling them apart
// by size.
func (n *Node) UnmarshalBinary(b []byte) error {
	switch len(b) {
	case NodeV1Size:
		n.Version = V1
	case NodeV2Size:
		n.Version = V2
	default:
		return fmt.Errorf("uaefsdb node of %d bytes, want %d or %d", len(b), NodeV1Size, NodeV2Size)
	}
	n.Valid = b[0]
	n.Mode = binary.BigEndian.Uint32(b[1:])

	fields := []field{
		{&n.AmigaName, b[5 : 5+nameSize], false},
		{&n.NormalName, b[262 : 262+nameSize], false},
		{&n.Comment, b[519 : 519+commentSize], false},
	}
	if n.Version == V2 {
		n.WinMode = binary.BigEndian.Uint32(b[600:])
		// the wide names win over the 8-bit ones when present
		fields = append(fields,
			field{&n.AmigaName, b[604 : 604+wideNameSize], true},
			field{&n.NormalName, b[1118 : 1118+wideNameSize], true},
		)
	}
	var err error
	for _, f := range fields {
		s, ferr := getString(f.raw, f.wide)
		if ferr != nil {
			err = errors.Join(err, ferr)
			continue
		}
		if s != "" || !f.wide {
			*f.dst = s
		}
	}
	return err
}

// ParseFsDb decodes the version 1 nodes of a _UAEFSDB.___ file. A trailing
// partial node is reported as an error along with the nodes before it.
func ParseFsDb(b []byte) ([]*Node, error) {
	var nodes []*Node
	for len(b) >= NodeV1Size {
		n := &Node{}
		if err := n.UnmarshalBinary(b[:NodeV1Size]); err != nil {
			return nodes, err
		}
		nodes = append(nodes, n)
		b = b[NodeV1Size:]
	}
	if len(b) > 0 {
		return nodes, fmt.Errorf("%s has %d trailing bytes", FsDbFileName, len(b))
	}
	return nodes, nil
}

// BuildFsDb encodes nodes as a _UAEFSDB.___ file.
func BuildFsDb(nodes []*Node) ([]byte, error) {
	var buf bytes.Buffer
	for _, n := range nodes {
		v1 := *n
		v1.Version = V1
		b, err := v1.MarshalBinary()
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	return buf.Bytes(), nil
}
