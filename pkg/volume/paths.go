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

package volume

import (
	"context"
	"errors"
	"strings"

	"github.com/amigatools/imager/pkg/fserrors"
	"golang.org/x/exp/slices"
)

// Exists returns the type of the entry at path, or None.
func Exists(ctx context.Context, v Volume, path []string) (EntryType, error) {
	if len(path) == 0 {
		return Dir, nil
	}
	e, err := v.Stat(ctx, path)
	if err != nil {
		var notFound *fserrors.PathNotFoundError
		if errors.As(err, &notFound) {
			return None, nil
		}
		return None, err
	}
	return e.Type, nil
}

// Join returns a new path made of dir followed by names.
func Join(dir []string, names ...string) []string {
	out := make([]string, 0, len(dir)+len(names))
	out = append(out, dir...)
	return append(out, names...)
}

// Parent returns path without its last segment.
func Parent(path []string) []string {
	if len(path) == 0 {
		return nil
	}
	return slices.Clone(path[:len(path)-1])
}

// Base returns the last segment of path.
func Base(path []string) string {
	if len(path) == 0 {
		return ""
	}
	return path[len(path)-1]
}

// String renders path for messages.
func String(path []string) string {
	return "/" + strings.Join(path, "/")
}

// Equal compares two paths, ignoring case when caseInsensitive is set.
func Equal(a, b []string, caseInsensitive bool) bool {
	if !caseInsensitive {
		return slices.Equal(a, b)
	}
	return slices.EqualFunc(a, b, strings.EqualFold)
}

// HasPrefix reports whether path equals prefix or lies below it.
func HasPrefix(path, prefix []string, caseInsensitive bool) bool {
	if len(prefix) > len(path) {
		return false
	}
	return Equal(path[:len(prefix)], prefix, caseInsensitive)
}

// NotFound builds the error drivers return for a missing path.
func NotFound(path []string) error {
	return &fserrors.PathNotFoundError{Path: String(path)}
}
