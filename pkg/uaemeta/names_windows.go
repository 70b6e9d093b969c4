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

//go:build windows

package uaemeta

// hostReservesNames is set on hosts where device names such as AUX cannot
// be used as file names.
const hostReservesNames = true

func isHostInvalid(c rune) bool {
	switch c {
	case '\\', '/', ':', '*', '?', '"', '<', '>', '|':
		return true
	}
	return c < 0x20
}
