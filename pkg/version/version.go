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

// Package version reports the version of the imager module linked into the
// running binary.
package version

import (
	"runtime/debug"
	"sync"
)

const modulePath = "github.com/amigatools/imager"

var (
	once          sync.Once
	moduleVersion = "unknown"
)

// ModuleVersion returns the version of the imager module in the current
// build, or "unknown" when the build carries no module information.
func ModuleVersion() string {
	once.Do(func() {
		bi, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		moduleVersion = fromBuildInfo(bi)
	})
	return moduleVersion
}

func fromBuildInfo(bi *debug.BuildInfo) string {
	v := "unknown"
	if bi.Main.Path == modulePath && bi.Main.Version != "" {
		v = bi.Main.Version
	}
	for _, d := range bi.Deps {
		if d.Path != modulePath {
			continue
		}
		// a replaced module reports the replacement's version
		if d.Replace != nil {
			return d.Replace.Version
		}
		if v == "unknown" {
			v = d.Version
		}
	}
	return v
}
