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

//go:build !linux && !darwin && !freebsd && !netbsd && !windows

package dirvol

import "github.com/amigatools/imager/pkg/volume"

func readStream(string, string) ([]byte, error) { return nil, volume.ErrNoStream }

func writeStream(string, string, []byte) error { return volume.ErrNoStream }
