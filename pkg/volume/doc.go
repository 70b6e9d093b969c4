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

// Package volume defines the contract every filesystem and archive driver
// satisfies. Drivers differ in what they can store: the Capabilities of a
// volume tell callers whether protection bits and comments survive, and the
// optional interfaces (Attributer, ModTimeSetter, Flusher, StreamReader) expose
// the extra operations behind those capabilities.
//
// Paths are always slices of name segments relative to the volume root, never
// host path strings, so drivers do not need to know about host quoting or
// separator rules.
package volume
