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

package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/amigatools/imager/pkg/config"
	"github.com/amigatools/imager/pkg/fsops"
	"github.com/amigatools/imager/pkg/uaemeta"
)

// fsFlags are the flags shared by the fs commands. Values from the
// configuration file apply unless the flag is given.
type fsFlags struct {
	recursive       bool
	makeDir         bool
	force           bool
	mode            uaemeta.Mode
	metricsTextfile string
}

func (f *fsFlags) addTraversalFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&f.recursive, "recursive", "r", false, "descend into directories")
	cmd.Flags().Var(&f.mode, "uae-metadata", "keep Amiga names and attributes on the host as none, uaefsdb or uaemetafile")
}

func (f *fsFlags) addCopyFlags(cmd *cobra.Command) {
	f.addTraversalFlags(cmd)
	cmd.Flags().BoolVarP(&f.makeDir, "make-dir", "m", false, "create missing destination directories")
	cmd.Flags().BoolVarP(&f.force, "force", "f", false, "overwrite existing files")
	cmd.Flags().StringVar(&f.metricsTextfile, "metrics-textfile", "", "write copy metrics to this file in the Prometheus text format")
}

// options merges the configuration file with the flags given on cmd.
func (f *fsFlags) options(cmd *cobra.Command, cfg *config.Configuration) ([]fsops.Option, error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	changed := cmd.Flags().Changed
	if changed("recursive") {
		opts = append(opts, fsops.WithRecursive(f.recursive))
	}
	if changed("make-dir") {
		opts = append(opts, fsops.WithMakeDirectory(f.makeDir))
	}
	if changed("force") {
		opts = append(opts, fsops.WithForce(f.force))
	}
	if changed("uae-metadata") {
		opts = append(opts, fsops.WithUaeMetadata(f.mode))
	}
	if !changed("metrics-textfile") {
		f.metricsTextfile = cfg.MetricsTextfile
	}
	return opts, nil
}

// withMetrics runs fn, adding copy metrics to its options when a metrics
// file was requested, and writes the file afterwards. A failed copy still
// writes the file so its partial progress is recorded.
func (f *fsFlags) withMetrics(opts []fsops.Option, fn func(opts []fsops.Option) error) error {
	if f.metricsTextfile == "" {
		return fn(opts)
	}
	m := fsops.NewMetrics()
	err := fn(append(opts, fsops.WithMetrics(m)))
	return errors.Join(err, m.WriteToTextfile(f.metricsTextfile))
}
