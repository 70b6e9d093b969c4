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
	"context"

	"github.com/spf13/cobra"

	"github.com/amigatools/imager/pkg/config"
	"github.com/amigatools/imager/pkg/fsops"
)

func extractCmd(cfg *config.Configuration) *cobra.Command {
	var f fsFlags

	cmd := &cobra.Command{
		Use:   "extract SRC DEST",
		Short: "Extract files from media to a host directory",
		Long: `Extract files from media to a host directory.

Unlike copy, DEST is always a host path, even when its name looks like an
image or archive.`,
		Example: `  imager fs extract -r downloads/demo.zip/demo demo
  imager fs extract -r --uae-metadata uaemetafile 4gb.hdf/rdb/dh0/s dh0-s`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := f.options(cmd, cfg)
			if err != nil {
				return err
			}
			return f.withMetrics(opts, func(opts []fsops.Option) error {
				return ExtractImpl(cmd.Context(), args[0], args[1], opts...)
			})
		},
	}
	f.addCopyFlags(cmd)

	return cmd
}

func ExtractImpl(ctx context.Context, src, dest string, opts ...fsops.Option) error {
	_, err := fsops.Extract(ctx, src, dest, opts...)
	return err
}
