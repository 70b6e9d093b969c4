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

func mkdirCmd(cfg *config.Configuration) *cobra.Command {
	var f fsFlags

	cmd := &cobra.Command{
		Use:     "mkdir PATH",
		Aliases: []string{"md"},
		Short:   "Create a directory inside media",
		Example: `  imager fs mkdir -m 4gb.hdf/rdb/dh1/projects/new`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := f.options(cmd, cfg)
			if err != nil {
				return err
			}
			return MkdirImpl(cmd.Context(), args[0], opts...)
		},
	}
	cmd.Flags().BoolVarP(&f.makeDir, "make-dir", "m", false, "create missing parent directories")
	cmd.Flags().Var(&f.mode, "uae-metadata", "keep Amiga names on the host as none, uaefsdb or uaemetafile")

	return cmd
}

func MkdirImpl(ctx context.Context, path string, opts ...fsops.Option) error {
	return fsops.MakeDirectory(ctx, path, opts...)
}
