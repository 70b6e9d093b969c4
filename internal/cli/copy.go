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

func copyCmd(cfg *config.Configuration) *cobra.Command {
	var f fsFlags

	cmd := &cobra.Command{
		Use:     "copy SRC DEST",
		Aliases: []string{"cp"},
		Short:   "Copy files and directories between media",
		Long: `Copy files and directories between media.

The last segment of SRC may be a pattern using * and ?, matched against the
names in its directory without regard to case. Copying a directory copies
its contents into DEST.`,
		Example: `  imager fs copy 4gb.hdf/rdb/dh0/devs/*.device devices
  imager fs copy -r --uae-metadata uaefsdb 4gb.hdf/rdb/dh0 backup
  imager fs copy -r -m -f work/ 4gb.hdf/rdb/dh1/projects/new`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := f.options(cmd, cfg)
			if err != nil {
				return err
			}
			return f.withMetrics(opts, func(opts []fsops.Option) error {
				return CopyImpl(cmd.Context(), args[0], args[1], opts...)
			})
		},
	}
	f.addCopyFlags(cmd)

	return cmd
}

func CopyImpl(ctx context.Context, src, dest string, opts ...fsops.Option) error {
	_, err := fsops.Copy(ctx, src, dest, opts...)
	return err
}
