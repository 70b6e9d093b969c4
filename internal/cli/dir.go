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
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/amigatools/imager/pkg/config"
	"github.com/amigatools/imager/pkg/fsops"
	"github.com/amigatools/imager/pkg/volume"
)

func dirCmd(cfg *config.Configuration) *cobra.Command {
	var f fsFlags
	var partitions bool

	cmd := &cobra.Command{
		Use:     "dir PATH",
		Aliases: []string{"ls"},
		Short:   "List files and directories inside media",
		Example: `  imager fs dir 4gb.hdf/rdb/dh0
  imager fs dir -r 4gb.hdf/rdb/dh0/devs/*.device
  imager fs dir --partitions 4gb.hdf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := f.options(cmd, cfg)
			if err != nil {
				return err
			}
			return DirImpl(cmd.Context(), os.Stdout, args[0], partitions, opts...)
		},
	}
	f.addTraversalFlags(cmd)
	cmd.Flags().BoolVar(&partitions, "partitions", false, "list the partition table of the media instead of files")

	return cmd
}

func DirImpl(ctx context.Context, w io.Writer, path string, partitions bool, opts ...fsops.Option) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if partitions {
		parts, err := fsops.Partitions(ctx, path, opts...)
		if err != nil {
			return err
		}
		fmt.Fprintln(tw, "#\tName\tType\tOffset\tSize")
		for _, p := range parts {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", p.Index, p.Name, p.Type, p.Offset, humanize.IBytes(uint64(p.Size)))
		}
		return tw.Flush()
	}

	entries, err := fsops.Dir(ctx, path, opts...)
	if err != nil {
		return err
	}
	var dirs, files int
	var total uint64
	fmt.Fprintln(tw, "Name\tSize\tProtection\tDate\tComment")
	for _, e := range entries {
		name, size := e.RelativePath, humanize.IBytes(e.Size)
		if e.Type == volume.Dir {
			name, size = name+"/", "<DIR>"
			dirs++
		} else {
			files++
			total += e.Size
		}
		var prot, comment, date string
		if e.Attributes != nil {
			prot, comment = e.Attributes.Protection.String(), e.Attributes.Comment
		}
		if !e.ModTime.IsZero() {
			date = e.ModTime.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", name, size, prot, date, comment)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%d directories, %d files, %s\n", dirs, files, humanize.IBytes(total))
	return err
}
