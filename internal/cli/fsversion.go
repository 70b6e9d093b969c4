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
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/amigatools/imager/pkg/amiga"
	"github.com/amigatools/imager/pkg/fsops"
)

func fsVersionCmd() *cobra.Command {
	var override string

	cmd := &cobra.Command{
		Use:   "version PATH",
		Short: "Show the version of a filesystem handler",
		Long: `Show the version of a filesystem handler, read from its $VER string.

Handlers without a version string need --set-version.`,
		Example: `  imager fs version 4gb.hdf/rdb/dh0/l/pfs3aio
  imager fs version --set-version 19.2 downloads/pfs3aio`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return FsVersionImpl(cmd.Context(), os.Stdout, args[0], override)
		},
	}
	cmd.Flags().StringVar(&override, "set-version", "", "version.revision to use when the handler has no version string")

	return cmd
}

// parseVersionOverride parses "version.revision".
func parseVersionOverride(s string) (*amiga.Version, error) {
	if s == "" {
		return nil, nil
	}
	ver, rev, ok := strings.Cut(s, ".")
	if !ok {
		return nil, fmt.Errorf("version %q must be version.revision", s)
	}
	v, err := strconv.Atoi(ver)
	if err != nil {
		return nil, fmt.Errorf("version %q: %w", s, err)
	}
	r, err := strconv.Atoi(rev)
	if err != nil {
		return nil, fmt.Errorf("version %q: %w", s, err)
	}
	return &amiga.Version{Version: v, Revision: r}, nil
}

func FsVersionImpl(ctx context.Context, w io.Writer, path, override string, opts ...fsops.Option) error {
	o, err := parseVersionOverride(override)
	if err != nil {
		return err
	}
	v, err := fsops.Version(ctx, path, o, opts...)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, v)
	return err
}
