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
	"fmt"
	"io"
	"log/slog"

	"github.com/chainguard-dev/clog/slag"
	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"sigs.k8s.io/release-utils/version"

	"github.com/amigatools/imager/pkg/config"
	"github.com/amigatools/imager/pkg/iocomb"
)

func New() *cobra.Command {
	level := slag.Level(slog.LevelInfo)
	var configPath string
	var logPolicy []string
	var logWriter io.WriteCloser
	cfg := &config.Configuration{}

	cmd := &cobra.Command{
		Use:               "imager",
		Short:             "Read and write files inside Amiga and PC disk images",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if configPath != "" {
				if err := cfg.Load(configPath); err != nil {
					return err
				}
				if cfg.LogLevel != "" && !cmd.Flags().Changed("log-level") {
					if err := level.Set(cfg.LogLevel); err != nil {
						return err
					}
				}
			}

			if !cmd.Flags().Changed("log-policy") && len(cfg.LogPolicy) > 0 {
				logPolicy = cfg.LogPolicy
			}
			w, err := iocomb.Combine(logPolicy)
			if err != nil {
				return fmt.Errorf("failed to open log targets: %w", err)
			}
			logWriter = w

			slog.SetDefault(slog.New(charmlog.NewWithOptions(w, charmlog.Options{
				ReportTimestamp: true,
				Level:           charmlog.Level(level),
			})))
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if logWriter == nil {
				return nil
			}
			return logWriter.Close()
		},
	}

	cmd.PersistentFlags().Var(&level, "log-level", "log level (e.g. debug, info, warn, error)")
	cmd.PersistentFlags().StringSliceVar(&logPolicy, "log-policy", []string{iocomb.Stderr}, "log targets: builtin:stderr, builtin:stdout, builtin:discard or a file")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML file with defaults for the fs commands")

	cmd.AddCommand(fsCmd(cfg))
	cmd.AddCommand(version.Version())
	return cmd
}

func fsCmd(cfg *config.Configuration) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fs",
		Short: "Work with files and directories inside media",
		Long: `Work with files and directories inside media.

Paths address the host filesystem, disk images, partitions and archives
uniformly, for example:

  images/4gb.hdf/rdb/dh0/devs/*.device
  +bs/images/swapped.hdf/mbr/1/rdb/dh0
  /dev/sdb/gpt/2/games
  downloads/demo.zip/demo/readme`,
	}
	cmd.AddCommand(copyCmd(cfg))
	cmd.AddCommand(dirCmd(cfg))
	cmd.AddCommand(extractCmd(cfg))
	cmd.AddCommand(mkdirCmd(cfg))
	cmd.AddCommand(fsVersionCmd())
	return cmd
}
