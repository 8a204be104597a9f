// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bonial-oss/vulnmatch/internal/store"
)

// cacheDirs are the data directory entries owned by vulnmatch.
var cacheDirs = []string{"epss", "kev", "update"}

func newPurgeCommand(v *viper.Viper, configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete the local vulnerability database and caches",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			a, err := newApp(v, *configFile)
			if err != nil {
				return err
			}

			var targets []string
			if a.cfg.Database.Driver == store.DriverSQLite {
				dsn := a.cfg.Database.DSN
				targets = append(targets, dsn, dsn+"-wal", dsn+"-shm")
			} else {
				a.logger.Warn("the postgres database is not removed by purge", "driver", a.cfg.Database.Driver)
			}
			for _, dir := range cacheDirs {
				targets = append(targets, filepath.Join(a.cfg.DataDir, dir))
			}

			for _, path := range targets {
				if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
					continue
				}
				if err := os.RemoveAll(path); err != nil {
					return fmt.Errorf("removing %s: %w", path, err)
				}
				a.logger.Info("removed", "path", path)
			}
			return nil
		},
	}
}
